// Package mcp provides an MCP (Model Context Protocol) server exposing the
// contagion simulations as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/contagion/internal/config"
	"github.com/nvandessel/contagion/internal/pathutil"
	"github.com/nvandessel/contagion/internal/ratelimit"
	"github.com/nvandessel/contagion/internal/store"
)

// Server wraps the MCP SDK server with the contagion tools.
type Server struct {
	server    *sdk.Server
	store     store.RunStore
	ownsStore bool
	defaults  *config.ContagionConfig
	root      string
	allowed   []string
	limiters  ratelimit.ToolLimiters
	audit     *AuditLogger
	logger    *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "contagion")
	Version string // Server version
	Root    string // Directory graph files are resolved against

	// StateDir holds runs.db and audit.jsonl. Empty means ~/.contagion.
	StateDir string

	// Store overrides the SQLite store opened in StateDir. The caller keeps
	// ownership and must close it.
	Store store.RunStore

	// Defaults supplies parameters a tool call leaves unset. Nil means
	// config.Default().
	Defaults *config.ContagionConfig

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the contagion tools registered.
func NewServer(cfg *Config) (*Server, error) {
	stateDir := cfg.StateDir
	if stateDir == "" {
		dir, err := store.DefaultStatePath()
		if err != nil {
			return nil, err
		}
		stateDir = dir
	}
	if err := store.EnsureDir(stateDir); err != nil {
		return nil, err
	}

	allowed, err := pathutil.AllowedGraphDirs(cfg.Root)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = config.Default()
	}

	s := &Server{
		store:    cfg.Store,
		defaults: defaults,
		root:     cfg.Root,
		allowed:  allowed,
		limiters: ratelimit.NewToolLimiters(),
		audit:    NewAuditLogger(stateDir, logger),
		logger:   logger,
	}
	if s.store == nil {
		runs, err := store.NewSQLiteRunStore(store.DatabasePath(stateDir))
		if err != nil {
			s.audit.Close()
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		s.store, s.ownsStore = runs, true
	}

	s.server = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)
	s.registerTools()

	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the audit log and, when the server opened it, the store.
func (s *Server) Close() error {
	var firstErr error
	if err := s.audit.Close(); err != nil {
		firstErr = err
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.ownsStore = false
	}
	return firstErr
}
