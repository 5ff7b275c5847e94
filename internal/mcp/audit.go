package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// AuditFile is the name of the tool audit log inside the state directory.
const AuditFile = "audit.jsonl"

// AuditEntry is one tool invocation. Params carries metadata only, never
// paths or node identifiers.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to audit.jsonl. It is safe for concurrent
// use, and a nil AuditLogger discards everything.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens dir/audit.jsonl for appending. Failure is not
// fatal: it is logged as a warning and nil is returned.
func NewAuditLogger(dir string, logger *slog.Logger) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		logger.Warn("cannot create audit log directory", "dir", dir, "error", err)
		return nil
	}
	path := filepath.Join(dir, AuditFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logger.Warn("cannot open audit log", "path", path, "error", err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as one JSON line. Write failures are dropped.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(append(data, '\n'))
}

// Close closes the log file. Safe to call on nil and more than once.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Parameters whose values are safe to record. Everything in presenceOnly
// is recorded as "(set)"; anything else is left out.
var (
	safeValueParams = map[string]bool{
		"threshold":                 true,
		"infection_probability":     true,
		"death_probability":         true,
		"recovery_probability":      true,
		"immunity_loss_probability": true,
		"lifespan":                  true,
		"vaccination":               true,
		"seed":                      true,
		"save":                      true,
		"render":                    true,
		"model":                     true,
		"limit":                     true,
		"delete":                    true,
	}
	presenceOnlyParams = map[string]bool{
		"graph_path": true,
		"initiators": true,
		"shelter":    true,
		"id":         true,
	}
)

// sanitizeToolParams reduces tool arguments to auditable metadata. Unset
// (nil or empty) arguments are skipped.
func sanitizeToolParams(params map[string]any) map[string]string {
	out := make(map[string]string)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := 0
	for _, key := range keys {
		val, ok := deref(params[key])
		if !ok {
			continue
		}
		set++
		switch {
		case safeValueParams[key]:
			out[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			out[key] = "(set)"
		}
	}
	out["_param_count"] = fmt.Sprintf("%d", set)
	return out
}

// deref unwraps optional pointer arguments and reports whether v is set.
func deref(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case *float64:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *int:
		if x == nil {
			return nil, false
		}
		return *x, true
	case string:
		return x, x != ""
	case []string:
		return x, len(x) > 0
	default:
		return v, true
	}
}

// auditTool records one finished tool call.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]any) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     sanitizeToolParams(params),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.audit.Log(entry)
}
