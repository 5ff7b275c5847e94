// Package config provides unified configuration loading for contagion.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/contagion/internal/cascade"
	"github.com/nvandessel/contagion/internal/epidemic"
	"github.com/nvandessel/contagion/internal/roles"
)

// ErrUnknownKey is returned by Get and Set for keys outside Keys().
var ErrUnknownKey = errors.New("unknown configuration key")

// validate is a singleton validator instance.
var validate = validator.New()

// ContagionConfig contains all contagion configuration settings.
type ContagionConfig struct {
	// Cascade contains the threshold model parameters.
	Cascade CascadeConfig `json:"cascade" yaml:"cascade"`

	// Epidemic contains the stochastic model parameters.
	Epidemic EpidemicConfig `json:"epidemic" yaml:"epidemic"`

	// Roles contains the default shelter and vaccination settings.
	Roles RolesConfig `json:"roles" yaml:"roles"`

	// Logging contains settings for operational and round logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures run persistence.
	Store StoreConfig `json:"store" yaml:"store"`
}

// CascadeConfig configures the threshold cascade.
type CascadeConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
}

// EpidemicConfig configures the epidemic model.
type EpidemicConfig struct {
	InfectionProbability    float64 `json:"infection_probability" yaml:"infection_probability" validate:"gte=0,lte=1"`
	DeathProbability        float64 `json:"death_probability" yaml:"death_probability" validate:"gte=0,lte=1"`
	RecoveryProbability     float64 `json:"recovery_probability" yaml:"recovery_probability" validate:"gte=0,lte=1"`
	ImmunityLossProbability float64 `json:"immunity_loss_probability" yaml:"immunity_loss_probability" validate:"gte=0,lte=1"`
	Lifespan                int     `json:"lifespan" yaml:"lifespan" validate:"gte=1"`
}

// RolesConfig holds role defaults applied when no flag overrides them.
type RolesConfig struct {
	// Shelter is either a proportion in [0, 1] or a comma-separated node list.
	// Empty shelters nobody.
	Shelter string `json:"shelter" yaml:"shelter"`

	// Vaccination is the proportion of the population to vaccinate.
	Vaccination float64 `json:"vaccination" yaml:"vaccination" validate:"gte=0,lte=1"`
}

// LoggingConfig configures contagion's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity. "debug" enables the rounds.jsonl trace,
	// "trace" additionally records every node's state per round.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=error warn warning info debug trace"`
}

// StoreConfig configures where runs are saved.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means runs.db in the state dir.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns a ContagionConfig with the model defaults.
func Default() *ContagionConfig {
	ep := epidemic.DefaultConfig()
	return &ContagionConfig{
		Cascade: CascadeConfig{Threshold: cascade.DefaultThreshold},
		Epidemic: EpidemicConfig{
			InfectionProbability:    ep.InfectionProbability,
			DeathProbability:        ep.DeathProbability,
			RecoveryProbability:     ep.RecoveryProbability,
			ImmunityLossProbability: ep.ImmunityLossProbability,
			Lifespan:                ep.Lifespan,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// CascadeModel returns the cascade model configuration.
func (c *ContagionConfig) CascadeModel() cascade.Config {
	return cascade.Config{Threshold: c.Cascade.Threshold}
}

// EpidemicModel returns the epidemic model configuration.
func (c *ContagionConfig) EpidemicModel() epidemic.Config {
	return epidemic.Config{
		InfectionProbability:    c.Epidemic.InfectionProbability,
		DeathProbability:        c.Epidemic.DeathProbability,
		RecoveryProbability:     c.Epidemic.RecoveryProbability,
		ImmunityLossProbability: c.Epidemic.ImmunityLossProbability,
		Lifespan:                c.Epidemic.Lifespan,
	}
}

// DefaultPath returns ~/.contagion/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".contagion", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.contagion/config.yaml -> environment variables
func Load() (*ContagionConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*ContagionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *ContagionConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks value ranges and that the shelter setting parses.
func (c *ContagionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := roles.ParseShelter(c.Roles.Shelter); err != nil {
		return fmt.Errorf("roles.shelter: %w", err)
	}
	return nil
}

// formatValidationError reports the first failed field in config-key form.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	for _, e := range validationErrs {
		field := fieldKey(e.Namespace())
		switch e.Tag() {
		case "gte":
			return fmt.Errorf("%s: must be at least %s, got %v", field, e.Param(), e.Value())
		case "lte":
			return fmt.Errorf("%s: must not exceed %s, got %v", field, e.Param(), e.Value())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s], got %q", field, e.Param(), e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}

// fieldKey turns "ContagionConfig.Epidemic.Lifespan" into "epidemic.lifespan".
func fieldKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// field binds a dotted key to its accessor pair.
type field struct {
	get func(c *ContagionConfig) any
	set func(c *ContagionConfig, v string) error
}

func floatField(ptr func(c *ContagionConfig) *float64) field {
	return field{
		get: func(c *ContagionConfig) any { return *ptr(c) },
		set: func(c *ContagionConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", v)
			}
			*ptr(c) = f
			return nil
		},
	}
}

func stringField(ptr func(c *ContagionConfig) *string) field {
	return field{
		get: func(c *ContagionConfig) any { return *ptr(c) },
		set: func(c *ContagionConfig, v string) error {
			*ptr(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"cascade.threshold":                  floatField(func(c *ContagionConfig) *float64 { return &c.Cascade.Threshold }),
	"epidemic.infection_probability":     floatField(func(c *ContagionConfig) *float64 { return &c.Epidemic.InfectionProbability }),
	"epidemic.death_probability":         floatField(func(c *ContagionConfig) *float64 { return &c.Epidemic.DeathProbability }),
	"epidemic.recovery_probability":      floatField(func(c *ContagionConfig) *float64 { return &c.Epidemic.RecoveryProbability }),
	"epidemic.immunity_loss_probability": floatField(func(c *ContagionConfig) *float64 { return &c.Epidemic.ImmunityLossProbability }),
	"epidemic.lifespan": {
		get: func(c *ContagionConfig) any { return c.Epidemic.Lifespan },
		set: func(c *ContagionConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer %q", v)
			}
			c.Epidemic.Lifespan = n
			return nil
		},
	},
	"roles.shelter":     stringField(func(c *ContagionConfig) *string { return &c.Roles.Shelter }),
	"roles.vaccination": floatField(func(c *ContagionConfig) *float64 { return &c.Roles.Vaccination }),
	"logging.level":     stringField(func(c *ContagionConfig) *string { return &c.Logging.Level }),
	"store.path":        stringField(func(c *ContagionConfig) *string { return &c.Store.Path }),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key such as "epidemic.lifespan".
func (c *ContagionConfig) Get(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(c), nil
}

// Set parses value into the dotted key and re-validates the whole config.
// On failure the config is left unchanged.
func (c *ContagionConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	next := *c
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// envKey maps "epidemic.death_probability" to CONTAGION_EPIDEMIC_DEATH_PROBABILITY.
func envKey(key string) string {
	return "CONTAGION_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnvOverrides applies CONTAGION_* environment variables to the config.
func applyEnvOverrides(config *ContagionConfig) error {
	for _, key := range Keys() {
		v := os.Getenv(envKey(key))
		if v == "" {
			continue
		}
		if err := fields[key].set(config, v); err != nil {
			return fmt.Errorf("%s: %w", envKey(key), err)
		}
	}
	return nil
}
