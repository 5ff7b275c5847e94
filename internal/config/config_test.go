package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Cascade.Threshold != 0.5 {
		t.Errorf("expected Threshold 0.5, got %f", config.Cascade.Threshold)
	}
	if config.Epidemic.InfectionProbability != 0.5 {
		t.Errorf("expected InfectionProbability 0.5, got %f", config.Epidemic.InfectionProbability)
	}
	if config.Epidemic.DeathProbability != 0 {
		t.Errorf("expected DeathProbability 0, got %f", config.Epidemic.DeathProbability)
	}
	if config.Epidemic.Lifespan != 5 {
		t.Errorf("expected Lifespan 5, got %d", config.Epidemic.Lifespan)
	}
	if config.Roles.Vaccination != 0 || config.Roles.Shelter != "" {
		t.Errorf("expected no shelter or vaccination by default, got %+v", config.Roles)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestModelConfigs(t *testing.T) {
	config := Default()
	config.Cascade.Threshold = 0.3
	config.Epidemic.Lifespan = 9

	if got := config.CascadeModel().Threshold; got != 0.3 {
		t.Errorf("CascadeModel().Threshold = %f, want 0.3", got)
	}
	ep := config.EpidemicModel()
	if ep.Lifespan != 9 || ep.InfectionProbability != 0.5 {
		t.Errorf("EpidemicModel() = %+v", ep)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
cascade:
  threshold: 0.25

epidemic:
  death_probability: 0.1
  lifespan: 12

roles:
  shelter: "a,b"
  vaccination: 0.2

logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Cascade.Threshold != 0.25 {
		t.Errorf("expected Threshold 0.25, got %f", config.Cascade.Threshold)
	}
	if config.Epidemic.DeathProbability != 0.1 || config.Epidemic.Lifespan != 12 {
		t.Errorf("unexpected epidemic config %+v", config.Epidemic)
	}
	// Keys absent from the file keep their defaults.
	if config.Epidemic.InfectionProbability != 0.5 {
		t.Errorf("expected default InfectionProbability 0.5, got %f", config.Epidemic.InfectionProbability)
	}
	if config.Roles.Shelter != "a,b" || config.Roles.Vaccination != 0.2 {
		t.Errorf("unexpected roles config %+v", config.Roles)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("cascade: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_HomeFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dir := filepath.Join(home, ".contagion")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("epidemic:\n  lifespan: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONTAGION_EPIDEMIC_DEATH_PROBABILITY", "0.3")
	t.Setenv("CONTAGION_LOGGING_LEVEL", "trace")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Epidemic.Lifespan != 8 {
		t.Errorf("expected Lifespan 8 from file, got %d", config.Epidemic.Lifespan)
	}
	if config.Epidemic.DeathProbability != 0.3 {
		t.Errorf("expected DeathProbability 0.3 from env, got %f", config.Epidemic.DeathProbability)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Level 'trace' from env, got '%s'", config.Logging.Level)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONTAGION_EPIDEMIC_LIFESPAN", "forever")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "CONTAGION_EPIDEMIC_LIFESPAN") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ContagionConfig)
		wantErr string
	}{
		{"threshold above 1", func(c *ContagionConfig) { c.Cascade.Threshold = 1.5 }, "cascade.threshold"},
		{"negative infection", func(c *ContagionConfig) { c.Epidemic.InfectionProbability = -0.1 }, "epidemic.infection_probability"},
		{"death above 1", func(c *ContagionConfig) { c.Epidemic.DeathProbability = 2 }, "epidemic.death_probability"},
		{"zero lifespan", func(c *ContagionConfig) { c.Epidemic.Lifespan = 0 }, "epidemic.lifespan"},
		{"vaccination above 1", func(c *ContagionConfig) { c.Roles.Vaccination = 1.1 }, "roles.vaccination"},
		{"bad shelter list", func(c *ContagionConfig) { c.Roles.Shelter = "a,,b" }, "roles.shelter"},
		{"bad log level", func(c *ContagionConfig) { c.Logging.Level = "verbose" }, "logging.level"},
		{"boundary probabilities", func(c *ContagionConfig) {
			c.Cascade.Threshold = 0
			c.Epidemic.DeathProbability = 1
		}, ""},
		{"shelter proportion", func(c *ContagionConfig) { c.Roles.Shelter = "0.4" }, ""},
		{"empty log level", func(c *ContagionConfig) { c.Logging.Level = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	config := Default()

	if err := config.Set("epidemic.lifespan", "7"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := config.Get("epidemic.lifespan")
	if err != nil || v != 7 {
		t.Errorf("Get(epidemic.lifespan) = %v, %v; want 7", v, err)
	}

	if err := config.Set("cascade.threshold", "2"); err == nil {
		t.Error("expected out-of-range threshold to be rejected")
	}
	if config.Cascade.Threshold != 0.5 {
		t.Errorf("rejected Set changed threshold to %f", config.Cascade.Threshold)
	}

	if err := config.Set("cascade.threshold", "abc"); err == nil {
		t.Error("expected non-numeric threshold to be rejected")
	}

	if _, err := config.Get("llm.provider"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get(unknown) err = %v, want ErrUnknownKey", err)
	}
	if err := config.Set("llm.provider", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Set(unknown) err = %v, want ErrUnknownKey", err)
	}
}

func TestKeysAreSortedAndGettable(t *testing.T) {
	config := Default()
	keys := Keys()
	for i, k := range keys {
		if i > 0 && keys[i-1] >= k {
			t.Errorf("keys not sorted at %q", k)
		}
		if _, err := config.Get(k); err != nil {
			t.Errorf("Get(%q): %v", k, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Roles.Shelter = "0.1"
	config.Epidemic.RecoveryProbability = 0.4

	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Roles.Shelter != "0.1" || loaded.Epidemic.RecoveryProbability != 0.4 {
		t.Errorf("round trip lost values: %+v", loaded)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
