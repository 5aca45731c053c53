package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formbase.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: 1
mongo:
  connection_string: mongodb://localhost:27017
  database: formbase
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.RetentionDays != 30 {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Mongo.Database != "formbase" {
		t.Errorf("database = %q", cfg.Mongo.Database)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := writeConfig(t, `
version: 99
mongo:
  connection_string: mongodb://localhost:27017
  database: formbase
`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config version") {
		t.Errorf("err = %v, want version error", err)
	}
}

func TestLoadResolvesEnvSecret(t *testing.T) {
	t.Setenv("FORMBASE_MONGO_URI", "mongodb://secret-host:27017")
	path := writeConfig(t, `
version: 1
mongo:
  connection_string: ${ENV:FORMBASE_MONGO_URI}
  database: formbase
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mongo.ConnectionString != "mongodb://secret-host:27017" {
		t.Errorf("connection string = %q, want resolved env value", cfg.Mongo.ConnectionString)
	}
}

func TestLoadMissingEnvSecretFails(t *testing.T) {
	path := writeConfig(t, `
version: 1
mongo:
  connection_string: ${ENV:FORMBASE_MISSING_VAR}
  database: formbase
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded, want missing env var error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "formbase.yaml")
	cfg := Default()
	cfg.Server.Port = 9090

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", loaded.Server.Port)
	}
}

func TestResolveValuePassthrough(t *testing.T) {
	got, err := ResolveValue("plain-value")
	if err != nil || got != "plain-value" {
		t.Errorf("ResolveValue() = %q, %v", got, err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
}
