package config

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/logging"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Listen.Port != DefaultPort {
		t.Fatalf("expected default port, got %d", settings.Listen.Port)
	}
	if settings.Store.Backend != StoreBackendMemory {
		t.Fatalf("expected memory backend, got %q", settings.Store.Backend)
	}
	if settings.LogLevel() != logging.LevelInfo {
		t.Fatalf("expected info level, got %q", settings.LogLevel())
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := writeSettingsFile(t, `
listen:
  host: 127.0.0.1
  port: 9090
  allowed_origins:
    - app.example
log:
  level: debug
store:
  backend: sqlite
  path: /tmp/vigil.db
roster:
  - id: AGENT-100
    name: Agent North
    lat: 51.5
    lng: -0.12
`)

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.ListenAddr() != "127.0.0.1:9090" {
		t.Fatalf("unexpected listen addr %q", settings.ListenAddr())
	}
	if settings.LogLevel() != logging.LevelDebug {
		t.Fatalf("unexpected level %q", settings.LogLevel())
	}
	if settings.Store.Backend != StoreBackendSQLite || settings.Store.Path != "/tmp/vigil.db" {
		t.Fatalf("unexpected store settings %+v", settings.Store)
	}
	if len(settings.Listen.AllowedOrigins) != 1 || settings.Listen.AllowedOrigins[0] != "app.example" {
		t.Fatalf("unexpected origins %v", settings.Listen.AllowedOrigins)
	}

	roster := settings.AgentRoster()
	if len(roster) != 1 || roster[0].ID != "AGENT-100" || roster[0].Name != "Agent North" {
		t.Fatalf("unexpected roster %+v", roster)
	}
	if roster[0].Status != "available" {
		t.Fatalf("roster agent must start available, got %q", roster[0].Status)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeSettingsFile(t, "log:\n  level: warning\n")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Listen.Port != DefaultPort {
		t.Fatalf("expected default port, got %d", settings.Listen.Port)
	}
	if settings.LogLevel() != logging.LevelWarning {
		t.Fatalf("expected warning level, got %q", settings.LogLevel())
	}
	if len(settings.AgentRoster()) != 6 {
		t.Fatalf("expected built-in roster, got %d agents", len(settings.AgentRoster()))
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeSettingsFile(t, "listne:\n  port: 9090\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults ok", mutate: func(*Settings) {}},
		{name: "port too high", mutate: func(s *Settings) { s.Listen.Port = 70000 }, wantErr: true},
		{name: "bad level", mutate: func(s *Settings) { s.Log.Level = "loud" }, wantErr: true},
		{name: "bad backend", mutate: func(s *Settings) { s.Store.Backend = "postgres" }, wantErr: true},
		{name: "sqlite without path", mutate: func(s *Settings) { s.Store.Backend = StoreBackendSQLite }, wantErr: true},
		{name: "sqlite with path", mutate: func(s *Settings) {
			s.Store.Backend = StoreBackendSQLite
			s.Store.Path = "/tmp/x.db"
		}},
		{name: "roster entry without id", mutate: func(s *Settings) {
			s.Roster = []RosterAgent{{Name: "nameless"}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(&settings)
			err := settings.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
