package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"vigil/internal/logging"
	"vigil/internal/store"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8080
	DefaultLogBufferSize = 1000

	StoreBackendMemory = "memory"
	StoreBackendSQLite = "sqlite"
)

type Settings struct {
	Listen ListenSettings `yaml:"listen"`
	Log    LogSettings    `yaml:"log"`
	Store  StoreSettings  `yaml:"store"`
	Roster []RosterAgent  `yaml:"roster"`
}

type ListenSettings struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogSettings struct {
	Level      string `yaml:"level"`
	BufferSize int    `yaml:"buffer_size"`
}

type StoreSettings struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type RosterAgent struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

func DefaultSettings() Settings {
	return Settings{
		Listen: ListenSettings{
			Host: "",
			Port: DefaultPort,
		},
		Log: LogSettings{
			Level:      string(logging.LevelInfo),
			BufferSize: DefaultLogBufferSize,
		},
		Store: StoreSettings{
			Backend: StoreBackendMemory,
		},
	}
}

// Load reads settings from a YAML file, filling gaps with defaults. A missing
// file is not an error; it just yields the defaults. Unknown keys are
// rejected so a typo never silently falls back.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings: %w", err)
	}

	settings = normalize(settings)
	if err := settings.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return settings, nil
}

func normalize(settings Settings) Settings {
	if settings.Listen.Port == 0 {
		settings.Listen.Port = DefaultPort
	}
	if strings.TrimSpace(settings.Log.Level) == "" {
		settings.Log.Level = string(logging.LevelInfo)
	}
	if settings.Log.BufferSize <= 0 {
		settings.Log.BufferSize = DefaultLogBufferSize
	}
	if strings.TrimSpace(settings.Store.Backend) == "" {
		settings.Store.Backend = StoreBackendMemory
	}
	return settings
}

func (s Settings) Validate() error {
	if s.Listen.Port < 1 || s.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", s.Listen.Port)
	}
	if _, ok := logging.ParseLevel(s.Log.Level); !ok {
		return fmt.Errorf("unknown log level %q", s.Log.Level)
	}
	switch s.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendSQLite:
		if strings.TrimSpace(s.Store.Path) == "" {
			return errors.New("sqlite backend requires store.path")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Store.Backend)
	}
	for i, agent := range s.Roster {
		if strings.TrimSpace(agent.ID) == "" {
			return fmt.Errorf("roster entry %d has no id", i)
		}
	}
	return nil
}

// LogLevel returns the parsed minimum level; Validate guarantees it parses.
func (s Settings) LogLevel() logging.Level {
	level, ok := logging.ParseLevel(s.Log.Level)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

func (s Settings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Listen.Host, s.Listen.Port)
}

// AgentRoster converts the configured roster, falling back to the built-in
// one when the settings file names no agents.
func (s Settings) AgentRoster() []store.Agent {
	if len(s.Roster) == 0 {
		return store.DefaultRoster()
	}
	agents := make([]store.Agent, 0, len(s.Roster))
	for _, entry := range s.Roster {
		name := entry.Name
		if strings.TrimSpace(name) == "" {
			name = entry.ID
		}
		agents = append(agents, store.Agent{
			ID:     entry.ID,
			Name:   name,
			Status: store.AgentAvailable,
			Lat:    entry.Lat,
			Lng:    entry.Lng,
		})
	}
	return agents
}
