package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/internal/config"
	"github.com/amonks/daybook/internal/testsupport"
	"github.com/amonks/daybook/migration"
	"github.com/amonks/daybook/todo"
)

func TestLoad_NotFound(t *testing.T) {
	testsupport.SetupTestHome(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.Store.Path != "" {
		t.Error("expected empty store path")
	}
}

func TestLoad_MissingOverride(t *testing.T) {
	testsupport.SetupTestHome(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a missing override to fail, got %v", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	testsupport.WriteGlobalConfig(t, homeDir, "[store\npath = 1")

	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	testsupport.WriteGlobalConfig(t, homeDir, "[store]\ndatabase = \"x.db\"\n")

	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for an unknown key")
	}
}

func TestLoad_UsesXDGConfigHome(t *testing.T) {
	testsupport.SetupTestHome(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if err := os.MkdirAll(filepath.Join(xdg, "daybook"), 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(xdg, "daybook", "config.toml"), []byte("[board]\nwindow = \"current-day\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Board.Window != "current-day" {
		t.Errorf("Window = %q, expected %q", cfg.Board.Window, "current-day")
	}
}

func TestLoad_OverrideWinsForDefinedKeys(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	testsupport.WriteGlobalConfig(t, homeDir, `
[store]
path = "~/global.db"

[todo]
default-context = "work"

[migration]
policy = "migrate-and-persist"
batch-size = 10

[log]
level = "debug"
`)

	overridePath := filepath.Join(t.TempDir(), "daybook.toml")
	override := `
[todo]
default-context = ""

[migration]
batch-size = 25
`
	if err := os.WriteFile(overridePath, []byte(override), 0o644); err != nil {
		t.Fatalf("failed to write override: %v", err)
	}

	cfg, err := config.Load(overridePath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Store.Path != "~/global.db" {
		t.Errorf("Path = %q, expected the global value", cfg.Store.Path)
	}
	if cfg.Todo.DefaultContext != "" {
		t.Errorf("DefaultContext = %q, expected an explicit empty override", cfg.Todo.DefaultContext)
	}
	if cfg.Migration.Policy != "migrate-and-persist" || cfg.Migration.BatchSize != 25 {
		t.Errorf("Migration = %+v, expected global policy with overridden batch size", cfg.Migration)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, expected debug", cfg.Log.Level)
	}
}

func TestResolve_Defaults(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	settings, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("failed to resolve config: %v", err)
	}

	if expected := filepath.Join(homeDir, ".local", "share", "daybook", "daybook.db"); settings.StorePath != expected {
		t.Errorf("StorePath = %q, expected %q", settings.StorePath, expected)
	}
	if settings.PollInterval != config.DefaultPollInterval {
		t.Errorf("PollInterval = %s, expected %s", settings.PollInterval, config.DefaultPollInterval)
	}
	if settings.Anchor != todo.AnchorDue || settings.Location != time.UTC {
		t.Errorf("unexpected anchor %q or location %s", settings.Anchor, settings.Location)
	}
	if settings.Window != board.CurrentWeek || settings.Policy != migration.ReadOnly {
		t.Errorf("unexpected window %q or policy %q", settings.Window, settings.Policy)
	}
}

func TestResolve_Values(t *testing.T) {
	homeDir := testsupport.SetupTestHome(t)
	testsupport.WriteGlobalConfig(t, homeDir, `
[store]
path = "~/db/daybook.db"
poll-interval = "0"

[todo]
recurrence-anchor = "completion"

[board]
timezone = "America/New_York"
window = "current-month"
`)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	settings, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("failed to resolve config: %v", err)
	}

	if expected := filepath.Join(homeDir, "db", "daybook.db"); settings.StorePath != expected {
		t.Errorf("StorePath = %q, expected %q", settings.StorePath, expected)
	}
	if settings.PollInterval != 0 {
		t.Errorf("PollInterval = %s, expected polling disabled", settings.PollInterval)
	}
	if settings.Anchor != todo.AnchorCompletion {
		t.Errorf("Anchor = %q, expected completion", settings.Anchor)
	}
	if settings.Location.String() != "America/New_York" || settings.Window != board.CurrentMonth {
		t.Errorf("unexpected location %s or window %q", settings.Location, settings.Window)
	}
}

func TestResolve_Invalid(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
	}{
		{name: "poll interval", cfg: config.Config{Store: config.Store{PollInterval: "often"}}},
		{name: "negative poll interval", cfg: config.Config{Store: config.Store{PollInterval: "-1s"}}},
		{name: "anchor", cfg: config.Config{Todo: config.Todo{RecurrenceAnchor: "whenever"}}},
		{name: "timezone", cfg: config.Config{Board: config.Board{Timezone: "Mars/Olympus"}}},
		{name: "window", cfg: config.Config{Board: config.Board{Window: "fortnight"}}},
		{name: "custom window", cfg: config.Config{Board: config.Board{Window: "custom"}}},
		{name: "policy", cfg: config.Config{Migration: config.Migration{Policy: "yolo"}}},
		{name: "batch size", cfg: config.Config{Migration: config.Migration{BatchSize: -1}}},
		{name: "log level", cfg: config.Config{Log: config.Log{Level: "loud"}}},
	}
	testsupport.SetupTestHome(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.cfg.Resolve(); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}
