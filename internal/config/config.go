// Package config handles loading daybook config.toml files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/internal/paths"
	"github.com/amonks/daybook/migration"
	"github.com/amonks/daybook/todo"
)

// DefaultPollInterval is how often the SQLite store looks for writes made
// by other processes.
const DefaultPollInterval = 2 * time.Second

// Config represents a daybook config.toml file.
type Config struct {
	Store     Store     `toml:"store"`
	Todo      Todo      `toml:"todo"`
	Board     Board     `toml:"board"`
	Migration Migration `toml:"migration"`
	Log       Log       `toml:"log"`
}

// Store contains storage configuration.
type Store struct {
	// Path is the SQLite database file. May start with ~/.
	Path string `toml:"path"`

	// PollInterval is a Go duration string. "0" disables polling.
	PollInterval string `toml:"poll-interval"`
}

// Todo contains defaults for new todos.
type Todo struct {
	DefaultContext   string `toml:"default-context"`
	RecurrenceAnchor string `toml:"recurrence-anchor"`
}

// Board contains board defaults.
type Board struct {
	// Timezone is an IANA name. Calendar days are computed in it.
	Timezone string `toml:"timezone"`
	Window   string `toml:"window"`
}

// Migration contains migration settings.
type Migration struct {
	Policy    string `toml:"policy"`
	BatchSize int    `toml:"batch-size"`
}

// Log contains logging settings.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Load loads the global config file merged with the file at overridePath,
// if one is given. Keys the override defines win. A missing global file is
// not an error; a missing override is.
func Load(overridePath string) (*Config, error) {
	globalPath, err := paths.DefaultConfigPath()
	if err != nil {
		return nil, err
	}

	globalCfg, globalMeta, err := loadConfigFile(globalPath)
	if err != nil {
		return nil, err
	}
	if overridePath == "" {
		return mergeConfigs(globalCfg, nil, globalMeta, toml.MetaData{}), nil
	}

	if _, err := os.Stat(overridePath); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", overridePath, err)
	}
	overrideCfg, overrideMeta, err := loadConfigFile(overridePath)
	if err != nil {
		return nil, err
	}
	return mergeConfigs(globalCfg, overrideCfg, globalMeta, overrideMeta), nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: unknown key %q", path, undecoded[0].String())
	}

	return &cfg, meta, nil
}

func mergeConfigs(globalCfg, overrideCfg *Config, globalMeta, overrideMeta toml.MetaData) *Config {
	if globalCfg == nil {
		globalCfg = &Config{}
	}
	if overrideCfg == nil {
		overrideCfg = &Config{}
	}

	merged := Config{}
	merged.Store.Path = mergeString(overrideMeta.IsDefined("store", "path"), overrideCfg.Store.Path, globalCfg.Store.Path)
	merged.Store.PollInterval = mergeString(overrideMeta.IsDefined("store", "poll-interval"), overrideCfg.Store.PollInterval, globalCfg.Store.PollInterval)
	merged.Todo.DefaultContext = mergeString(overrideMeta.IsDefined("todo", "default-context"), overrideCfg.Todo.DefaultContext, globalCfg.Todo.DefaultContext)
	merged.Todo.RecurrenceAnchor = mergeString(overrideMeta.IsDefined("todo", "recurrence-anchor"), overrideCfg.Todo.RecurrenceAnchor, globalCfg.Todo.RecurrenceAnchor)
	merged.Board.Timezone = mergeString(overrideMeta.IsDefined("board", "timezone"), overrideCfg.Board.Timezone, globalCfg.Board.Timezone)
	merged.Board.Window = mergeString(overrideMeta.IsDefined("board", "window"), overrideCfg.Board.Window, globalCfg.Board.Window)
	merged.Migration.Policy = mergeString(overrideMeta.IsDefined("migration", "policy"), overrideCfg.Migration.Policy, globalCfg.Migration.Policy)
	merged.Log.Level = mergeString(overrideMeta.IsDefined("log", "level"), overrideCfg.Log.Level, globalCfg.Log.Level)
	merged.Log.File = mergeString(overrideMeta.IsDefined("log", "file"), overrideCfg.Log.File, globalCfg.Log.File)
	if overrideMeta.IsDefined("migration", "batch-size") {
		merged.Migration.BatchSize = overrideCfg.Migration.BatchSize
	} else if globalMeta.IsDefined("migration", "batch-size") {
		merged.Migration.BatchSize = globalCfg.Migration.BatchSize
	}

	return &merged
}

func mergeString(overrideDefined bool, overrideValue, globalValue string) string {
	value := globalValue
	if overrideDefined {
		value = overrideValue
	}
	return strings.TrimSpace(value)
}

// Settings are the parsed, defaulted values of a Config.
type Settings struct {
	StorePath      string
	PollInterval   time.Duration
	DefaultContext string
	Anchor         todo.Anchor
	Location       *time.Location
	Window         board.WindowKind
	Policy         migration.Policy
	BatchSize      int
	LogLevel       string
	LogFile        string
}

// Resolve validates the config and fills in defaults.
func (c *Config) Resolve() (Settings, error) {
	storePath, err := paths.ResolveWithDefault(c.Store.Path, paths.DefaultStorePath)
	if err != nil {
		return Settings{}, err
	}
	storePath, err = paths.ExpandHome(storePath)
	if err != nil {
		return Settings{}, err
	}

	interval := DefaultPollInterval
	if c.Store.PollInterval != "" {
		interval, err = parseInterval(c.Store.PollInterval)
		if err != nil {
			return Settings{}, err
		}
	}

	anchor, err := todo.ParseAnchor(c.Todo.RecurrenceAnchor)
	if err != nil {
		return Settings{}, fmt.Errorf("todo.recurrence-anchor: %w", err)
	}

	loc := time.UTC
	if c.Board.Timezone != "" {
		loc, err = time.LoadLocation(c.Board.Timezone)
		if err != nil {
			return Settings{}, fmt.Errorf("board.timezone: %w", err)
		}
	}

	window, err := board.ParseWindow(c.Board.Window, "", "")
	if err != nil {
		return Settings{}, fmt.Errorf("board.window: %w", err)
	}
	if window.Kind == board.Custom {
		return Settings{}, fmt.Errorf("board.window: %w: custom needs explicit dates", board.ErrInvalidWindow)
	}

	policy, err := migration.ParsePolicy(c.Migration.Policy)
	if err != nil {
		return Settings{}, fmt.Errorf("migration.policy: %w", err)
	}
	if c.Migration.BatchSize < 0 {
		return Settings{}, fmt.Errorf("migration.batch-size must not be negative, got %d", c.Migration.BatchSize)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return Settings{}, fmt.Errorf("log.level: %w", err)
	}
	logFile, err := paths.ExpandHome(c.Log.File)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		StorePath:      storePath,
		PollInterval:   interval,
		DefaultContext: c.Todo.DefaultContext,
		Anchor:         anchor,
		Location:       loc,
		Window:         window.Kind,
		Policy:         policy,
		BatchSize:      c.Migration.BatchSize,
		LogLevel:       c.Log.Level,
		LogFile:        logFile,
	}, nil
}

func parseInterval(value string) (time.Duration, error) {
	interval, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("store.poll-interval: %w", err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("store.poll-interval must not be negative, got %s", value)
	}
	return interval, nil
}
