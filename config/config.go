package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dapsync/model"

	"github.com/joho/godotenv"
)

// SyncMode controls whether the diff planner may skip unchanged tracks.
type SyncMode string

const (
	// ModeIncremental transfers only new or changed tracks.
	ModeIncremental SyncMode = "incremental"
	// ModeFull re-pushes every selected track regardless of fingerprint.
	ModeFull SyncMode = "full"
)

// Config stores the application configuration. Connection and path
// settings come from the environment (optionally via a .env file); the
// selection rules come from a YAML file referenced by SYNC_RULES.
type Config struct {
	// Library index.
	LibraryXML    string // Path to the exported library catalog XML
	LibraryPath   string // Base directory of the source music files
	PlaylistsPath string // Directory holding exported .m3u/.m3u8 playlists

	// Device transport.
	DeviceHost      string
	DevicePort      int
	DeviceMusicPath string // Root on the device under which tracks are placed
	ADBPath         string
	PushTimeout     time.Duration
	ShellTimeout    time.Duration

	// Sync state store.
	StateDBDriver string // "sqlite" (default) or "mysql"
	StateDBPath   string // sqlite file path
	StateDBDSN    string // mysql DSN, required when driver is mysql

	// Logging.
	LogLevel string
	LogFile  string

	Rules Rules
}

// Rules is the declarative selection and transfer policy, loaded from the
// sync-rules YAML file and validated before a run starts.
type Rules struct {
	Mode             SyncMode              `yaml:"mode"`
	Criteria         []model.CriteriaEntry `yaml:"criteria"`
	PreserveTags     bool                  `yaml:"preserve_tags"`
	EmbedArtwork     bool                  `yaml:"embed_artwork"`
	ArtworkSize      int                   `yaml:"artwork_size"`
	RetryLimit       int                   `yaml:"retry_limit"`
	WorkerCount      int                   `yaml:"worker_count"`
	SyncPlaylists    bool                  `yaml:"sync_playlists"`
	PlaylistMappings map[string]string     `yaml:"playlist_mappings"`
}

// rulesFile mirrors Rules with pointer fields so that absent keys can be
// told apart from explicit zero values when applying defaults.
type rulesFile struct {
	Mode             string                `yaml:"mode"`
	Criteria         []model.CriteriaEntry `yaml:"criteria"`
	PreserveTags     *bool                 `yaml:"preserve_tags"`
	EmbedArtwork     *bool                 `yaml:"embed_artwork"`
	ArtworkSize      *int                  `yaml:"artwork_size"`
	RetryLimit       *int                  `yaml:"retry_limit"`
	WorkerCount      *int                  `yaml:"worker_count"`
	SyncPlaylists    *bool                 `yaml:"sync_playlists"`
	PlaylistMappings map[string]string     `yaml:"playlist_mappings"`
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or
// defaults, then loads and validates the sync-rules file.
func Load() (*Config, error) {
	// godotenv.Load will not override variables already set in the env.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		LibraryXML:      getEnv("LIBRARY_XML", "Library.xml"),
		LibraryPath:     getEnv("LIBRARY_PATH", "."),
		PlaylistsPath:   getEnv("PLAYLISTS_PATH", "Playlists"),
		DeviceHost:      os.Getenv("DEVICE_HOST"),
		DevicePort:      getEnvInt("DEVICE_PORT", 5555),
		DeviceMusicPath: getEnv("DEVICE_MUSIC_PATH", "/sdcard/Music"),
		ADBPath:         getEnv("ADB_PATH", "adb"),
		PushTimeout:     time.Duration(getEnvInt("PUSH_TIMEOUT_SECONDS", 600)) * time.Second,
		ShellTimeout:    time.Duration(getEnvInt("SHELL_TIMEOUT_SECONDS", 30)) * time.Second,
		StateDBDriver:   getEnv("STATE_DB_DRIVER", "sqlite"),
		StateDBPath:     getEnv("STATE_DB_PATH", "data/sync.db"),
		StateDBDSN:      os.Getenv("STATE_DB_DSN"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
	}

	rulesPath := getEnv("SYNC_RULES", "sync-rules.yaml")
	rules, err := LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	cfg.Rules = *rules

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRules reads and validates the sync-rules YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules parses sync rules from raw YAML, applies defaults and
// validates the result. Malformed criteria are rejected here, not at
// resolution time.
func ParseRules(data []byte) (*Rules, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse sync rules: %w", err)
	}

	rules := &Rules{
		Mode:             ModeIncremental,
		Criteria:         rf.Criteria,
		PreserveTags:     boolOr(rf.PreserveTags, true),
		EmbedArtwork:     boolOr(rf.EmbedArtwork, true),
		ArtworkSize:      intOr(rf.ArtworkSize, 1000),
		RetryLimit:       intOr(rf.RetryLimit, 3),
		WorkerCount:      intOr(rf.WorkerCount, 1),
		SyncPlaylists:    boolOr(rf.SyncPlaylists, true),
		PlaylistMappings: rf.PlaylistMappings,
	}
	if rf.Mode != "" {
		rules.Mode = SyncMode(rf.Mode)
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate checks the rules for structural errors.
func (r *Rules) Validate() error {
	switch r.Mode {
	case ModeIncremental, ModeFull:
	default:
		return fmt.Errorf("invalid sync mode %q (expected incremental or full)", r.Mode)
	}

	if len(r.Criteria) == 0 {
		return fmt.Errorf("sync rules must define at least one criteria entry")
	}
	for i, entry := range r.Criteria {
		if entry.SelectorCount() == 0 {
			return fmt.Errorf("criteria entry %d selects nothing", i)
		}
		for _, sp := range entry.SmartPlaylists {
			if sp.IsZero() {
				return fmt.Errorf("criteria entry %d: smart playlist %q has no constraints", i, sp.Name)
			}
		}
		if entry.Custom != nil && entry.Custom.IsZero() {
			return fmt.Errorf("criteria entry %d: custom filter has no constraints", i)
		}
	}

	if r.ArtworkSize <= 0 {
		return fmt.Errorf("artwork_size must be positive, got %d", r.ArtworkSize)
	}
	if r.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must not be negative, got %d", r.RetryLimit)
	}
	if r.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be at least 1, got %d", r.WorkerCount)
	}
	return nil
}

// Validate checks environment-derived settings.
func (c *Config) Validate() error {
	if c.DeviceHost == "" {
		return fmt.Errorf("DEVICE_HOST must be set")
	}
	switch c.StateDBDriver {
	case "sqlite":
		if c.StateDBPath == "" {
			return fmt.Errorf("STATE_DB_PATH must be set for the sqlite state store")
		}
	case "mysql":
		if c.StateDBDSN == "" {
			return fmt.Errorf("STATE_DB_DSN must be set for the mysql state store")
		}
	default:
		return fmt.Errorf("unsupported STATE_DB_DRIVER %q", c.StateDBDriver)
	}
	return nil
}

// DeviceAddr returns the host:port pair the transport connects to.
func (c *Config) DeviceAddr() string {
	return fmt.Sprintf("%s:%d", c.DeviceHost, c.DevicePort)
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}
