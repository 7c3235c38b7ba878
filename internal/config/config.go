// Package config loads and validates PicManager YAML configuration.
// It applies defaults so the daemon can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// SnapshotConfig controls the database backup behavior.
type SnapshotConfig struct {
	Path string `yaml:"path"`
	// CommitThreshold is the number of committed writes that triggers a
	// snapshot between the daily scheduled ones.
	CommitThreshold int `yaml:"commit_threshold"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// SessionConfig holds session lifetime policy.
type SessionConfig struct {
	UserTTL  time.Duration `yaml:"user_ttl"`
	GuestTTL time.Duration `yaml:"guest_ttl"`
}

// GuestConfig holds the unauthenticated contribution policy.
type GuestConfig struct {
	DailyLimit int `yaml:"daily_limit"`
}

// Config mirrors the picmanager.yaml schema.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	DataDir  string         `yaml:"data_dir"`
	HTTP     HTTPConfig     `yaml:"http"`
	Session  SessionConfig  `yaml:"session"`
	Guest    GuestConfig    `yaml:"guest"`
}

// StoreDir is where approved image files live.
func (c Config) StoreDir() string { return filepath.Join(c.DataDir, "store") }

// PendingDir is the quarantine for files awaiting review.
func (c Config) PendingDir() string { return filepath.Join(c.DataDir, "pending") }

// Load reads a YAML config file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	ApplyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	c.DB.Path = strings.TrimSpace(c.DB.Path)
	c.Snapshot.Path = strings.TrimSpace(c.Snapshot.Path)
	c.DataDir = strings.TrimSpace(c.DataDir)
	return c, nil
}

// ApplyDefaults populates zero-values with sane defaults.
func ApplyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/picmanager.db"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = c.DB.Path + ".snapshot"
	}
	if c.Snapshot.CommitThreshold == 0 {
		c.Snapshot.CommitThreshold = 50
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8178
	}
	if c.HTTP.MaxUploadMB == 0 {
		c.HTTP.MaxUploadMB = 50
	}
	if c.Session.UserTTL == 0 {
		c.Session.UserTTL = 7 * 24 * time.Hour
	}
	if c.Session.GuestTTL == 0 {
		c.Session.GuestTTL = 24 * time.Hour
	}
	if c.Guest.DailyLimit == 0 {
		c.Guest.DailyLimit = 5
	}
}

// validate performs sanity checks; it does not mutate the config.
func validate(c *Config) error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db.path is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if c.Snapshot.CommitThreshold < 1 {
		return errors.New("snapshot.commit_threshold is invalid")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port is invalid")
	}
	if c.HTTP.MaxUploadMB < 1 || c.HTTP.MaxUploadMB > 1024 {
		return errors.New("http.max_upload_mb is invalid")
	}
	if c.Session.UserTTL <= c.Session.GuestTTL {
		return errors.New("session.user_ttl must exceed session.guest_ttl")
	}
	if c.Guest.DailyLimit < 1 {
		return errors.New("guest.daily_limit is invalid")
	}
	return nil
}
