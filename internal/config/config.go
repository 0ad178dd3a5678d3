// Package config loads caseboard settings from a YAML file, with
// CASEBOARD_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"caseboard/internal/board"
	"caseboard/internal/perm"
)

const (
	// Dir is the per-user directory holding the default config, database and logs.
	Dir = ".caseboard"

	envPrefix = "CASEBOARD_"
)

const defaultConfigYAML = `# caseboard configuration

# Where the sqlite database and logs live when no explicit paths are set.
# data_dir: ~/.caseboard

# Talk to a caseboard server instead of a local database.
# remote_url: http://localhost:8080
# token: <bearer token from "caseboard token issue">

page_size: 20
initial_window: 20
window_step: 20
proximity_rows: 20
activation_distance: 3

log_level: info

# Optional read cache in front of the database.
# redis_url: redis://localhost:6379/0
# cache_ttl: 5m

files:
  kind: local
  # dir: ~/.caseboard/files
  # base_url: http://localhost:8080/files

# identity used when writing to the local database directly
identity:
  subject: local
  name: You
  role: admin
`

type Files struct {
	Kind             string `yaml:"kind"`
	Dir              string `yaml:"dir,omitempty"`
	BaseURL          string `yaml:"base_url,omitempty"`
	MaxBytes         int64  `yaml:"max_bytes,omitempty"`
	DriveFolderID    string `yaml:"drive_folder_id,omitempty"`
	DriveCredentials string `yaml:"drive_credentials,omitempty"`
	DriveToken       string `yaml:"drive_token,omitempty"`
}

type Auth struct {
	Secret   string `yaml:"secret,omitempty"`
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Audience string `yaml:"audience,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
}

// Config models config.yaml.
type Config struct {
	DataDir   string `yaml:"data_dir,omitempty"`
	DBPath    string `yaml:"db_path,omitempty"`
	RemoteURL string `yaml:"remote_url,omitempty"`
	Token     string `yaml:"token,omitempty"`

	PageSize           int `yaml:"page_size"`
	InitialWindow      int `yaml:"initial_window"`
	WindowStep         int `yaml:"window_step"`
	ProximityRows      int `yaml:"proximity_rows"`
	ActivationDistance int `yaml:"activation_distance"`

	LogLevel string        `yaml:"log_level,omitempty"`
	RedisURL string        `yaml:"redis_url,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`

	Files    Files         `yaml:"files"`
	Auth     Auth          `yaml:"auth,omitempty"`
	Identity perm.Identity `yaml:"identity"`
	Listen   string        `yaml:"listen,omitempty"`

	// Path is where the config was loaded from (empty for defaults only).
	Path string `yaml:"-"`
}

func Default() Config {
	bc := board.DefaultConfig()
	return Config{
		PageSize:           bc.PageSize,
		InitialWindow:      bc.InitialWindow,
		WindowStep:         bc.WindowStep,
		ProximityRows:      bc.ProximityRows,
		ActivationDistance: bc.ActivationDistance,
		LogLevel:           "info",
		Files:              Files{Kind: "local"},
		Identity:           perm.Identity{Subject: "local", Name: "You", Role: perm.RoleAdmin},
		Listen:             ":8080",
	}
}

// DefaultPath is ~/.caseboard/config.yaml, or $CASEBOARD_CONFIG when set.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, Dir, "config.yaml"), nil
}

// Load reads path (a missing file is fine), applies environment overrides
// and fills defaults. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes a commented starter config to path unless one exists.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(envPrefix + k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) (int, error) {
	v := os.Getenv(envPrefix + k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return d, fmt.Errorf("%s%s: %w", envPrefix, k, err)
	}
	return n, nil
}

func (c *Config) applyEnv() error {
	c.DataDir = envOr("DATA_DIR", c.DataDir)
	c.DBPath = envOr("DB", c.DBPath)
	c.RemoteURL = envOr("REMOTE", c.RemoteURL)
	c.Token = envOr("TOKEN", c.Token)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)
	c.Listen = envOr("LISTEN", c.Listen)
	c.Auth.Secret = envOr("AUTH_SECRET", c.Auth.Secret)
	c.Auth.JWKSURL = envOr("JWKS_URL", c.Auth.JWKSURL)
	c.Files.Kind = envOr("FILES_KIND", c.Files.Kind)
	c.Files.Dir = envOr("FILES_DIR", c.Files.Dir)
	c.Files.DriveFolderID = envOr("DRIVE_FOLDER_ID", c.Files.DriveFolderID)
	c.Files.DriveCredentials = envOr("DRIVE_CREDENTIALS", c.Files.DriveCredentials)

	var err error
	if c.PageSize, err = envInt("PAGE_SIZE", c.PageSize); err != nil {
		return err
	}
	if c.ActivationDistance, err = envInt("ACTIVATION_DISTANCE", c.ActivationDistance); err != nil {
		return err
	}
	if v := os.Getenv(envPrefix + "CACHE_TTL"); v != "" {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", envPrefix, perr)
		}
		c.CacheTTL = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.InitialWindow <= 0 {
		c.InitialWindow = def.InitialWindow
	}
	if c.WindowStep <= 0 {
		c.WindowStep = def.WindowStep
	}
	if c.ProximityRows <= 0 {
		c.ProximityRows = def.ProximityRows
	}
	if c.ActivationDistance <= 0 {
		c.ActivationDistance = def.ActivationDistance
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	c.Files.Kind = strings.ToLower(strings.TrimSpace(c.Files.Kind))
	if c.Files.Kind == "" {
		c.Files.Kind = def.Files.Kind
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = def.Listen
	}
	c.DataDir = expandHome(c.DataDir)
	c.DBPath = expandHome(c.DBPath)
	c.Files.Dir = expandHome(c.Files.Dir)
	c.Files.DriveCredentials = expandHome(c.Files.DriveCredentials)
	c.Files.DriveToken = expandHome(c.Files.DriveToken)
	c.RemoteURL = strings.TrimRight(strings.TrimSpace(c.RemoteURL), "/")
}

func (c Config) Validate() error {
	switch c.Files.Kind {
	case "local":
	case "drive":
		if strings.TrimSpace(c.Files.DriveFolderID) == "" {
			return errors.New("files.drive_folder_id is required for drive")
		}
		if strings.TrimSpace(c.Files.DriveCredentials) == "" {
			return errors.New("files.drive_credentials is required for drive")
		}
	default:
		return fmt.Errorf("files.kind must be local or drive, got %q", c.Files.Kind)
	}
	if c.Auth.Secret != "" && c.Auth.JWKSURL != "" {
		return errors.New("auth.secret and auth.jwks_url are mutually exclusive")
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		return fmt.Errorf("remote_url must be http(s), got %q", c.RemoteURL)
	}
	if c.CacheTTL < 0 {
		return errors.New("cache_ttl must not be negative")
	}
	return nil
}

// Board returns the board tunables.
func (c Config) Board() board.Config {
	return board.Config{
		PageSize:           c.PageSize,
		InitialWindow:      c.InitialWindow,
		WindowStep:         c.WindowStep,
		ProximityRows:      c.ProximityRows,
		ActivationDistance: c.ActivationDistance,
	}
}

// DataRoot is DataDir, or ~/.caseboard.
func (c Config) DataRoot() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, Dir), nil
}

func (c Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	root, err := c.DataRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "caseboard.sqlite"), nil
}

func (c Config) LogPath() (string, error) {
	root, err := c.DataRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "logs", "caseboard.log"), nil
}

func (c Config) FilesDir() (string, error) {
	if c.Files.Dir != "" {
		return c.Files.Dir, nil
	}
	root, err := c.DataRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "files"), nil
}

func expandHome(p string) string {
	p = strings.TrimSpace(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
