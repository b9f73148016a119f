package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	configFileName = "config.json"
	envFileName    = ".env"

	defaultGatewayURL = "http://localhost:8080"
	defaultChunkSize  = 32 * 1024
	defaultUploadRate = 20
)

var validate = validator.New()

// Config captures runtime and persistent settings for contactsterm.
type Config struct {
	Username     string `json:"username" validate:"max=64"`
	UserID       string `json:"user_id" validate:"omitempty,uuid"`
	SessionToken string `json:"session_token"`
	GatewayURL   string `json:"gateway_url" validate:"required,url"`
	BaseDir      string `json:"base_dir"`
	LogDir       string `json:"log_dir"`
	DownloadsDir string `json:"downloads_dir"`
	ChunkSize    int    `json:"chunk_size" validate:"gt=0,lte=1048576"`
	UploadRate   int    `json:"upload_rate" validate:"gt=0"`
	LastUpdated  int64  `json:"last_updated"`
	configPath   string `json:"-"`
}

// Load retrieves persisted configuration or writes defaults if missing.
// Environment overrides, optionally read from .env files, are applied on top.
func Load() (*Config, error) {
	base, err := defaultBaseDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(base)
}

// LoadFrom is Load rooted at an explicit base directory.
func LoadFrom(base string) (*Config, error) {
	loadEnvFiles(base)
	cfgPath := filepath.Join(base, configFileName)
	cfg := &Config{configPath: cfgPath}
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		cfg = defaultAt(base)
		cfg.configPath = cfgPath
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
		cfg.configPath = cfgPath
		if cfg.BaseDir == "" {
			cfg.BaseDir = base
		}
	}
	cfg.applyEnv()
	cfg.populateDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default assembles a usable configuration with sensible defaults.
func Default() *Config {
	base, _ := defaultBaseDir()
	return defaultAt(base)
}

func defaultAt(base string) *Config {
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	if username == "" {
		username = "contactsterm-user"
	}
	cfg := &Config{
		Username:     username,
		GatewayURL:   defaultGatewayURL,
		BaseDir:      base,
		LogDir:       filepath.Join(base, "logs"),
		DownloadsDir: filepath.Join(base, "downloads"),
		ChunkSize:    defaultChunkSize,
		UploadRate:   defaultUploadRate,
		LastUpdated:  time.Now().Unix(),
	}
	cfg.populateDerived()
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid config: gateway_url must be http(s): %q", c.GatewayURL)
	}
	return nil
}

// Save persists configuration to disk.
func (c *Config) Save() error {
	c.populateDerived()
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return err
	}
	c.LastUpdated = time.Now().Unix()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configPath, data, 0o600)
}

// EnsureDirectories prepares the filesystem layout.
func (c *Config) EnsureDirectories() error {
	c.populateDerived()
	for _, dir := range []string{c.BaseDir, c.LogDir, c.DownloadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ConfigDir exposes the directory holding configuration artifacts.
func (c *Config) ConfigDir() string {
	dir, _ := filepath.Split(c.configPath)
	if dir == "" {
		base, _ := defaultBaseDir()
		return base
	}
	return strings.TrimSuffix(dir, string(filepath.Separator))
}

// ChannelURL returns the websocket address of a gateway channel
// ("contacts" or "messages") for the configured user.
func (c *Config) ChannelURL(channel string) (string, error) {
	u, err := url.Parse(c.GatewayURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + channel
	q := url.Values{}
	q.Set("user_id", c.UserID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("CONTACTSTERM_GATEWAY")); v != "" {
		c.GatewayURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTACTSTERM_USER_ID")); v != "" {
		c.UserID = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTACTSTERM_TOKEN")); v != "" {
		c.SessionToken = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTACTSTERM_USERNAME")); v != "" {
		c.Username = v
	}
}

func (c *Config) populateDerived() {
	if c.BaseDir == "" {
		base, _ := defaultBaseDir()
		c.BaseDir = base
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "logs")
	}
	if c.DownloadsDir == "" {
		c.DownloadsDir = filepath.Join(c.BaseDir, "downloads")
	}
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.UploadRate == 0 {
		c.UploadRate = defaultUploadRate
	}
	if c.configPath == "" {
		c.configPath = filepath.Join(c.BaseDir, configFileName)
	}
}

// loadEnvFiles reads .env from the base directory and the working
// directory. Missing files are ignored; already-set variables win.
func loadEnvFiles(base string) {
	for _, path := range []string{filepath.Join(base, envFileName), envFileName} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func defaultBaseDir() (string, error) {
	if dir := os.Getenv("CONTACTSTERM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".contactsterm"), nil
}
