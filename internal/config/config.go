package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/danhigham/nickclock/internal/domain"
)

// Config is the persisted record. Keys follow the desktop app's settings
// file, so an exported JSON settings file loads as is.
type Config struct {
	APIID            int    `yaml:"apiId,omitempty"`
	APIHash          string `yaml:"apiHash,omitempty"`
	Session          string `yaml:"session,omitempty"`
	AutoUpdate       bool   `yaml:"autoUpdate"`
	Timezone         int    `yaml:"timezone"`
	StartInTray      bool   `yaml:"startInTray"`
	AutoStart        bool   `yaml:"autoStart"`
	OriginalNickname string `yaml:"originalNickname,omitempty"`
	LogLevel         string `yaml:"logLevel,omitempty"`
}

func (c Config) Credentials() domain.Credentials {
	return domain.Credentials{APIID: c.APIID, APIHash: c.APIHash}
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "nickclock")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Save writes cfg to path through a temp file in the same directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Store serialises access to the config file.
type Store struct {
	path string

	mu  sync.Mutex
	cfg Config
}

func Open(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: *cfg}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies fn to a copy and persists it. The in-memory config only
// changes if the save succeeds.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	if err := Save(s.path, &next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}
