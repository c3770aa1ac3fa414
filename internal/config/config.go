package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/eargollo/taxsheet/internal/sheet"
)

// Config holds all configuration loaded from config.yaml (or config.toml).
type Config struct {
	HTTPAddr       string        `yaml:"http_addr"       toml:"http_addr"       json:"-"`
	DBPath         string        `yaml:"db_path"         toml:"db_path"         json:"-"`
	LogLevel       string        `yaml:"log_level"       toml:"log_level"       json:"-"`
	LogCapacity    int           `yaml:"log_capacity"    toml:"log_capacity"    json:"log_capacity"`
	Extension      string        `yaml:"extension"       toml:"extension"       json:"extension"`
	SourceDir      string        `yaml:"source_dir"      toml:"source_dir"      json:"source_dir"`
	DestinationDir string        `yaml:"destination_dir" toml:"destination_dir" json:"destination_dir"`
	PickerCommand  []string      `yaml:"picker_command"  toml:"picker_command"  json:"picker_command"`
	Schedule       string        `yaml:"schedule"        toml:"schedule"        json:"schedule"`
	RetentionDays  int           `yaml:"retention_days"  toml:"retention_days"  json:"retention_days"`
	Columns        sheet.Columns `yaml:"columns"         toml:"columns"         json:"columns"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "data/taxsheet.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogCapacity == 0 {
		c.LogCapacity = 1000
	}
	if c.Extension == "" {
		c.Extension = ".xlsx"
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.LogCapacity < 0 {
		errs = append(errs, fmt.Errorf("log_capacity must be positive, got %d", c.LogCapacity))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays))
	}
	if c.Schedule != "" && (c.SourceDir == "" || c.DestinationDir == "") {
		errs = append(errs, errors.New("schedule requires source_dir and destination_dir"))
	}
	return errors.Join(errs...)
}

// Load reads and parses the config file at path. Files ending in .toml are
// parsed as TOML, anything else as YAML.
// If the file does not exist, Load returns a default Config so the tool
// can start without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := decode(f, filepath.Ext(path), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

func decode(r io.Reader, ext string, cfg *Config) error {
	if strings.EqualFold(ext, ".toml") {
		return toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg)
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
