// Package config loads the YAML settings shared by cnfd and cnfctl batch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/cnfconv/internal/common"
)

// Output formats a conversion can produce.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatPDF  = "pdf"
)

var knownFormats = map[string]bool{FormatText: true, FormatJSON: true, FormatYAML: true, FormatPDF: true}

// IsFormat reports whether name is a supported output format.
func IsFormat(name string) bool {
	return knownFormats[name]
}

type ManifestSigning struct {
	PrivateKey  string `yaml:"privateKey"`
	Certificate string `yaml:"certificate"`
}

type Config struct {
	Port            int              `yaml:"port"`
	StorageDir      string           `yaml:"storageDir"`
	Concurrency     int              `yaml:"concurrency"`
	OutputDir       string           `yaml:"outputDir"`
	Formats         []string         `yaml:"formats"`
	CacheFile       string           `yaml:"cacheFile"`
	Journal         string           `yaml:"journal"`
	Debug           bool             `yaml:"debug"`
	MaxUploadMB     int              `yaml:"maxUploadMB"`
	MaxDecodedMB    int              `yaml:"maxDecodedMB"`
	ManifestSigning ManifestSigning  `yaml:"manifestSigning"`
	Logs            common.LogConfig `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.StorageDir, "out")
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{FormatText}
	}
	for i, f := range cfg.Formats {
		cfg.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 64
	}
	if cfg.MaxDecodedMB <= 0 {
		cfg.MaxDecodedMB = 4 * cfg.MaxUploadMB
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
}

// Load reads path, applies defaults and resolves relative file paths
// against the directory holding the config file.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	cfg.OutputDir = resolvePath(cfg.OutputDir)
	cfg.CacheFile = resolvePath(cfg.CacheFile)
	cfg.Journal = resolvePath(cfg.Journal)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	cfg.ManifestSigning.PrivateKey = resolvePath(cfg.ManifestSigning.PrivateKey)
	cfg.ManifestSigning.Certificate = resolvePath(cfg.ManifestSigning.Certificate)
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	for _, f := range cfg.Formats {
		if !IsFormat(f) {
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}
	if (cfg.ManifestSigning.PrivateKey == "") != (cfg.ManifestSigning.Certificate == "") {
		errs = append(errs, errors.New("manifestSigning needs both privateKey and certificate"))
	}
	return errors.Join(errs...)
}
