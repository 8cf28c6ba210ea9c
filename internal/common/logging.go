package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger = log.New(os.Stderr, "[cnfconv] ", log.LstdFlags|log.Lmicroseconds)
	debug  atomic.Bool
)

// LogConfig describes the rotating log file. An empty Directory keeps
// logging on stderr only.
type LogConfig struct {
	Directory  string `yaml:"directory"`
	FileName   string `yaml:"fileName"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// SetupLogging sends log output to stderr and, when a directory is
// configured, to a size-rotated file in it. The returned writer is the
// combined destination, for callers that want to log through it directly
// (HTTP access logs).
func SetupLogging(cfg LogConfig) (io.Writer, error) {
	if cfg.Directory == "" {
		logger.SetOutput(os.Stderr)
		return os.Stderr, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := cfg.FileName
	if name == "" {
		name = "cnfconv.log"
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	out := io.MultiWriter(os.Stderr, rotator)
	logger.SetOutput(out)
	return out, nil
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetDebug enables Debugf output.
func SetDebug(on bool) {
	debug.Store(on)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	if debug.Load() {
		logger.Printf("debug: "+format, args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
