// Package logging provides a unified logging system for batchplan.
// The library and CLI share this package; components obtain named
// loggers whose levels can be tuned individually.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Close()
//
//	logger := logging.Get("planner")
//	logger.Info("decision made", "workers", 8, "batch", 4)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is an optional log file path. Empty means console only.
	Path string

	// Components maps component names to level overrides.
	Components map[string]string

	// Quiet suppresses console output entirely (file output, if
	// configured, is unaffected).
	Quiet bool
}

// DefaultLogPath returns the default log file location under XDG state.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "batchplan", "batchplan.log")
}

// state holds the global logging state.
type state struct {
	mu          sync.RWMutex
	initialized bool
	file        io.WriteCloser
	level       Level
	components  map[string]Level
	loggers     map[string]*log.Logger
	quiet       bool
}

var globalState = &state{
	components: make(map[string]Level),
	loggers:    make(map[string]*log.Logger),
}

// Init initializes the logging system. Before Init is called, loggers
// write to stderr at info level.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %q: %w", comp, err)
		}
		components[comp] = parsed
	}

	if globalState.file != nil {
		_ = globalState.file.Close()
		globalState.file = nil
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		globalState.file = f
	}

	globalState.level = level
	globalState.components = components
	globalState.quiet = cfg.Quiet
	globalState.loggers = make(map[string]*log.Logger)
	globalState.initialized = true
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.file != nil {
		err := globalState.file.Close()
		globalState.file = nil
		return err
	}
	return nil
}

// Get returns a logger for the named component. Loggers are cached and
// safe for concurrent use.
func Get(component string) *log.Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}

	level := globalState.level
	if override, ok := globalState.components[component]; ok {
		level = override
	}

	var w io.Writer
	switch {
	case globalState.file != nil && !globalState.quiet:
		w = io.MultiWriter(os.Stderr, globalState.file)
	case globalState.file != nil:
		w = globalState.file
	case globalState.quiet:
		w = io.Discard
	default:
		w = os.Stderr
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level.toCharmLevel(),
		Prefix:          component,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	globalState.loggers[component] = logger
	return logger
}
