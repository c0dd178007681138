package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level controls which entries a Logger writes.
type Level int

const (
	// LevelQuiet writes only warnings and errors
	LevelQuiet Level = iota
	// LevelNormal adds informational progress (default)
	LevelNormal
	// LevelVerbose is reserved for detailed per-step output
	LevelVerbose
	// LevelDebug writes everything
	LevelDebug
)

// ParseLevel converts a verbosity string to a Level. Unknown values map to
// LevelNormal.
func ParseLevel(s string) Level {
	switch s {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// Logger provides leveled logging for notepost components.
// All loggers of one run append to <dir>/<run-id>-notepost.log and mirror
// entries to the console writer.
type Logger struct {
	runID     string
	component string
	level     Level
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	// Global run ID for the current execution
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	initOnce sync.Once
	initErr  error

	// defaults applied by Configure
	defaultLevel   = LevelNormal
	defaultConsole io.Writer = os.Stderr
	defaultsMu     sync.Mutex
)

// getRunID returns or creates the run ID for this execution
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Configure sets the log directory, level and console writer used by loggers
// created afterwards. An empty dir keeps the default ~/.notepost/logs.
func Configure(dir string, level Level, console io.Writer) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()

	if dir != "" {
		logDir = dir
	}
	defaultLevel = level
	if console != nil {
		defaultConsole = console
	}
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".notepost", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a logger for a specific component.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a console-only logger along with the error.
func NewLogger(component string) (*Logger, error) {
	defaultsMu.Lock()
	level, console := defaultLevel, defaultConsole
	defaultsMu.Unlock()

	if err := initLogDirectory(); err != nil {
		return newConsoleLogger(component, level, console), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-notepost.log", id))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newConsoleLogger(component, level, console), fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		runID:     id,
		component: component,
		level:     level,
		file:      file,
		logger:    log.New(io.MultiWriter(file, console), "", 0),
		logPath:   logPath,
	}, nil
}

// MustLogger is NewLogger without the error; file failures degrade to console logging.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

func newConsoleLogger(component string, level Level, console io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		level:     level,
		logger:    log.New(console, "", 0),
	}
}

// Discard returns a logger that writes nowhere. Useful in tests.
func Discard() *Logger {
	return &Logger{
		component: "discard",
		level:     LevelDebug,
		logger:    log.New(io.Discard, "", 0),
	}
}

// New returns a logger writing to w only, with no backing file.
func New(component string, level Level, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		level:     level,
		logger:    log.New(w, "", 0),
	}
}

// With returns a logger for a sub-component sharing the same output.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		runID:     l.runID,
		component: component,
		level:     l.level,
		logger:    l.logger,
		logPath:   l.logPath,
	}
}

// formatLogEntry creates a log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(min Level, tag, format string, v ...interface{}) {
	if l.level < min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Println(l.formatLogEntry(tag, fmt.Sprintf(format, v...)))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelNormal, "INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write(LevelQuiet, "WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write(LevelQuiet, "ERROR", format, v...)
}

// RunID returns the run ID shared by all loggers of this process
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty for console-only loggers
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetRunID returns the current global run ID
func GetRunID() string {
	return getRunID()
}
