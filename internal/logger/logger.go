package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"account_orchestrator/config"
)

// Manager manages application loggers and their underlying files.
type Manager struct {
	infoLogger  *log.Logger
	errorLogger *log.Logger
	infoFile    *os.File
	errorFile   *os.File
}

var (
	mu     sync.RWMutex
	global *Manager
)

// Initialize configures the global logger manager.
func Initialize(cfg *config.Config) (*Manager, error) {
	manager, err := New(cfg)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	global = manager
	mu.Unlock()
	return manager, nil
}

// New creates a new Manager writing to stdout/stderr and the configured files.
func New(cfg *config.Config) (*Manager, error) {
	dir := cfg.LogDirectory
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	outputFile := cfg.LogOutputFile
	if outputFile == "" {
		outputFile = "app.log"
	}
	errorFile := cfg.LogErrorFile
	if errorFile == "" {
		errorFile = "app.error.log"
	}

	infoHandle, err := os.OpenFile(filepath.Join(dir, outputFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open info log file: %w", err)
	}

	errorHandle, err := os.OpenFile(filepath.Join(dir, errorFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		infoHandle.Close()
		return nil, fmt.Errorf("open error log file: %w", err)
	}

	m := NewWithWriters(io.MultiWriter(os.Stdout, infoHandle), io.MultiWriter(os.Stderr, errorHandle))
	m.infoFile = infoHandle
	m.errorFile = errorHandle
	return m, nil
}

// NewWithWriters builds a Manager on arbitrary writers; tests use it to capture output.
func NewWithWriters(info, errw io.Writer) *Manager {
	return &Manager{
		infoLogger:  log.New(info, "[INFO] ", log.LstdFlags|log.Lmicroseconds),
		errorLogger: log.New(errw, "[ERROR] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetGlobal replaces the global manager without touching files.
func SetGlobal(m *Manager) {
	mu.Lock()
	global = m
	mu.Unlock()
}

// Info returns the info logger.
func (m *Manager) Info() *log.Logger {
	return m.infoLogger
}

// Error returns the error logger.
func (m *Manager) Error() *log.Logger {
	return m.errorLogger
}

// Close releases file handles.
func (m *Manager) Close() error {
	var firstErr error
	if m.infoFile != nil {
		if err := m.infoFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.errorFile != nil {
		if err := m.errorFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the global logger manager if initialized.
func Close() error {
	mu.Lock()
	m := global
	global = nil
	mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}

// Info returns the global info logger.
func Info() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Info()
	}
	return log.Default()
}

// Error returns the global error logger.
func Error() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Error()
	}
	return log.Default()
}

// Component prefixes every line with a component name, e.g. "[scheduler] ".
// It resolves the global loggers on each call so it can be created before Initialize.
type Component struct {
	prefix string
}

// For returns a Component logger for name.
func For(name string) Component {
	return Component{prefix: "[" + name + "] "}
}

func (c Component) Infof(format string, args ...any) {
	Info().Output(2, c.prefix+fmt.Sprintf(format, args...))
}

func (c Component) Errorf(format string, args ...any) {
	Error().Output(2, c.prefix+fmt.Sprintf(format, args...))
}
