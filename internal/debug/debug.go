// Package debug is the fflux diagnostic log.
//
// Logging is off unless the CLI runs with --debug (or debug: true in config).
// When on, entries go to ~/.fflux/debug.log, which is truncated on every
// launch. Packages log through a Scope so each line names the component that
// wrote it:
//
//	var logf = debug.Scope("query").Logf
//	logf("invalidated %d entries under %s", n, key)
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// LogFileName is the name of the debug log file.
	LogFileName = "debug.log"
	// LogDirName is the directory under the user's home holding fflux state.
	LogDirName = ".fflux"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  *log.Logger
	logFile *os.File
	active  string

	// getLogPath is a function variable to allow overriding in tests.
	getLogPath = defaultGetLogPath
)

// Init turns logging on or off. An empty path selects ~/.fflux/debug.log.
// Calling Init again closes any file opened by a previous call.
func Init(enable bool, path string) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	enabled = enable
	if !enable {
		logger = log.New(io.Discard, "", 0)
		return nil
	}

	if path == "" {
		p, err := getLogPath()
		if err != nil {
			enabled = false
			return fmt.Errorf("determine log path: %w", err)
		}
		path = p
	}

	//nolint:gosec // G301: User state directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		enabled = false
		return fmt.Errorf("create log directory: %w", err)
	}

	//nolint:gosec // G304: Log path comes from the user's own config
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		enabled = false
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	active = path

	logger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	logger.Printf("=== fflux debug log started at %s (pid %d) ===", time.Now().Format(time.RFC3339), os.Getpid())
	return nil
}

// Close closes the log file. Safe to call when logging is disabled.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	active = ""
}

// Log writes a message in the manner of fmt.Print when logging is enabled.
func Log(v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Print(v...)
}

// Logf writes a message in the manner of fmt.Printf when logging is enabled.
func Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Printf(format, v...)
}

// Enabled returns whether debug logging is currently enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Path returns the file being written, or "" when logging is off.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Scoped prefixes every entry with a component name.
type Scoped string

// Scope returns a logger for the named component.
func Scope(component string) Scoped {
	return Scoped(component)
}

// Logf writes "[component] message" when logging is enabled.
func (s Scoped) Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Printf("[%s] %s", string(s), fmt.Sprintf(format, v...))
}

// DefaultPath returns ~/.fflux/debug.log for the current user.
func DefaultPath() (string, error) {
	return getLogPath()
}

func defaultGetLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, LogDirName, LogFileName), nil
}
