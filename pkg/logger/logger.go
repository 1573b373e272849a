/* pkg/logger/logger.go */

package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	level = zap.NewAtomicLevel()
)

// SetLevel changes the level of every logger built by this package.
func SetLevel(name string) {
	level.SetLevel(ParseLogLevel(name))
}

// Level returns the current minimum level.
func Level() zapcore.Level {
	return level.Level()
}

// L returns the process logger, initialising the console fallback on first use.
func L() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	InitFallback()
	return GetLogger()
}

// GetLogger returns the current logger without initialising anything.
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the process logger, zap's globals and the otelzap
// global used by otelzap.Ctx in library code.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
	if l != nil {
		zap.ReplaceGlobals(l)
		otelzap.ReplaceGlobals(otelzap.New(l))
	}
}

// InitFallback installs a console-only logger.
func InitFallback() {
	SetLogger(NewFallbackLogger())
}

// EnsureLogPermissions creates the log directory and file with owner-only permissions.
func EnsureLogPermissions(logFilePath string) error {
	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	if _, err := os.Stat(logFilePath); os.IsNotExist(err) {
		file, err := os.Create(logFilePath)
		if err != nil {
			return err
		}
		_ = file.Close()
	}

	return os.Chmod(logFilePath, 0600)
}

// Sync flushes any buffered log entries. Should be called before the application exits.
func Sync() error {
	l := GetLogger()
	if l == nil {
		return nil
	}
	return l.Sync()
}
