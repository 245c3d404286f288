package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileLogger logs run events to timestamped files in a log directory and
// maintains a latest.log symlink pointing to the most recent run. It is
// thread-safe and implements the executor.Logger interface.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to the given directory with
// the given minimum level. The directory is created if missing; a
// run-YYYYMMDD-HHMMSS.log file is opened and latest.log re-pointed at it.
func NewFileLogger(logDir, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.write(fmt.Sprintf("=== devicelab run log ===\nStarted at: %s\n\n",
		time.Now().Format(time.RFC3339)))
	return fl, nil
}

// RunFile returns the path of the current run log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// Close closes the underlying run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

// Debugf logs a debug-level message to the run log.
func (fl *FileLogger) Debugf(format string, args ...any) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs an info-level message to the run log.
func (fl *FileLogger) Infof(format string, args ...any) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message to the run log.
func (fl *FileLogger) Warnf(format string, args ...any) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message to the run log.
func (fl *FileLogger) Errorf(format string, args ...any) {
	fl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) logWithLevel(level, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	ts := time.Now().Format("15:04:05")
	fl.write(fmt.Sprintf("[%s] [%s] %s\n", ts, level, message))
}

func (fl *FileLogger) write(s string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	fl.runLog.WriteString(s)
}
