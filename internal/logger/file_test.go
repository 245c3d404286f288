package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogger_WritesRunLog(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, "info")
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	fl.Infof("worker %s online", "dev1")
	fl.Debugf("filtered out")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(fl.RunFile())
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "worker dev1 online") {
		t.Errorf("info message missing: %q", content)
	}
	if strings.Contains(content, "filtered out") {
		t.Errorf("debug message leaked: %q", content)
	}
}

func TestFileLogger_LatestSymlink(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, "info")
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer fl.Close()

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	if err != nil {
		t.Fatalf("latest.log symlink missing: %v", err)
	}
	if target != filepath.Base(fl.RunFile()) {
		t.Errorf("symlink points at %q, want %q", target, filepath.Base(fl.RunFile()))
	}
}

func TestFileLogger_CloseIsIdempotent(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "info")
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Writing after close must not panic.
	fl.Infof("ignored")
}
