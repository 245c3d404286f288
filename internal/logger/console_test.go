package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "warn")

	cl.Debugf("debug message")
	cl.Infof("info message")
	cl.Warnf("warn message")
	cl.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn leaked through: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn/error messages missing: %q", out)
	}
}

func TestConsoleLogger_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "bogus")

	cl.Debugf("hidden")
	cl.Infof("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug shown at default level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("info missing at default level: %q", out)
	}
}

func TestConsoleLogger_NilWriterDiscards(t *testing.T) {
	cl := NewConsoleLogger(nil, "debug")
	// Must not panic.
	cl.Infof("into the void")
}

func TestConsoleLogger_FormatsWithArgs(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	cl.Infof("try %d/%d: %d item(s)", 1, 3, 7)

	if !strings.Contains(buf.String(), "try 1/3: 7 item(s)") {
		t.Errorf("formatting lost: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[INFO]") {
		t.Errorf("level tag missing: %q", buf.String())
	}
}

func TestConsoleLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cl.Infof("message %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 lines, got %d", len(lines))
	}
}
