package driver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// fakeLabctl writes a shell script standing in for the labctl binary.
func fakeLabctl(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake labctl script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "labctl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("writing fake labctl: %v", err)
	}
	return path
}

func TestNewController_DefaultPath(t *testing.T) {
	c := NewController("")
	if c.LabctlPath != "labctl" {
		t.Errorf("LabctlPath = %s, want labctl", c.LabctlPath)
	}
}

func TestListDevices_ParsesSerials(t *testing.T) {
	c := NewController(fakeLabctl(t, `
echo "# attached devices"
echo "SERIAL1	device"
echo "SERIAL2	offline"
echo "SERIAL3	device"
echo ""
`))

	workers, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("got %d workers, want 2 (offline excluded): %v", len(workers), workers)
	}
	if workers[0].ID != "SERIAL1" || workers[1].ID != "SERIAL3" {
		t.Errorf("unexpected serials: %v", workers)
	}
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	c := NewController(fakeLabctl(t, `
echo "running on $2"
exit 3
`))

	result, err := c.Run(context.Background(), models.Worker{ID: "SERIAL1"}, "/data/tests/suite")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Output, "running on SERIAL1") {
		t.Errorf("output missing: %q", result.Output)
	}
	if result.Duration <= 0 {
		t.Error("Duration should be positive")
	}
}

func TestRun_ContextDeadlineIsTransportError(t *testing.T) {
	c := NewController(fakeLabctl(t, "sleep 5\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, models.Worker{ID: "SERIAL1"}, "anything")
	if err == nil {
		t.Fatal("expected transport error on deadline")
	}
}

func TestIsHealthy(t *testing.T) {
	healthy := NewController(fakeLabctl(t, "exit 0\n"))
	if !healthy.IsHealthy(context.Background(), models.Worker{ID: "S"}) {
		t.Error("expected healthy")
	}

	dead := NewController(fakeLabctl(t, "exit 1\n"))
	if dead.IsHealthy(context.Background(), models.Worker{ID: "S"}) {
		t.Error("expected unhealthy")
	}
}

func TestRecover_SurfacesFailureOutput(t *testing.T) {
	c := NewController(fakeLabctl(t, `
echo "device stuck in bootloader"
exit 1
`))

	err := c.Recover(context.Background(), models.Worker{ID: "SERIAL1"})
	if err == nil {
		t.Fatal("expected recovery error")
	}
	if !strings.Contains(err.Error(), "device stuck in bootloader") {
		t.Errorf("error missing device output: %v", err)
	}
}
