// Package driver talks to physical lab devices through the lab controller
// binary (labctl). One Controller serves all devices; per-call the target
// device is selected by serial, adb-style.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// Controller manages execution of labctl commands against devices.
type Controller struct {
	LabctlPath string
}

// RunResult captures the result of one labctl invocation.
type RunResult struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// NewController creates a Controller using the given labctl binary path.
// An empty path defaults to "labctl" resolved via PATH.
func NewController(labctlPath string) *Controller {
	if labctlPath == "" {
		labctlPath = "labctl"
	}
	return &Controller{LabctlPath: labctlPath}
}

// ListDevices enumerates the currently reachable devices, one worker per
// reported serial.
func (c *Controller) ListDevices(ctx context.Context) ([]models.Worker, error) {
	cmd := exec.CommandContext(ctx, c.LabctlPath, "devices")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("labctl devices: %w", err)
	}

	var workers []models.Worker
	for _, line := range strings.Split(string(output), "\n") {
		serial := strings.TrimSpace(line)
		if serial == "" || strings.HasPrefix(serial, "#") {
			continue
		}
		// Lines are "<serial>\t<state>"; anything not reporting "device"
		// is unusable right now.
		fields := strings.Fields(serial)
		if len(fields) >= 2 && fields[1] != "device" {
			continue
		}
		workers = append(workers, models.Worker{ID: fields[0]})
	}
	return workers, nil
}

// Run executes a command on the given device and returns its combined
// output and exit code. A non-zero exit is not an error here; transport
// failures (device gone, context deadline) are.
func (c *Controller) Run(ctx context.Context, worker models.Worker, args ...string) (*RunResult, error) {
	start := time.Now()

	cmdArgs := append([]string{"-s", worker.ID, "run"}, args...)
	cmd := exec.CommandContext(ctx, c.LabctlPath, cmdArgs...)
	output, err := cmd.CombinedOutput()

	result := &RunResult{
		Output:   string(output),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran and failed; the caller classifies the result.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("labctl run on %s: %w", worker.ID, ctx.Err())
		}
		return result, fmt.Errorf("labctl run on %s: %w", worker.ID, err)
	}
	return result, nil
}

// IsHealthy probes the device. A device that does not answer the status
// command within a short deadline is considered unhealthy.
func (c *Controller) IsHealthy(ctx context.Context, worker models.Worker) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.LabctlPath, "-s", worker.ID, "status")
	return cmd.Run() == nil
}

// Recover reboots the device and waits for it to come back.
func (c *Controller) Recover(ctx context.Context, worker models.Worker) error {
	cmd := exec.CommandContext(ctx, c.LabctlPath, "-s", worker.ID, "reboot", "--wait")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reboot %s: %w: %s", worker.ID, err, strings.TrimSpace(string(output)))
	}
	return nil
}
