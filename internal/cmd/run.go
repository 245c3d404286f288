package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harrison/devicelab/internal/config"
	"github.com/harrison/devicelab/internal/driver"
	"github.com/harrison/devicelab/internal/executor"
	"github.com/harrison/devicelab/internal/fileutil"
	"github.com/harrison/devicelab/internal/gtest"
	"github.com/harrison/devicelab/internal/history"
	"github.com/harrison/devicelab/internal/lablock"
	"github.com/harrison/devicelab/internal/logger"
	"github.com/harrison/devicelab/internal/manifest"
	"github.com/harrison/devicelab/internal/models"
)

// labDir holds the lock file, logs, history database and run summaries.
const labDir = ".devicelab"

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Execute a test manifest against the device pool",
		Long: `Execute a test manifest by distributing its items over every
reachable lab device in parallel.

The run command parses the manifest (Markdown or YAML format), discovers
the available devices, and runs each item on some device, retrying
failures on later tries until the try budget is exhausted. Devices that
stop responding are dropped from the pool for the rest of the run.

Configuration is loaded from .devicelab/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  devicelab run nightly.md
  devicelab run nightly.md --max-tries 5
  devicelab run nightly.md --device A1B2C3 --device D4E5F6
  devicelab run nightly.md --recover-devices
  devicelab run nightly.md --lab-wait 5m    # Wait for another run to finish`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	// Add flags
	cmd.Flags().String("config", "", "Path to config file (default: .devicelab/config.yaml)")
	cmd.Flags().Int("max-tries", 0, "Total attempts per test item (0 = use config)")
	cmd.Flags().String("join-timeout", "", "Grace period for in-flight work after interrupt (e.g. 30s)")
	cmd.Flags().String("log-dir", "", "Directory for run log files")
	cmd.Flags().Bool("recover-devices", false, "Reboot unhealthy devices between tries")
	cmd.Flags().Bool("no-recover-devices", false, "Do not recover devices (overrides config)")
	cmd.Flags().StringSlice("device", nil, "Device serial to use (repeatable; default: discover)")
	cmd.Flags().String("lab-wait", "0s", "How long to wait for the lab lock held by another run")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Validate conflicting flags
	if cmd.Flags().Changed("recover-devices") && cmd.Flags().Changed("no-recover-devices") {
		return fmt.Errorf("cannot use both --recover-devices and --no-recover-devices")
	}

	// Build flag pointers for merge (only non-default values)
	var maxTriesPtr *int
	if cmd.Flags().Changed("max-tries") {
		v, _ := cmd.Flags().GetInt("max-tries")
		maxTriesPtr = &v
	}

	var joinTimeoutPtr *time.Duration
	if cmd.Flags().Changed("join-timeout") {
		s, _ := cmd.Flags().GetString("join-timeout")
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid join-timeout format %q: %w", s, err)
		}
		joinTimeoutPtr = &d
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &v
	}

	var recoverPtr *bool
	if cmd.Flags().Changed("recover-devices") {
		v, _ := cmd.Flags().GetBool("recover-devices")
		recoverPtr = &v
	} else if cmd.Flags().Changed("no-recover-devices") {
		f := false
		recoverPtr = &f
	}

	var devicesPtr *[]string
	if cmd.Flags().Changed("device") {
		v, _ := cmd.Flags().GetStringSlice("device")
		devicesPtr = &v
	}

	// Merge CLI flags with config (flags take precedence)
	cfg.MergeWithFlags(maxTriesPtr, joinTimeoutPtr, logDirPtr, recoverPtr, devicesPtr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	labWaitStr, _ := cmd.Flags().GetString("lab-wait")
	labWait, err := time.ParseDuration(labWaitStr)
	if err != nil {
		return fmt.Errorf("invalid lab-wait format %q: %w", labWaitStr, err)
	}

	// Load and validate the manifest
	manifestPath := args[0]
	fmt.Fprintf(cmd.OutOrStdout(), "Loading manifest from %s...\n", manifestPath)
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	// Determine log level: verbose flag overrides config
	logLevel := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logLevel = "debug"
	}

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), logLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, logLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	log := &multiLogger{loggers: []executor.Logger{consoleLog, fileLog}}

	// Interrupt handling: first signal cancels the run cooperatively.
	ctx, stop := executor.WithInterruptCancel(context.Background(), log)
	defer stop()

	// One run per lab at a time.
	lock := lablock.New(filepath.Join(labDir, "lab.lock"))
	if err := lock.Acquire(ctx, labWait); err != nil {
		if errors.Is(err, lablock.ErrBusy) {
			return fmt.Errorf("another run is using this lab (use --lab-wait to wait): %w", err)
		}
		return err
	}
	defer lock.Release()

	ctrl := driver.NewController(cfg.LabctlPath)
	workers, err := resolveWorkers(ctx, ctrl, cfg.Devices)
	if err != nil {
		return err
	}
	log.Infof("using %d device(s)", len(workers))

	itemTimeout := m.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = cfg.ItemTimeout
	}

	instance, err := gtest.New(gtest.Config{
		Binary:         m.Binary,
		Items:          m.Items,
		ItemTimeout:    itemTimeout,
		RequeueOnCrash: m.RequeueOnCrash,
		Controller:     ctrl,
	})
	if err != nil {
		return fmt.Errorf("failed to create test instance: %w", err)
	}

	registry := executor.NewWorkerRegistry(workers)
	orch := executor.NewOrchestrator(instance, registry, executor.Options{
		MaxTries:       cfg.MaxTries,
		RecoverDevices: cfg.RecoverDevices,
		JoinTimeout:    cfg.JoinTimeout,
	}, log)

	started := time.Now()
	aggregate, runErr := orch.RunTests(ctx)
	duration := time.Since(started)

	if aggregate == nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	printSummary(cmd, aggregate, duration)
	for id, reason := range registry.BlacklistReasons() {
		fmt.Fprintf(cmd.OutOrStdout(), "Device %s dropped: %s\n", id, reason)
	}

	if err := writeRunSummary(filepath.Join(labDir, "last-run.yaml"), manifestPath, started, duration, aggregate); err != nil {
		log.Warnf("failed to write run summary: %v", err)
	}

	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg, manifestPath, started, duration, aggregate); err != nil {
			log.Warnf("failed to record run history: %v", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logs written to: %s\n", fileLog.RunFile())

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if !aggregate.Passed() {
		failed := 0
		for _, o := range aggregate.FinalOutcomes() {
			if !o.Status.Succeeded() {
				failed++
			}
		}
		return fmt.Errorf("%d test(s) did not pass", failed)
	}
	return nil
}

// loadConfig loads the config file named by --config, or the lab default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveWorkers turns the configured serial list into workers, or discovers
// the reachable devices when no serials were configured.
func resolveWorkers(ctx context.Context, ctrl *driver.Controller, serials []string) ([]models.Worker, error) {
	if len(serials) > 0 {
		workers := make([]models.Worker, len(serials))
		for i, s := range serials {
			workers[i] = models.Worker{ID: s}
		}
		return workers, nil
	}
	workers, err := ctrl.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover devices: %w", err)
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("no devices available")
	}
	return workers, nil
}

// printSummary writes the final per-status counts and the failing tests.
func printSummary(cmd *cobra.Command, ag *models.AggregatedResultSet, duration time.Duration) {
	out := cmd.OutOrStdout()
	summary := ag.Summary()

	fmt.Fprintf(out, "\nRun Summary:\n")
	fmt.Fprintf(out, "  Tests: %d\n", len(ag.FinalOutcomes()))
	for _, status := range []models.Status{
		models.StatusPass, models.StatusFail, models.StatusCrash,
		models.StatusTimeout, models.StatusSkip,
	} {
		if n := summary[status]; n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", status, n)
		}
	}
	fmt.Fprintf(out, "  Tries: %d\n", ag.NumTries())
	fmt.Fprintf(out, "  Duration: %s\n", duration.Round(time.Second))

	var failing []models.TestOutcome
	for _, o := range ag.FinalOutcomes() {
		if !o.Status.Succeeded() {
			failing = append(failing, o)
		}
	}
	if len(failing) > 0 {
		fmt.Fprintf(out, "\nFailing Tests:\n")
		for _, o := range failing {
			fmt.Fprintf(out, "  - %s: %s\n", o.Name, o.Status)
		}
	}
}

// runSummaryFile is the machine-readable shape of .devicelab/last-run.yaml.
type runSummaryFile struct {
	Manifest  string            `yaml:"manifest"`
	StartedAt time.Time         `yaml:"started_at"`
	Duration  string            `yaml:"duration"`
	Tries     int               `yaml:"tries"`
	Passed    bool              `yaml:"passed"`
	Results   map[string]string `yaml:"results"`
}

// writeRunSummary atomically replaces the last-run summary file, so tooling
// polling it never reads a half-written document.
func writeRunSummary(path, manifestPath string, started time.Time, duration time.Duration, ag *models.AggregatedResultSet) error {
	summary := runSummaryFile{
		Manifest:  manifestPath,
		StartedAt: started.UTC(),
		Duration:  duration.Round(time.Millisecond).String(),
		Tries:     ag.NumTries(),
		Passed:    ag.Passed(),
		Results:   make(map[string]string),
	}
	for _, o := range ag.FinalOutcomes() {
		summary.Results[o.Name] = string(o.Status)
	}

	data, err := yaml.Marshal(&summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	return fileutil.AtomicWrite(path, data)
}

// recordHistory persists the run to the history database and prunes old runs.
func recordHistory(ctx context.Context, cfg *config.Config, manifestPath string, started time.Time, duration time.Duration, ag *models.AggregatedResultSet) error {
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.RecordRun(ctx, manifestPath, started, duration, ag); err != nil {
		return err
	}
	return store.Prune(ctx, cfg.History.KeepRuns)
}

// multiLogger implements executor.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []executor.Logger
}

func (ml *multiLogger) Debugf(format string, args ...any) {
	for _, l := range ml.loggers {
		l.Debugf(format, args...)
	}
}

func (ml *multiLogger) Infof(format string, args ...any) {
	for _, l := range ml.loggers {
		l.Infof(format, args...)
	}
}

func (ml *multiLogger) Warnf(format string, args ...any) {
	for _, l := range ml.loggers {
		l.Warnf(format, args...)
	}
}

func (ml *multiLogger) Errorf(format string, args ...any) {
	for _, l := range ml.loggers {
		l.Errorf(format, args...)
	}
}
