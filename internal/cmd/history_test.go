package cmd

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/devicelab/internal/history"
)

func seedHistory(t *testing.T) (configPath, runID string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")

	store, err := history.NewStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	runID, err = store.RecordRun(context.Background(), "plans/nightly.md",
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 90*time.Second, passFailAggregate())
	if err != nil {
		t.Fatalf("record run: %v", err)
	}

	configPath = filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, fmt.Sprintf("history:\n  db_path: %s\n", dbPath))
	return configPath, runID
}

func TestHistoryCommand_ListsRuns(t *testing.T) {
	configPath, runID := seedHistory(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("history should succeed: %v", err)
	}

	content := out.String()
	if !strings.Contains(content, runID) {
		t.Errorf("expected run ID in output:\n%s", content)
	}
	if !strings.Contains(content, "FAILED") {
		t.Errorf("expected verdict in output:\n%s", content)
	}
	if !strings.Contains(content, "plans/nightly.md") {
		t.Errorf("expected manifest path in output:\n%s", content)
	}
}

func TestHistoryCommand_ShowsRunOutcomes(t *testing.T) {
	configPath, runID := seedHistory(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", runID, "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("history <run-id> should succeed: %v", err)
	}

	content := out.String()
	for _, want := range []string{"Try 1:", "Net.Connect", "Net.Send", "FAIL"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in output:\n%s", want, content)
		}
	}
}

func TestHistoryCommand_UnknownRunID(t *testing.T) {
	configPath, _ := seedHistory(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", "no-such-run", "--config", configPath})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown run ID")
	}
}

func TestHistoryCommand_Disabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "history:\n  enabled: false\n")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", "--config", configPath})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestHistoryCommand_EmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, fmt.Sprintf("history:\n  db_path: %s\n", filepath.Join(dir, "history.db")))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("empty history should not error: %v", err)
	}
	if !strings.Contains(out.String(), "No runs recorded yet") {
		t.Errorf("expected empty message, got %q", out.String())
	}
}
