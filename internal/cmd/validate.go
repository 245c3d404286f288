package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/devicelab/internal/fileutil"
	"github.com/harrison/devicelab/internal/manifest"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest-or-directory>",
		Short: "Validate a manifest file or every manifest in a directory",
		Long: `Parse and validate manifest files, checking for:
  - A test binary path
  - At least one test item
  - Unique, non-empty item names
  - Well-formed per-item timeouts

Supports two input modes:
  - Single file: devicelab validate nightly.md
  - Directory:   devicelab validate plans/ (validates every .md/.yaml file)

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateManifests(args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

// validateManifests validates a single manifest or a directory of manifests.
func validateManifests(path string, output io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}

	paths := []string{path}
	if info.IsDir() {
		paths, err = fileutil.FindManifests(path)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no manifest files found in %s", path)
		}
	}

	failures := 0
	for _, p := range paths {
		if err := validateOne(p, output); err != nil {
			fmt.Fprintf(output, "✗ %s: %v\n", p, err)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d manifest(s) failed validation", failures, len(paths))
	}
	return nil
}

func validateOne(path string, output io.Writer) error {
	m, err := manifest.ParseFile(path)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	wildcards := 0
	for _, item := range m.Items {
		if item.IsWildcard() {
			wildcards++
		}
	}
	fmt.Fprintf(output, "✓ %s: %d item(s), %d wildcard batch(es), binary %s\n",
		path, len(m.Items), wildcards, m.Binary)
	return nil
}
