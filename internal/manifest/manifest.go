// Package manifest loads test-plan files describing what to run on the
// device lab. Manifests come in Markdown (suites as headings, tests as
// list items, options in YAML frontmatter) or plain YAML form.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/devicelab/internal/models"
)

// Format identifies a manifest file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatMarkdown
	FormatYAML
)

// Manifest is a parsed test plan.
type Manifest struct {
	// Binary is the on-device path of the test binary.
	Binary string

	// ItemTimeout is the default per-item execution timeout.
	ItemTimeout time.Duration

	// RequeueOnCrash hands crashed items to another device within a try.
	RequeueOnCrash bool

	// Items are the test items to schedule, in manifest order.
	Items []models.TestItem
}

// Validate checks the manifest for the invariants the run needs.
func (m *Manifest) Validate() error {
	if m.Binary == "" {
		return fmt.Errorf("manifest does not name a test binary")
	}
	if len(m.Items) == 0 {
		return fmt.Errorf("manifest contains no test items")
	}
	seen := make(map[string]bool, len(m.Items))
	for _, item := range m.Items {
		if item.Name == "" {
			return fmt.Errorf("manifest contains an item with no name")
		}
		if seen[item.Name] {
			return fmt.Errorf("duplicate item name %q", item.Name)
		}
		seen[item.Name] = true
	}
	return nil
}

// DetectFormat infers the manifest format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatUnknown
}

// ParseFile loads and parses a manifest file, auto-detecting the format
// from its extension.
func ParseFile(path string) (*Manifest, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown manifest format: %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatMarkdown:
		return NewMarkdownParser().Parse(file)
	default:
		return parseYAML(file)
	}
}
