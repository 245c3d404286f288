package manifest

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/devicelab/internal/models"
)

// MarkdownParser parses Markdown manifests. The shape:
//
//	---
//	binary: /data/tests/net_unittests
//	item_timeout: 5m
//	---
//
//	## Suite: Net
//
//	- NetTest.Connect
//	- NetTest.* (timeout: 2m)
//
// Every top-level list item under any heading becomes a test item.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// itemTimeoutRegex matches an optional "(timeout: 2m)" suffix on an item line.
var itemTimeoutRegex = regexp.MustCompile(`^(.*?)\s*\(timeout:\s*([^)]+)\)\s*$`)

// NewMarkdownParser creates a MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

// Parse reads a Markdown manifest from r.
func (p *MarkdownParser) Parse(r io.Reader) (*Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := &Manifest{}
	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		fm, err := parseYAMLBytes(frontmatter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		m.Binary = fm.Binary
		m.ItemTimeout = fm.ItemTimeout
		m.RequeueOnCrash = fm.RequeueOnCrash
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))

	items, err := p.extractItems(doc, content)
	if err != nil {
		return nil, fmt.Errorf("failed to extract items: %w", err)
	}
	m.Items = items
	return m, nil
}

// extractItems collects every list item in the document as a test item.
func (p *MarkdownParser) extractItems(doc ast.Node, source []byte) ([]models.TestItem, error) {
	var items []models.TestItem
	var parseErr error

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		li, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}

		// The item's text lives in the list item's first paragraph or
		// text block child.
		line := strings.TrimSpace(extractText(li.FirstChild(), source))
		if line == "" {
			return ast.WalkSkipChildren, nil
		}

		item := models.TestItem{Name: line}
		if m := itemTimeoutRegex.FindStringSubmatch(line); m != nil {
			item.Name = strings.TrimSpace(m[1])
			d, err := time.ParseDuration(strings.TrimSpace(m[2]))
			if err != nil {
				parseErr = fmt.Errorf("item %q: invalid timeout: %w", item.Name, err)
				return ast.WalkStop, nil
			}
			item.Timeout = d
		}
		items = append(items, item)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return items, nil
}

// extractText concatenates the direct text children of a node.
func extractText(n ast.Node, source []byte) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if text, ok := c.(*ast.Text); ok {
			buf.Write(text.Segment.Value(source))
		}
	}
	return buf.String()
}

// extractFrontmatter splits YAML frontmatter (delimited by ---) from the
// document body. Returns the body and the frontmatter bytes, or the
// original content and nil when no frontmatter is present.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	return content, nil
}
