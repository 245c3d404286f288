package manifest

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/devicelab/internal/models"
)

// yamlManifest mirrors the on-disk YAML shape. Durations are strings so
// "2m" style values parse cleanly.
type yamlManifest struct {
	Binary         string     `yaml:"binary"`
	ItemTimeout    string     `yaml:"item_timeout"`
	RequeueOnCrash bool       `yaml:"requeue_on_crash"`
	Items          []yamlItem `yaml:"items"`
}

type yamlItem struct {
	Name    string `yaml:"name"`
	Timeout string `yaml:"timeout"`
}

func parseYAML(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return parseYAMLBytes(data)
}

func parseYAMLBytes(data []byte) (*Manifest, error) {
	var ym yamlManifest
	if err := yaml.Unmarshal(data, &ym); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	m := &Manifest{
		Binary:         ym.Binary,
		RequeueOnCrash: ym.RequeueOnCrash,
	}

	if ym.ItemTimeout != "" {
		d, err := time.ParseDuration(ym.ItemTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid item_timeout %q: %w", ym.ItemTimeout, err)
		}
		m.ItemTimeout = d
	}

	for _, yi := range ym.Items {
		item := models.TestItem{Name: yi.Name}
		if yi.Timeout != "" {
			d, err := time.ParseDuration(yi.Timeout)
			if err != nil {
				return nil, fmt.Errorf("item %q: invalid timeout %q: %w", yi.Name, yi.Timeout, err)
			}
			item.Timeout = d
		}
		m.Items = append(m.Items, item)
	}

	return m, nil
}
