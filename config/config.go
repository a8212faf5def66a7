// Package config loads the loader's YAML configuration file: a
// load-a-YAML-ruleset-with-defaults pattern targeted at the loader's own
// settings rather than SVN path-rewrite rules.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Archive holds connection settings for the archive client, read by
// whichever archive.Client implementation the cmd/svnloader wiring
// chooses to construct.
type Archive struct {
	URL       string `yaml:"url,omitempty"`
	BatchSize int    `yaml:"batch-size,omitempty"`
}

// LoaderConfig is the loader's full YAML-configurable settings, with
// defaults applied by New the same way NewRules seeds Convention's
// trunk/branches/tags defaults.
type LoaderConfig struct {
	Filename string `yaml:"-"`

	Origin           string        `yaml:"origin"`
	DumpFile         string        `yaml:"dump-file,omitempty"`
	WorkingDir       string        `yaml:"working-dir,omitempty"`
	StartFromScratch bool          `yaml:"start-from-scratch,omitempty"`
	StopAtRevision   int           `yaml:"stop-at-revision,omitempty"`
	ExistenceCache   int           `yaml:"existence-cache,omitempty"`
	ArchiveRetries   int           `yaml:"archive-retries,omitempty"`
	ArchiveBackoff   time.Duration `yaml:"archive-backoff,omitempty"`
	Archive          Archive       `yaml:"archive,omitempty"`
}

// New returns a LoaderConfig populated from filename's YAML, with
// defaults applied first so an absent or partial file still yields a
// usable configuration. An empty filename returns the defaults alone.
func New(filename string) (*LoaderConfig, error) {
	cfg := &LoaderConfig{
		Filename:       filename,
		WorkingDir:     ".svnloader-work",
		StopAtRevision: -1,
		ExistenceCache: 4096,
		ArchiveRetries: 5,
		ArchiveBackoff: time.Second,
	}

	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}
	cfg.Filename = filename
	return cfg, nil
}

// Validate reports the first configuration error found, checked before
// a load starts.
func (c *LoaderConfig) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("config: origin is required")
	}
	if c.DumpFile == "" {
		return fmt.Errorf("config: dump-file is required")
	}
	if c.ArchiveRetries < 0 {
		return fmt.Errorf("config: archive-retries must be >= 0")
	}
	return nil
}
