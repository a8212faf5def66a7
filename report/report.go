// Package report writes the end-of-visit YAML summary: a yaml.v3
// encoder with a two-space indent, writing one document rather than one
// record at a time since a visit only ever produces a single summary.
package report

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// VisitReport summarizes one completed (or aborted) load.
type VisitReport struct {
	Origin          string        `yaml:"origin"`
	FirstRevision   int           `yaml:"first-revision"`
	LastRevision    int           `yaml:"last-revision"`
	RevisionsWalked int           `yaml:"revisions-walked"`
	BlobsSubmitted  int           `yaml:"blobs-submitted"`
	DirsSubmitted   int           `yaml:"dirs-submitted"`
	RevsSubmitted   int           `yaml:"revs-submitted"`
	FinalSnapshotID string        `yaml:"final-snapshot-id,omitempty"`
	Duration        time.Duration `yaml:"duration"`
	Error           string        `yaml:"error,omitempty"`
}

// WriteFile renders r as YAML to filename.
func (r *VisitReport) WriteFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("report: creating %s: %w", filename, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		enc.Close()
		return fmt.Errorf("report: encoding %s: %w", filename, err)
	}
	return enc.Close()
}
