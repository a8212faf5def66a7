// Package memory is an in-memory archive.Client used by tests and by
// the thin cmd/svnloader demonstration wiring -- never by a production
// load, since the real archive is an external service.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/archivefeed/svnloader/archive"
	"github.com/archivefeed/svnloader/objects"
)

// Client stores every submitted object in memory, keyed by identifier.
type Client struct {
	mu sync.Mutex

	blobs  map[objects.ID]archive.Blob
	dirs   map[objects.ID]archive.Dir
	revs   map[objects.ID]archive.Rev
	snaps  map[objects.ID]archive.Snap
	visits map[string]visitRecord
}

type visitRecord struct {
	status     archive.VisitStatus
	snapshotID objects.ID
}

// New returns an empty in-memory archive.
func New() *Client {
	return &Client{
		blobs:  make(map[objects.ID]archive.Blob),
		dirs:   make(map[objects.ID]archive.Dir),
		revs:   make(map[objects.ID]archive.Rev),
		snaps:  make(map[objects.ID]archive.Snap),
		visits: make(map[string]visitRecord),
	}
}

func missing[T any](existing map[objects.ID]T, ids []objects.ID) []objects.ID {
	var out []objects.ID
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Client) ContentMissing(_ context.Context, ids []objects.ID) ([]objects.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return missing(c.blobs, ids), nil
}

func (c *Client) ContentAdd(_ context.Context, blobs []archive.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range blobs {
		c.blobs[b.ID] = b
	}
	return nil
}

func (c *Client) DirectoryMissing(_ context.Context, ids []objects.ID) ([]objects.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return missing(c.dirs, ids), nil
}

func (c *Client) DirectoryAdd(_ context.Context, dirs []archive.Dir) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dirs {
		c.dirs[d.ID] = d
	}
	return nil
}

func (c *Client) RevisionMissing(_ context.Context, ids []objects.ID) ([]objects.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return missing(c.revs, ids), nil
}

func (c *Client) RevisionAdd(_ context.Context, revs []archive.Rev) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range revs {
		c.revs[r.ID] = r
	}
	return nil
}

func (c *Client) RevisionGet(_ context.Context, id objects.ID) (*archive.Rev, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev, ok := c.revs[id]
	if !ok {
		return nil, false, nil
	}
	return &rev, true, nil
}

func (c *Client) SnapshotAdd(_ context.Context, snap archive.Snap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.ID] = snap
	return nil
}

func (c *Client) OriginVisitUpdate(_ context.Context, origin string, visit int64, status archive.VisitStatus, snapshotID objects.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visits[fmt.Sprintf("%s#%d", origin, visit)] = visitRecord{status: status, snapshotID: snapshotID}
	return nil
}

// HasRevision reports whether a revision with id has been submitted --
// used by tests asserting idempotence.
func (c *Client) HasRevision(id objects.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.revs[id]
	return ok
}

// Counts returns how many blobs, directories and revisions have been
// submitted -- used by tests and by report.VisitReport.
func (c *Client) Counts() (blobs, dirs, revs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blobs), len(c.dirs), len(c.revs)
}
