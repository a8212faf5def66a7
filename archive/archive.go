// Package archive defines the content-addressed archive client the
// loader submits objects to. The archive itself -- blob, directory,
// revision and snapshot storage plus origin/visit bookkeeping -- is an
// external collaborator; this package only pins the interface
// shape and a size-bounded batch submission helper.
package archive

import (
	"context"

	"github.com/archivefeed/svnloader/objects"
)

// Blob is a content-addressed blob ready for submission.
type Blob struct {
	ID      objects.ID
	Content []byte
}

// Dir is a content-addressed directory ready for submission.
type Dir struct {
	ID      objects.ID
	Entries []objects.TreeEntry
}

// Rev is a content-addressed revision ready for submission.
type Rev struct {
	ID       objects.ID
	Revision *objects.Revision
}

// Snap is the single-branch snapshot emitted once per visit.
type Snap struct {
	ID       objects.ID
	Snapshot *objects.Snapshot
}

// VisitStatus mirrors the origin visit lifecycle the bookkeeping layer
// tracks; the loader only ever reports "full" or "partial".
type VisitStatus string

const (
	VisitFull    VisitStatus = "full"
	VisitPartial VisitStatus = "partial"
)

// Client is the archive's ingestion surface, consumed by the Revision
// Builder and the History Walker.
type Client interface {
	ContentMissing(ctx context.Context, ids []objects.ID) ([]objects.ID, error)
	ContentAdd(ctx context.Context, blobs []Blob) error

	DirectoryMissing(ctx context.Context, ids []objects.ID) ([]objects.ID, error)
	DirectoryAdd(ctx context.Context, dirs []Dir) error

	RevisionMissing(ctx context.Context, ids []objects.ID) ([]objects.ID, error)
	RevisionAdd(ctx context.Context, revs []Rev) error
	// RevisionGet returns the previously-submitted revision for id, used
	// by the History Walker to recover the true parent chain on resume.
	RevisionGet(ctx context.Context, id objects.ID) (*Rev, bool, error)

	SnapshotAdd(ctx context.Context, snap Snap) error

	OriginVisitUpdate(ctx context.Context, origin string, visit int64, status VisitStatus, snapshotID objects.ID) error
}
