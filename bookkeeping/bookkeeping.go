// Package bookkeeping defines the shape of the origin/visit bookkeeping
// layer's persisted state, consumed but not implemented here: creating
// origins and opening/closing visits belongs to an external
// collaborator, same as the archive client and SVN
// session.
package bookkeeping

import (
	"context"

	"github.com/archivefeed/svnloader/objects"
)

// VisitState is the state the external bookkeeping layer persists
// between loads of the same origin and the loader reads at start and
// writes at end.
type VisitState struct {
	LastSvnRevision int
	LastRevisionID  objects.ID
	LastSnapshotID  objects.ID
	RepoUUID        string
}

// Store is the bookkeeping layer's read/write surface for VisitState.
// Get returns ok=false when no prior visit is on record (a from-scratch
// load).
type Store interface {
	Get(ctx context.Context, origin string) (state VisitState, ok bool, err error)
	Put(ctx context.Context, origin string, state VisitState) error
}
