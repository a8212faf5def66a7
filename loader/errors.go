package loader

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, matched with errors.Is against the wrapped
// *Error values below.
var (
	ErrHistoryAltered           = errors.New("svn history altered since last visit")
	ErrSvnProtocol              = errors.New("svn session error")
	ErrSvndiffApply             = errors.New("svndiff could not be applied")
	ErrWorkingTreeIO            = errors.New("working tree i/o error")
	ErrArchive                  = errors.New("archive rejected submission")
	ErrUnsupportedRevisionShape = errors.New("revision contains an unclassifiable node")
)

// HistoryAlteredError reports a resume verification mismatch: the
// recomputed revision-id for the last known SVN revision no longer
// matches VisitState, meaning the upstream history changed underneath
// this visit (tag moved, revision amended, re-synced from a different
// server).
type HistoryAlteredError struct {
	Revision int
	Want     string
	Got      string
}

func (e *HistoryAlteredError) Error() string {
	return fmt.Sprintf("history altered at r%d: expected revision-id %s, recomputed %s", e.Revision, e.Want, e.Got)
}

func (e *HistoryAlteredError) Unwrap() error { return ErrHistoryAltered }

// UnsupportedRevisionShapeError is fatal and always logged with revnum.
type UnsupportedRevisionShapeError struct {
	Revision int
	Reason   string
}

func (e *UnsupportedRevisionShapeError) Error() string {
	return fmt.Sprintf("r%d: unsupported revision shape: %s", e.Revision, e.Reason)
}

func (e *UnsupportedRevisionShapeError) Unwrap() error { return ErrUnsupportedRevisionShape }

// ArchiveError wraps a submission failure after retries are exhausted.
type ArchiveError struct {
	Attempts int
	Cause    error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive submission failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ArchiveError) Unwrap() error { return ErrArchive }
