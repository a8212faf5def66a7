// Package svn defines the external SVN session interface the loader
// consumes. The real network/remote-access implementation -- talking
// to svnserve/http(s)/file:// via a libsvn binding -- is an external
// collaborator out of this module's scope; svndump provides a
// reference Session backed by a local dump file instead.
package svn

import (
	"context"
	"time"
)

// NodeKind is the kind of filesystem object a node represents.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDir
)

// NodeAction is the change an editor callback applies to a path.
type NodeAction int

const (
	ActionChange NodeAction = iota
	ActionAdd
	ActionDelete
	ActionReplace
)

// LogEntry is one revision's commit metadata, as returned by GetLog.
type LogEntry struct {
	Revision int
	Author   string
	Date     time.Time
	Message  string
}

// Editor is the callback interface the session drives while replaying
// one revision. It is a concrete method set, not a late-bound dispatch
// table.
type Editor interface {
	OpenRoot() error

	// AddDirectory creates path. If copyFromPath is non-empty, the
	// directory is a copy of copyFromPath as of copyFromRev.
	AddDirectory(path string, copyFromRev int, copyFromPath string) error
	OpenDirectory(path string) error
	ChangeDirProp(path, name string, value []byte) error
	CloseDirectory(path string) error

	DeleteEntry(path string) error

	// AddFile creates path. If copyFromPath is non-empty, the file is a
	// copy of copyFromPath as of copyFromRev.
	AddFile(path string, copyFromRev int, copyFromPath string) error
	OpenFile(path string) error
	// ApplyTextDelta delivers the full svndiff1 stream for path's new
	// content, to be applied against the file's prior bytes.
	ApplyTextDelta(path string, diff []byte) error
	ChangeFileProp(path, name string, value []byte) error
	CloseFile(path string) error

	CloseEdit() error
}

// Session is the external SVN remote-access surface.
type Session interface {
	GetUUID(ctx context.Context) (string, error)
	GetHeadRevision(ctx context.Context) (int, error)
	GetLog(ctx context.Context, from, to int) ([]LogEntry, error)
	DoReplay(ctx context.Context, rev int, editor Editor) error
	// Export bulk-populates destDir with urlAtRev's full tree, with
	// keyword expansion disabled, used on resume and for copyfrom
	// subtrees.
	Export(ctx context.Context, urlAtRev string, destDir string, ignoreKeywords bool) error
}
