package svndump

import "github.com/archivefeed/svnloader/svn"

// Node is one path's change within a revision, as recorded by a
// Node-path header block. Kind/Action are typed onto svn.NodeKind and
// svn.NodeAction rather than raw strings, since this package serves
// svn.Session directly.
type Node struct {
	Path         string
	Kind         svn.NodeKind
	HasKind      bool
	Action       svn.NodeAction
	CopyFromRev  int
	CopyFromPath string
	Props        properties
	HasProps     bool
	Text         []byte
	HasText      bool
	TextDelta    bool // true when Text is already an svndiff1 stream, per a "Text-delta: true" header
}

func parseNodeKind(s string) (svn.NodeKind, bool) {
	switch s {
	case "file":
		return svn.NodeFile, true
	case "dir":
		return svn.NodeDir, true
	default:
		return 0, false
	}
}

func parseNodeAction(s string) (svn.NodeAction, bool) {
	switch s {
	case "change":
		return svn.ActionChange, true
	case "add":
		return svn.ActionAdd, true
	case "delete":
		return svn.ActionDelete, true
	case "replace":
		return svn.ActionReplace, true
	default:
		return 0, false
	}
}
