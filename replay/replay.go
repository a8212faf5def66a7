// Package replay drives the Working Tree and Hash Tree from one
// revision's editor callback stream, the same role replay.py's
// FileEditor/DirEditor play against
// swh.model.from_disk, re-expressed as one concrete Go type satisfying
// svn.Editor directly rather than per-path sub-editor objects.
package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/archivefeed/svnloader/eol"
	"github.com/archivefeed/svnloader/hashtree"
	"github.com/archivefeed/svnloader/objects"
	"github.com/archivefeed/svnloader/svn"
	"github.com/archivefeed/svnloader/svndiff"
	"github.com/archivefeed/svnloader/workingtree"
)

const (
	propExecutable = "svn:executable"
	propSpecial    = "svn:special"
	propEOLStyle   = "svn:eol-style"
	propExternals  = "svn:externals"
)

// execState mirrors replay.py's DEFAULT_FLAG/EXEC_FLAG/NOEXEC_FLAG: a
// property set/unset is remembered even across revisions that don't
// touch the property again.
type execState int

const (
	execUnset execState = iota
	execOn
	execOff
)

// FileState is the per-path side-record replay.py's FileState dataclass
// keeps across revisions: the property values that affect how a file's
// bytes get hashed, since SVN delivers property changes and content
// changes as separate callbacks.
type FileState struct {
	EOLStyle   eol.Style
	Executable execState
	Link       bool
}

// DirState is the per-path side-record replay.py's DirState dataclass
// keeps: svn:externals definitions, recorded verbatim and never
// resolved.
type DirState struct {
	Externals string // raw svn:externals property value, or "" if unset
}

// Editor drives the Working Tree and Hash Tree for one revision at a
// time. It is long-lived across a whole load: file/dir state persists
// from one revision to the next exactly as it would on a real SVN
// working copy.
type Editor struct {
	ctx     context.Context
	session svn.Session
	tree    *workingtree.Tree
	hash    *hashtree.Tree
	log     *logrus.Entry

	files map[string]*FileState
	dirs  map[string]*DirState

	blobs map[objects.ID][]byte // content produced this revision, for submission
}

// New constructs an Editor bound to tree/hash for the lifetime of a
// load. session is used to materialize copy-from subtrees and resume
// exports; it may be reused across many revisions.
func New(session svn.Session, tree *workingtree.Tree, hash *hashtree.Tree, log *logrus.Entry) *Editor {
	return &Editor{
		session: session,
		tree:    tree,
		hash:    hash,
		log:     log,
		files:   make(map[string]*FileState),
		dirs:    make(map[string]*DirState),
		blobs:   make(map[objects.ID][]byte),
	}
}

// BeginRevision resets the per-revision blob-collection buffer and binds
// ctx for the callbacks that follow, ahead of one svn.Session.DoReplay
// call.
func (e *Editor) BeginRevision(ctx context.Context) {
	e.ctx = ctx
	e.blobs = make(map[objects.ID][]byte)
}

// Blobs returns every blob produced since the last BeginRevision, for
// the Revision Builder to submit.
func (e *Editor) Blobs() map[objects.ID][]byte {
	return e.blobs
}

func (e *Editor) fileState(p string) *FileState {
	st, ok := e.files[p]
	if !ok {
		st = &FileState{}
		e.files[p] = st
	}
	return st
}

func (e *Editor) dirState(p string) *DirState {
	st, ok := e.dirs[p]
	if !ok {
		st = &DirState{}
		e.dirs[p] = st
	}
	return st
}

func (e *Editor) OpenRoot() error { return nil }

func (e *Editor) CloseEdit() error { return nil }

// AddDirectory creates path, copying copyFromPath's tree as of
// copyFromRev first if this is a copy.
func (e *Editor) AddDirectory(p string, copyFromRev int, copyFromPath string) error {
	if copyFromPath != "" {
		if err := e.copyTree(copyFromPath, copyFromRev, p); err != nil {
			return fmt.Errorf("replay: copy directory %s -> %s@%d: %w", copyFromPath, p, copyFromRev, err)
		}
	} else if err := e.tree.AddDir(p); err != nil {
		return err
	}
	if err := e.hash.PutDir(p); err != nil {
		return err
	}
	e.dirs[p] = &DirState{}
	return nil
}

func (e *Editor) OpenDirectory(p string) error {
	return e.hash.PutDir(p)
}

func (e *Editor) CloseDirectory(p string) error { return nil }

func (e *Editor) ChangeDirProp(p, name string, value []byte) error {
	if name != propExternals {
		return nil
	}
	state := e.dirState(p)
	if value == nil {
		if state.Externals != "" {
			e.log.WithField("path", p).Debug("svn:externals unset")
		}
		state.Externals = ""
		return nil
	}
	state.Externals = string(value)
	return nil
}

func (e *Editor) DeleteEntry(p string) error {
	if err := e.tree.Remove(p); err != nil {
		return err
	}
	if err := e.hash.Remove(p); err != nil {
		return err
	}
	prefix := p + "/"
	for fp := range e.files {
		if fp == p || strings.HasPrefix(fp, prefix) {
			delete(e.files, fp)
		}
	}
	for dp := range e.dirs {
		if dp == p || strings.HasPrefix(dp, prefix) {
			delete(e.dirs, dp)
		}
	}
	return nil
}

// AddFile creates path, copying copyFromPath's content as of copyFromRev
// first if this is a copy.
func (e *Editor) AddFile(p string, copyFromRev int, copyFromPath string) error {
	if copyFromPath != "" {
		if err := e.copyFile(copyFromPath, copyFromRev, p); err != nil {
			return fmt.Errorf("replay: copy file %s -> %s@%d: %w", copyFromPath, p, copyFromRev, err)
		}
	}
	e.files[p] = &FileState{}
	return nil
}

func (e *Editor) OpenFile(p string) error {
	e.fileState(p)
	return nil
}

func (e *Editor) ChangeFileProp(p, name string, value []byte) error {
	state := e.fileState(p)
	switch name {
	case propExecutable:
		if value == nil {
			state.Executable = execOff
		} else {
			state.Executable = execOn
		}
	case propSpecial:
		state.Link = value != nil
	case propEOLStyle:
		if value == nil {
			state.EOLStyle = eol.StyleNone
		} else {
			state.EOLStyle = eol.Style(value)
		}
	}
	return nil
}

// ApplyTextDelta decodes diff against path's current bytes and writes
// the result to the Working Tree. A file with svn:special set is stored
// on disk as a real symlink once its link target is known (deferred to
// CloseFile, since the property and the content can arrive in either
// order); svndiff application always happens against the prior svnlink
// encoding, matching replay.py's __make_svnlink dance.
func (e *Editor) ApplyTextDelta(p string, diff []byte) error {
	var source []byte
	if e.tree.IsSymlink(p) {
		encoded, err := e.tree.MakeSvnlink(p)
		if err != nil {
			return err
		}
		source = encoded
	} else {
		data, err := e.tree.ReadFile(p)
		if err != nil {
			return err
		}
		source = data
	}

	w, err := e.tree.Create(p)
	if err != nil {
		return err
	}
	if err := svndiff.Apply(source, diff, w); err != nil {
		w.Close()
		return fmt.Errorf("replay: svndiff apply %s: %w", p, err)
	}
	return w.Close()
}

// CloseFile finalizes path: applies the executable bit, reconciles the
// svn:special/symlink duality, normalizes line endings, hashes the
// resulting blob and records it in the Hash Tree.
func (e *Editor) CloseFile(p string) error {
	state := e.fileState(p)

	if state.Link {
		isLink, target, err := readSvnlink(e.tree, p)
		if err != nil {
			return err
		}
		if isLink {
			if err := e.tree.MakeSymlink(p, target); err != nil {
				return err
			}
		}
	} else if e.tree.IsSymlink(p) {
		if _, err := e.tree.MakeSvnlink(p); err != nil {
			return err
		}
	}

	isLink := e.tree.IsSymlink(p)
	if !isLink {
		switch state.Executable {
		case execOn:
			if err := e.tree.SetExecutable(p, true); err != nil {
				return err
			}
		case execOff:
			if err := e.tree.SetExecutable(p, false); err != nil {
				return err
			}
		}
	}

	var data []byte
	var err error
	if isLink {
		target, rerr := e.tree.ReadSymlink(p)
		if rerr != nil {
			return rerr
		}
		data = append([]byte("link "), target...)
	} else {
		data, err = e.tree.ReadFile(p)
		if err != nil {
			return err
		}
		if state.EOLStyle != eol.StyleNone {
			data = eol.Normalize(data, state.EOLStyle)
		}
	}

	kind := objects.KindFile
	switch {
	case isLink:
		kind = objects.KindSymlink
	case state.Executable == execOn:
		kind = objects.KindExecFile
	}

	id := objects.HashBlob(data)
	e.blobs[id] = data
	if err := e.hash.PutFile(p, id, kind); err != nil {
		return err
	}
	return nil
}

// readSvnlink reads path's current on-disk bytes (the svnlink encoding)
// and reports whether they follow the "link <target>" convention, per
// replay.py's is_file_an_svnlink_p / read_svn_link. Any content after the
// first space on the first line, including embedded spaces, is kept
// verbatim as the target.
func readSvnlink(tree *workingtree.Tree, p string) (isLink bool, target []byte, err error) {
	if tree.IsSymlink(p) {
		return false, nil, nil
	}
	data, err := tree.ReadFile(p)
	if err != nil {
		return false, nil, err
	}
	firstLine := data
	if i := indexByte(data, '\n'); i != -1 {
		firstLine = data[:i]
	}
	sp := indexByte(firstLine, ' ')
	if sp == -1 {
		return false, nil, nil
	}
	return string(firstLine[:sp]) == "link", firstLine[sp+1:], nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// copyTree materializes a directory copy via svn.Session.Export, the
// only source of historically-accurate bytes for a copy-from revision
// this load hasn't necessarily kept the full content of. Only the
// copied subtree is walked afterwards -- the Working Tree's
// Walk always starts at its root, which would both re-hash every
// unrelated file already present and double-prefix dstPath onto paths
// that are already root-relative.
func (e *Editor) copyTree(srcPath string, srcRev int, dstPath string) error {
	full := e.tree.FullPath(dstPath)
	url := fmt.Sprintf("%s@%d", srcPath, srcRev)
	if err := e.session.Export(e.ctx, url, full, true); err != nil {
		return err
	}
	return filepath.WalkDir(full, func(osPathname string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if osPathname == full {
			return nil
		}
		relToFull, err := filepath.Rel(full, osPathname)
		if err != nil {
			return err
		}
		rel := path.Join(dstPath, filepath.ToSlash(relToFull))

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := e.tree.ReadSymlink(rel)
			if err != nil {
				return err
			}
			data := append([]byte("link "), target...)
			id := objects.HashBlob(data)
			e.blobs[id] = data
			return e.hash.PutFile(rel, id, objects.KindSymlink)
		}
		if d.IsDir() {
			return e.hash.PutDir(rel)
		}

		kind := objects.KindFile
		if info.Mode()&0o111 != 0 {
			kind = objects.KindExecFile
		}
		data, err := e.tree.ReadFile(rel)
		if err != nil {
			return err
		}
		id := objects.HashBlob(data)
		e.blobs[id] = data
		return e.hash.PutFile(rel, id, kind)
	})
}

// copyFile materializes a single-file copy via Export into a scratch
// directory (Export always populates a directory), then adopts the
// exported file's bytes at dstPath.
func (e *Editor) copyFile(srcPath string, srcRev int, dstPath string) error {
	scratch := e.tree.FullPath(dstPath) + ".copysrc"
	url := fmt.Sprintf("%s@%d", srcPath, srcRev)
	if err := e.session.Export(e.ctx, url, scratch, true); err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	exported := filepath.Join(scratch, filepath.Base(srcPath))
	data, err := os.ReadFile(exported)
	if err != nil {
		if info, statErr := os.Lstat(exported); statErr == nil && info.Mode()&os.ModeSymlink != 0 {
			target, rerr := os.Readlink(exported)
			if rerr != nil {
				return rerr
			}
			return e.tree.MakeSymlink(dstPath, []byte(target))
		}
		return fmt.Errorf("replay: read exported copy source %s: %w", exported, err)
	}
	return e.tree.WriteFile(dstPath, data)
}
