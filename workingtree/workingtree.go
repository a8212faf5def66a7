// Package workingtree implements the on-disk scratch directory that
// mirrors the SVN working copy at the revision currently being built:
// no .svn metadata, no keyword expansion.
package workingtree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// Kind distinguishes the four things Walk can report.
type Kind int

const (
	KindFile Kind = iota
	KindExecFile
	KindSymlink
	KindDir
)

// Tree is a scratch directory on disk.
type Tree struct {
	root string
}

// New creates the scratch directory at root, or reuses it if it already
// exists; any existing contents are left in place.
func New(root string) (*Tree, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workingtree: creating %s: %w", root, err)
	}
	return &Tree{root: root}, nil
}

// Root returns the scratch directory's path, as it was given to New.
func (t *Tree) Root() string { return t.root }

// FullPath resolves a repository-relative path against the scratch
// directory.
func (t *Tree) FullPath(relPath string) string {
	return filepath.Join(t.root, filepath.FromSlash(relPath))
}

// AddDir creates an (empty) directory, including any missing parents.
func (t *Tree) AddDir(relPath string) error {
	if err := os.MkdirAll(t.FullPath(relPath), 0o755); err != nil {
		return fmt.Errorf("workingtree: mkdir %s: %w", relPath, err)
	}
	return nil
}

// Remove deletes the file or directory subtree at relPath.
func (t *Tree) Remove(relPath string) error {
	if err := os.RemoveAll(t.FullPath(relPath)); err != nil {
		return fmt.Errorf("workingtree: remove %s: %w", relPath, err)
	}
	return nil
}

// Create opens relPath for writing, creating parent directories as
// needed, and returns a streaming writer: callers (the svndiff decoder,
// in particular) write target bytes as they are produced rather than
// building the whole file in memory first.
func (t *Tree) Create(relPath string) (io.WriteCloser, error) {
	full := t.FullPath(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("workingtree: mkdir for %s: %w", relPath, err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("workingtree: create %s: %w", relPath, err)
	}
	return newBufferedWriteCloser(f), nil
}

// WriteFile writes data to relPath in one shot -- used for
// already-assembled payloads (such as a copied file's exported content)
// rather than streamed svndiff output.
func (t *Tree) WriteFile(relPath string, data []byte) error {
	w, err := t.Create(relPath)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("workingtree: write %s: %w", relPath, err)
	}
	return w.Close()
}

// ReadFile returns relPath's current on-disk bytes -- used as the
// svndiff source buffer for a file being patched.
func (t *Tree) ReadFile(relPath string) ([]byte, error) {
	data, err := os.ReadFile(t.FullPath(relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workingtree: read %s: %w", relPath, err)
	}
	return data, nil
}

// SetExecutable toggles relPath's executable bits to match SVN's
// svn:executable semantics (0755 set, 0644 unset).
func (t *Tree) SetExecutable(relPath string, executable bool) error {
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	if err := os.Chmod(t.FullPath(relPath), mode); err != nil {
		return fmt.Errorf("workingtree: chmod %s: %w", relPath, err)
	}
	return nil
}

// IsSymlink reports whether relPath is currently a real POSIX symlink on
// disk (as opposed to a regular file holding svnlink-formatted bytes).
func (t *Tree) IsSymlink(relPath string) bool {
	info, err := os.Lstat(t.FullPath(relPath))
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// Exists reports whether relPath currently exists (file, dir or
// symlink).
func (t *Tree) Exists(relPath string) bool {
	_, err := os.Lstat(t.FullPath(relPath))
	return err == nil
}

// MakeSymlink replaces relPath's on-disk content with a real POSIX
// symlink pointing at target. Used only for working-tree fidelity
// (`svn export` produces real symlinks); the blob that gets hashed is
// always the svnlink's literal "link <target>" bytes, never this.
func (t *Tree) MakeSymlink(relPath string, target []byte) error {
	full := t.FullPath(relPath)
	_ = os.Remove(full)
	if err := os.Symlink(string(target), full); err != nil {
		return fmt.Errorf("workingtree: symlink %s -> %s: %w", relPath, target, err)
	}
	return nil
}

// ReadSymlink returns the target of the real POSIX symlink at relPath.
func (t *Tree) ReadSymlink(relPath string) (string, error) {
	target, err := os.Readlink(t.FullPath(relPath))
	if err != nil {
		return "", fmt.Errorf("workingtree: readlink %s: %w", relPath, err)
	}
	return target, nil
}

// MakeSvnlink replaces relPath's real POSIX symlink with a regular file
// holding the svnlink encoding ("link <target>"), the reverse of
// MakeSymlink -- used when svn:special is unset on a path that is
// currently materialized as a real symlink.
func (t *Tree) MakeSvnlink(relPath string) ([]byte, error) {
	target, err := t.ReadSymlink(relPath)
	if err != nil {
		return nil, err
	}
	full := t.FullPath(relPath)
	if err := os.Remove(full); err != nil {
		return nil, fmt.Errorf("workingtree: remove symlink %s: %w", relPath, err)
	}
	content := append([]byte("link "), target...)
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return nil, fmt.Errorf("workingtree: write svnlink %s: %w", relPath, err)
	}
	return content, nil
}

// Entry is one file/dir/symlink reported by Walk.
type Entry struct {
	Path string // repository-relative, slash-separated
	Kind Kind
}

// Walk visits every entry under the scratch directory in depth-first
// order, used for the one-time full rebuild of the Hash Tree on resume.
func (t *Tree) Walk(fn func(Entry) error) error {
	return godirwalk.Walk(t.root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if osPathname == t.root {
				return nil
			}
			rel, err := filepath.Rel(t.root, osPathname)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if de.IsSymlink() {
				return fn(Entry{Path: rel, Kind: KindSymlink})
			}
			if de.IsDir() {
				return fn(Entry{Path: rel, Kind: KindDir})
			}

			info, err := os.Lstat(osPathname)
			if err != nil {
				return err
			}
			kind := KindFile
			if info.Mode()&0o111 != 0 {
				kind = KindExecFile
			}
			return fn(Entry{Path: rel, Kind: kind})
		},
		Unsorted: false,
	})
}
