// Package hashtree implements the in-memory Merkle tree that mirrors the
// Working Tree: each directory node caches its content-addressed
// identifier and only recomputes it when something beneath it changed.
package hashtree

import (
	"fmt"
	"strings"

	"github.com/archivefeed/svnloader/objects"
)

// node is the tagged tree-node variant: either a file leaf or a
// directory with children.
type node interface {
	isNode()
}

type fileNode struct {
	blobID objects.ID
	kind   objects.Kind // KindFile, KindExecFile or KindSymlink
}

func (*fileNode) isNode() {}

type dirNode struct {
	entries map[string]node
	cached  *objects.ID // nil means Dirty
}

func (*dirNode) isNode() {}

func newDirNode() *dirNode {
	return &dirNode{entries: make(map[string]node)}
}

// Tree is the Hash Tree for a single in-progress revision.
type Tree struct {
	root *dirNode
}

// New returns an empty Hash Tree, as constructed when replay starts at
// revision 0.
func New() *Tree {
	return &Tree{root: newDirNode()}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// walkTo descends from root following parts, creating intermediate
// directory nodes as needed, and returns the final parent directory plus
// the leaf name. It errors if an intermediate path component exists but
// is not a directory.
func (t *Tree) walkTo(parts []string) (*dirNode, string, error) {
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("hashtree: empty path")
	}
	dir := t.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := dir.entries[part]
		if !ok {
			next := newDirNode()
			dir.entries[part] = next
			dir = next
			continue
		}
		next, ok := child.(*dirNode)
		if !ok {
			return nil, "", fmt.Errorf("hashtree: %q is not a directory", part)
		}
		dir = next
	}
	return dir, parts[len(parts)-1], nil
}

// markDirty invalidates the cached identifier of every directory from
// root down to (and including) the final parent on parts' path, so a
// changed leaf invalidates its ancestors' cached ids. Implemented by
// walking down from the root along parts rather than through parent
// back-pointers.
func (t *Tree) markDirty(parts []string) {
	dir := t.root
	dir.cached = nil
	for _, part := range parts {
		child, ok := dir.entries[part]
		if !ok {
			return
		}
		next, ok := child.(*dirNode)
		if !ok {
			return
		}
		next.cached = nil
		dir = next
	}
}

// PutFile inserts or replaces a leaf, marking all ancestors Dirty.
func (t *Tree) PutFile(path string, blobID objects.ID, kind objects.Kind) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("hashtree: cannot put file at root")
	}
	parent, name, err := t.walkTo(parts)
	if err != nil {
		return err
	}
	parent.entries[name] = &fileNode{blobID: blobID, kind: kind}
	t.markDirty(parts[:len(parts)-1])
	return nil
}

// PutDir creates an empty directory (if not already present), marking
// ancestors Dirty. Creating a directory that already exists is a no-op
// besides the dirty marking -- it does not clear existing children.
func (t *Tree) PutDir(path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil // root always exists
	}
	parent, name, err := t.walkTo(parts)
	if err != nil {
		return err
	}
	if _, ok := parent.entries[name]; !ok {
		parent.entries[name] = newDirNode()
	}
	t.markDirty(parts[:len(parts)-1])
	return nil
}

// Remove deletes the subtree (file or directory) rooted at path,
// marking ancestors Dirty.
func (t *Tree) Remove(path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("hashtree: cannot remove root")
	}
	parent, name, err := t.walkTo(parts)
	if err != nil {
		return err
	}
	if _, ok := parent.entries[name]; !ok {
		return fmt.Errorf("hashtree: %q does not exist", path)
	}
	delete(parent.entries, name)
	t.markDirty(parts[:len(parts)-1])
	return nil
}

// Move renames a subtree, preserving the moved nodes' identifiers
// (equivalent to Remove(src) followed by re-inserting the same nodes at
// dst).
func (t *Tree) Move(src, dst string) error {
	srcParts := splitPath(src)
	if len(srcParts) == 0 {
		return fmt.Errorf("hashtree: cannot move root")
	}
	srcParent, srcName, err := t.walkTo(srcParts)
	if err != nil {
		return err
	}
	moved, ok := srcParent.entries[srcName]
	if !ok {
		return fmt.Errorf("hashtree: %q does not exist", src)
	}

	dstParts := splitPath(dst)
	if len(dstParts) == 0 {
		return fmt.Errorf("hashtree: cannot move onto root")
	}
	dstParent, dstName, err := t.walkTo(dstParts)
	if err != nil {
		return err
	}

	delete(srcParent.entries, srcName)
	dstParent.entries[dstName] = moved

	t.markDirty(srcParts[:len(srcParts)-1])
	t.markDirty(dstParts[:len(dstParts)-1])
	return nil
}

// Lookup reports whether path currently exists in the tree (file or
// directory).
func (t *Tree) Lookup(path string) bool {
	parts := splitPath(path)
	dir := t.root
	for i, part := range parts {
		child, ok := dir.entries[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		next, ok := child.(*dirNode)
		if !ok {
			return false
		}
		dir = next
	}
	return true
}

// recompute returns d's identifier, recomputing it (and caching it) if
// Dirty. Empty directories are not pruned: they serialize to a tree with
// zero entries and contribute their own identifier to their parent.
func recompute(d *dirNode) objects.ID {
	if d.cached != nil {
		return *d.cached
	}

	tree := &objects.Tree{}
	for name, child := range d.entries {
		switch c := child.(type) {
		case *fileNode:
			tree.Entries = append(tree.Entries, objects.TreeEntry{
				Name: name, Kind: c.kind, Target: c.blobID,
			})
		case *dirNode:
			id := recompute(c)
			tree.Entries = append(tree.Entries, objects.TreeEntry{
				Name: name, Kind: objects.KindDir, Target: id,
			})
		}
	}

	id := objects.HashTree(tree)
	d.cached = &id
	return id
}

// RootID recomputes all Dirty directory nodes bottom-up and returns the
// root tree identifier.
func (t *Tree) RootID() objects.ID {
	return recompute(t.root)
}

// Dir is one directory's content-addressed entry list, as collected by
// Directories for archive submission.
type Dir struct {
	ID      objects.ID
	Entries []objects.TreeEntry
}

// Directories returns every directory in the tree in post-order (a
// directory's children appear before the directory itself), recomputing
// any Dirty identifiers along the way. Archive submission order requires
// post-order so a directory is never submitted before the directories
// and blobs it references.
func (t *Tree) Directories() []Dir {
	var dirs []Dir
	var visit func(d *dirNode)
	visit = func(d *dirNode) {
		tree := &objects.Tree{}
		for name, child := range d.entries {
			switch c := child.(type) {
			case *fileNode:
				tree.Entries = append(tree.Entries, objects.TreeEntry{
					Name: name, Kind: c.kind, Target: c.blobID,
				})
			case *dirNode:
				visit(c)
				tree.Entries = append(tree.Entries, objects.TreeEntry{
					Name: name, Kind: objects.KindDir, Target: *c.cached,
				})
			}
		}
		id := recompute(d)
		dirs = append(dirs, Dir{ID: id, Entries: tree.Entries})
	}
	visit(t.root)
	return dirs
}

// SubtreeID returns the identifier of the directory at path, without
// requiring it to be the root. Used to compare copy-from subtrees (e.g.
// `svn cp trunk@10 branches/b1` should leave branches/b1 with the same
// subtree identifier trunk had at r10).
func (t *Tree) SubtreeID(path string) (objects.ID, error) {
	parts := splitPath(path)
	dir := t.root
	for _, part := range parts {
		child, ok := dir.entries[part]
		if !ok {
			return objects.ID{}, fmt.Errorf("hashtree: %q does not exist", path)
		}
		next, ok := child.(*dirNode)
		if !ok {
			return objects.ID{}, fmt.Errorf("hashtree: %q is not a directory", path)
		}
		dir = next
	}
	return recompute(dir), nil
}
