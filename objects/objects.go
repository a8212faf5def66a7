// Package objects implements the four content-addressed object kinds the
// loader produces: blobs, trees, revisions and snapshots. Identifiers are
// byte-for-byte reproducible by `git hash-object`, per spec.
package objects

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
)

// ID is a content identifier: the SHA-1 of an object's framed manifest.
type ID [sha1.Size]byte

// Hex renders the identifier as the familiar 40-character lowercase string.
func (id ID) Hex() string {
	return fmt.Sprintf("%x", [sha1.Size]byte(id))
}

func (id ID) String() string { return id.Hex() }

// IsZero reports whether id is the zero value (used as "no parent").
func (id ID) IsZero() bool {
	return id == ID{}
}

func hash(kind string, body []byte) ID {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(body))
	h.Write(body)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// Kind enumerates the entry kinds a Tree can hold.
type Kind int

const (
	KindFile Kind = iota
	KindExecFile
	KindSymlink
	KindDir
)

// permBits returns the octal permission string emitted in a tree entry,
// matching Git's four modes.
func (k Kind) permBits() string {
	switch k {
	case KindDir:
		return "40000"
	case KindExecFile:
		return "100755"
	case KindSymlink:
		return "120000"
	default:
		return "100644"
	}
}

// TreeEntry is one child of a Tree: (name, kind, target identifier, perm).
type TreeEntry struct {
	Name   string
	Kind   Kind
	Target ID
}

// sortKey appends a synthetic trailing slash to directory names so that,
// e.g., "foo" sorts after "foo.c" the same way Git does -- the slash is
// never emitted in the serialized form.
func (e TreeEntry) sortKey() string {
	if e.Kind == KindDir {
		return e.Name + "/"
	}
	return e.Name
}

// Tree is an ordered, unique-by-name set of TreeEntry.
type Tree struct {
	Entries []TreeEntry
}

// HashBlob computes the identifier of a blob from its (already
// EOL-normalized) byte content.
func HashBlob(content []byte) ID {
	return hash("blob", content)
}

// Serialize renders a Tree's entries in ascending byte-lexicographic
// sortKey() order as Git's canonical tree body:
// "perm SP name \0 raw-20-byte-id" repeated, concatenated.
func (t *Tree) Serialize() []byte {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sortKey() < entries[j].sortKey()
	})

	var body []byte
	for _, e := range entries {
		body = append(body, e.Kind.permBits()...)
		body = append(body, ' ')
		body = append(body, e.Name...)
		body = append(body, 0)
		body = append(body, e.Target[:]...)
	}
	return body
}

// HashTree computes a Tree's identifier.
func HashTree(t *Tree) ID {
	return hash("tree", t.Serialize())
}

// Revision is the commit-equivalent object: a tree plus authorship and
// the SVN-specific extra headers.
type Revision struct {
	TreeID        ID
	ParentID      *ID
	Author        string
	AuthorDate    string // "<epoch>.<microsecond> +0000"
	Committer     string
	CommitterDate string
	Message       string
	ExtraHeaders  []HeaderKV // in emission order: svn_repo_uuid, svn_revision
}

// HeaderKV is one ordered extra-header pair on a Revision.
type HeaderKV struct {
	Key   string
	Value string
}

// manifest renders the Git-compatible commit manifest body (without the
// "commit <len>\0" framing).
func (r *Revision) manifest() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "tree %s\n", r.TreeID.Hex())
	if r.ParentID != nil {
		fmt.Fprintf(&b, "parent %s\n", r.ParentID.Hex())
	}
	fmt.Fprintf(&b, "author %s %s\n", r.Author, r.AuthorDate)
	fmt.Fprintf(&b, "committer %s %s\n", r.Committer, r.CommitterDate)
	for _, h := range r.ExtraHeaders {
		fmt.Fprintf(&b, "%s %s\n", h.Key, h.Value)
	}
	b.WriteByte('\n')
	b.WriteString(r.Message)
	return []byte(b.String())
}

// HashRevision computes a Revision's identifier.
func HashRevision(r *Revision) ID {
	return hash("commit", r.manifest())
}

// Branch is one named pointer in a Snapshot.
type Branch struct {
	Name   string
	Target ID
}

// Snapshot is the object emitted once per visit: one "HEAD" branch
// normally, none at all for a repository with no revisions.
type Snapshot struct {
	Branches []Branch
}

// Serialize renders a Snapshot's branches sorted by name, matching the
// deterministic-serialization convention used for trees.
func (s *Snapshot) Serialize() []byte {
	branches := append([]Branch(nil), s.Branches...)
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })

	var body []byte
	for _, br := range branches {
		body = append(body, br.Name...)
		body = append(body, 0)
		body = append(body, br.Target[:]...)
	}
	return body
}

// HashSnapshot computes a Snapshot's identifier.
func HashSnapshot(s *Snapshot) ID {
	return hash("snapshot", s.Serialize())
}
