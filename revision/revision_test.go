package revision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivefeed/svnloader/archive"
	"github.com/archivefeed/svnloader/archive/memory"
	"github.com/archivefeed/svnloader/hashtree"
	"github.com/archivefeed/svnloader/objects"
	"github.com/archivefeed/svnloader/svn"
)

func TestBuildUsesVerbatimAuthorAndSvnMetadataHeaders(t *testing.T) {
	var b Builder
	tree := objects.ID{1, 2, 3}
	parent := objects.ID{9, 9, 9}
	log := svn.LogEntry{
		Revision: 42,
		Author:   "alice",
		Date:     time.Unix(1577836800, 500000000),
		Message:  "commit message",
	}

	rev := b.Build(tree, &parent, log, "11111111-1111-1111-1111-111111111111")

	assert.Equal(t, "alice", rev.Author)
	assert.Equal(t, "alice", rev.Committer)
	assert.Equal(t, "commit message", rev.Message)
	assert.Equal(t, tree, rev.TreeID)
	assert.Same(t, &parent, rev.ParentID)
	assert.Equal(t, "1577836800.500000 +0000", rev.AuthorDate)
	assert.Equal(t, rev.AuthorDate, rev.CommitterDate)

	require.Len(t, rev.ExtraHeaders, 2)
	assert.Equal(t, objects.HeaderKV{Key: "svn_repo_uuid", Value: "11111111-1111-1111-1111-111111111111"}, rev.ExtraHeaders[0])
	assert.Equal(t, objects.HeaderKV{Key: "svn_revision", Value: "42"}, rev.ExtraHeaders[1])
}

func TestBuildIsDeterministic(t *testing.T) {
	var b Builder
	tree := objects.ID{5}
	log := svn.LogEntry{Revision: 1, Author: "bob", Date: time.Unix(0, 0), Message: "m"}

	r1 := b.Build(tree, nil, log, "uuid")
	r2 := b.Build(tree, nil, log, "uuid")
	assert.Equal(t, objects.HashRevision(r1), objects.HashRevision(r2))
}

func TestSubmitPushesBlobsDirsThenRevisionAndIsIdempotent(t *testing.T) {
	client := memory.New()
	cache := archive.NewExistenceCache(100)
	ctx := context.Background()

	blobID := objects.HashBlob([]byte("hello\n"))
	blobs := map[objects.ID][]byte{blobID: []byte("hello\n")}

	dirTree := &objects.Tree{Entries: []objects.TreeEntry{{Name: "hello.txt", Kind: objects.KindFile, Target: blobID}}}
	dirID := objects.HashTree(dirTree)
	dirs := []hashtree.Dir{{ID: dirID, Entries: dirTree.Entries}}

	var b Builder
	rev := b.Build(dirID, nil, svn.LogEntry{Revision: 1, Author: "alice", Date: time.Unix(0, 0), Message: "first"}, "uuid")
	revID := objects.HashRevision(rev)

	require.NoError(t, Submit(ctx, client, cache, blobs, dirs, rev, revID))

	blobCount, dirCount, revCount := client.Counts()
	assert.Equal(t, 1, blobCount)
	assert.Equal(t, 1, dirCount)
	assert.Equal(t, 1, revCount)
	assert.True(t, client.HasRevision(revID))

	// Submitting the same revision again must not duplicate anything.
	require.NoError(t, Submit(ctx, client, cache, blobs, dirs, rev, revID))
	blobCount, dirCount, revCount = client.Counts()
	assert.Equal(t, 1, blobCount)
	assert.Equal(t, 1, dirCount)
	assert.Equal(t, 1, revCount)
}
