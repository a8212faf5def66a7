package workingtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivefeed/svnloader/workingtree"
)

func TestWriteReadRoundtrip(t *testing.T) {
	tr, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, tr.WriteFile("a/b/c.txt", []byte("hello\n")))
	got, err := tr.ReadFile("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestReadMissingFileReturnsNilNotError(t *testing.T) {
	tr, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	got, err := tr.ReadFile("nope.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoveDeletesSubtree(t *testing.T) {
	tr, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, tr.WriteFile("dir/f.txt", []byte("x")))
	require.NoError(t, tr.Remove("dir"))
	assert.False(t, tr.Exists("dir"))
	assert.False(t, tr.Exists("dir/f.txt"))
}

func TestSymlinkRoundtrip(t *testing.T) {
	tr, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, tr.AddDir("."))
	require.NoError(t, tr.MakeSymlink("link", []byte("target/path")))
	assert.True(t, tr.IsSymlink("link"))

	target, err := tr.ReadSymlink("link")
	require.NoError(t, err)
	assert.Equal(t, "target/path", target)

	content, err := tr.MakeSvnlink("link")
	require.NoError(t, err)
	assert.Equal(t, "link target/path", string(content))
	assert.False(t, tr.IsSymlink("link"))
}

func TestWalkVisitsFilesAndDirs(t *testing.T) {
	tr, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, tr.WriteFile("a.txt", []byte("x")))
	require.NoError(t, tr.AddDir("sub"))
	require.NoError(t, tr.WriteFile("sub/b.txt", []byte("y")))
	require.NoError(t, tr.SetExecutable("sub/b.txt", true))

	var seen []workingtree.Entry
	require.NoError(t, tr.Walk(func(e workingtree.Entry) error {
		seen = append(seen, e)
		return nil
	}))

	var foundExec bool
	for _, e := range seen {
		if e.Path == "sub/b.txt" {
			foundExec = e.Kind == workingtree.KindExecFile
		}
	}
	assert.True(t, foundExec)
}
