package svndump

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivefeed/svnloader/svn"
)

// buildDump assembles a minimal two-revision dump file: r1 adds a
// directory and a file, r2 modifies the file and adds an empty
// subdirectory.
func buildDump(t *testing.T) string {
	t.Helper()

	r1Props := "K 10\nsvn:author\nV 5\nalice\nK 8\nsvn:date\nV 27\n2020-01-01T00:00:00.000000Z\nK 7\nsvn:log\nV 5\nfirst\nPROPS-END\n"
	r2Props := "K 10\nsvn:author\nV 5\nalice\nK 8\nsvn:date\nV 27\n2020-01-02T00:00:00.000000Z\nK 7\nsvn:log\nV 6\nsecond\nPROPS-END\n"

	text1 := "hello\n"
	text2 := "hello world\n"

	var sb []byte
	sb = append(sb, "SVN-fs-dump-format-version: 2\n\n"...)
	sb = append(sb, "UUID: 11111111-1111-1111-1111-111111111111\n\n"...)

	sb = append(sb, []byte("Revision-number: 1\n")...)
	sb = append(sb, []byte("Prop-content-length: "+itoa(len(r1Props))+"\n")...)
	sb = append(sb, []byte("Content-length: "+itoa(len(r1Props))+"\n\n")...)
	sb = append(sb, []byte(r1Props)...)
	sb = append(sb, '\n')

	sb = append(sb, []byte("Node-path: trunk\n")...)
	sb = append(sb, []byte("Node-kind: dir\n")...)
	sb = append(sb, []byte("Node-action: add\n\n")...)
	sb = append(sb, '\n')

	sb = append(sb, []byte("Node-path: trunk/hello.txt\n")...)
	sb = append(sb, []byte("Node-kind: file\n")...)
	sb = append(sb, []byte("Node-action: add\n")...)
	sb = append(sb, []byte("Text-content-length: "+itoa(len(text1))+"\n")...)
	sb = append(sb, []byte("Content-length: "+itoa(len(text1))+"\n\n")...)
	sb = append(sb, []byte(text1)...)
	sb = append(sb, '\n')

	sb = append(sb, []byte("Revision-number: 2\n")...)
	sb = append(sb, []byte("Prop-content-length: "+itoa(len(r2Props))+"\n")...)
	sb = append(sb, []byte("Content-length: "+itoa(len(r2Props))+"\n\n")...)
	sb = append(sb, []byte(r2Props)...)
	sb = append(sb, '\n')

	sb = append(sb, []byte("Node-path: trunk/hello.txt\n")...)
	sb = append(sb, []byte("Node-kind: file\n")...)
	sb = append(sb, []byte("Node-action: change\n")...)
	sb = append(sb, []byte("Text-content-length: "+itoa(len(text2))+"\n")...)
	sb = append(sb, []byte("Content-length: "+itoa(len(text2))+"\n\n")...)
	sb = append(sb, []byte(text2)...)
	sb = append(sb, '\n')

	sb = append(sb, []byte("Node-path: trunk/sub\n")...)
	sb = append(sb, []byte("Node-kind: dir\n")...)
	sb = append(sb, []byte("Node-action: add\n\n")...)
	sb = append(sb, '\n')

	dir := t.TempDir()
	path := filepath.Join(dir, "repo.dump")
	require.NoError(t, os.WriteFile(path, sb, 0o644))
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestOpenDumpFileParsesHeadersAndNodes(t *testing.T) {
	path := buildDump(t)
	df, err := OpenDumpFile(path)
	require.NoError(t, err)
	defer df.Close()

	assert.Equal(t, 2, df.Format)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", df.UUID)
	require.Len(t, df.Revisions, 2)

	r1 := df.Revisions[0]
	assert.Equal(t, 1, r1.Number)
	assert.Equal(t, "alice", r1.Author())
	assert.Equal(t, "first", r1.Message())
	require.Len(t, r1.Nodes, 2)
	assert.Equal(t, "trunk", r1.Nodes[0].Path)
	assert.Equal(t, svn.NodeDir, r1.Nodes[0].Kind)
	assert.Equal(t, "trunk/hello.txt", r1.Nodes[1].Path)
	assert.Equal(t, []byte("hello\n"), r1.Nodes[1].Text)

	r2 := df.Revisions[1]
	assert.Equal(t, "second", r2.Message())
	require.Len(t, r2.Nodes, 2)
	assert.Equal(t, []byte("hello world\n"), r2.Nodes[0].Text)
	assert.Equal(t, svn.ActionAdd, r2.Nodes[1].Action)
}

func TestSessionGetLogAndHeadRevision(t *testing.T) {
	path := buildDump(t)
	sess, err := Open(path)
	require.NoError(t, err)
	defer sess.dump.Close()

	ctx := context.Background()
	head, err := sess.GetHeadRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, head)

	entries, err := sess.GetLog(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Author)
	assert.Equal(t, "second", entries[1].Message)
}

func TestSessionExportWholeTree(t *testing.T) {
	path := buildDump(t)
	sess, err := Open(path)
	require.NoError(t, err)
	defer sess.dump.Close()

	dest := t.TempDir()
	require.NoError(t, sess.Export(context.Background(), "@2", dest, true))

	got, err := os.ReadFile(filepath.Join(dest, "trunk", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(got))
}

func TestSessionExportSubtree(t *testing.T) {
	path := buildDump(t)
	sess, err := Open(path)
	require.NoError(t, err)
	defer sess.dump.Close()

	dest := t.TempDir()
	require.NoError(t, sess.Export(context.Background(), "trunk@1", dest, true))

	got, err := os.ReadFile(filepath.Join(dest, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}
