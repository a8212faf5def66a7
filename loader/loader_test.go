package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivefeed/svnloader/archive/memory"
	bkmemory "github.com/archivefeed/svnloader/bookkeeping/memory"
	"github.com/archivefeed/svnloader/objects"
	"github.com/archivefeed/svnloader/svndump"
	"github.com/archivefeed/svnloader/workingtree"
)

// writeDump assembles a dump of up to three revisions (as many as
// revisions asks for): r1 adds a file, r2 modifies it, r3 adds a second
// file, using the same wire shapes svndump's own tests build from.
func writeDump(t *testing.T, revisions int) string {
	t.Helper()

	propBlock := func(author, date, msg string) string {
		return "K 10\nsvn:author\nV " + itoa(len(author)) + "\n" + author + "\n" +
			"K 8\nsvn:date\nV " + itoa(len(date)) + "\n" + date + "\n" +
			"K 7\nsvn:log\nV " + itoa(len(msg)) + "\n" + msg + "\nPROPS-END\n"
	}

	var out []byte
	out = append(out, "SVN-fs-dump-format-version: 2\n\n"...)
	out = append(out, "UUID: 22222222-2222-2222-2222-222222222222\n\n"...)

	writeRevision := func(num int, author, date, msg string, nodes [][3]string) {
		props := propBlock(author, date, msg)
		out = append(out, []byte("Revision-number: "+itoa(num)+"\n")...)
		out = append(out, []byte("Prop-content-length: "+itoa(len(props))+"\n")...)
		out = append(out, []byte("Content-length: "+itoa(len(props))+"\n\n")...)
		out = append(out, []byte(props)...)
		out = append(out, '\n')

		for _, n := range nodes {
			path, action, text := n[0], n[1], n[2]
			out = append(out, []byte("Node-path: "+path+"\n")...)
			out = append(out, []byte("Node-kind: file\n")...)
			out = append(out, []byte("Node-action: "+action+"\n")...)
			out = append(out, []byte("Text-content-length: "+itoa(len(text))+"\n")...)
			out = append(out, []byte("Content-length: "+itoa(len(text))+"\n\n")...)
			out = append(out, []byte(text)...)
			out = append(out, '\n')
		}
	}

	writeRevision(1, "alice", "2020-01-01T00:00:00.000000Z", "first",
		[][3]string{{"hello.txt", "add", "hello\n"}})
	if revisions >= 2 {
		writeRevision(2, "alice", "2020-01-02T00:00:00.000000Z", "second",
			[][3]string{{"hello.txt", "change", "hello world\n"}})
	}
	if revisions >= 3 {
		writeRevision(3, "bob", "2020-01-03T00:00:00.000000Z", "third",
			[][3]string{{"another.txt", "add", "another\n"}})
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "repo.dump")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestLoaderRunFreshLoadSubmitsAllRevisions(t *testing.T) {
	dumpPath := writeDump(t, 2)
	session, err := svndump.Open(dumpPath)
	require.NoError(t, err)
	defer session.Close()

	client := memory.New()
	store := bkmemory.New()
	tree, err := workingtree.New(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())

	l := New(session, client, store, tree, log, Config{Origin: "test-origin", StopAtRevision: -1})
	snapID, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, snapID.IsZero())

	_, _, revCount := client.Counts()
	assert.Equal(t, 2, revCount)

	state, ok, err := store.Get(context.Background(), "test-origin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, state.LastSvnRevision)
	assert.Equal(t, snapID, state.LastSnapshotID)
}

func TestLoaderRunEmptyRepositoryEmitsBranchlessSnapshot(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "repo.dump")
	empty := "SVN-fs-dump-format-version: 2\n\nUUID: 33333333-3333-3333-3333-333333333333\n\n"
	require.NoError(t, os.WriteFile(dumpPath, []byte(empty), 0o644))

	session, err := svndump.Open(dumpPath)
	require.NoError(t, err)
	defer session.Close()

	client := memory.New()
	store := bkmemory.New()
	tree, err := workingtree.New(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())

	l := New(session, client, store, tree, log, Config{Origin: "test-origin", StopAtRevision: -1})
	snapID, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, objects.HashSnapshot(&objects.Snapshot{}), snapID)

	_, _, revCount := client.Counts()
	assert.Equal(t, 0, revCount)

	state, ok, err := store.Get(context.Background(), "test-origin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, state.LastSvnRevision)
	assert.Equal(t, snapID, state.LastSnapshotID)
}

func TestLoaderRunResumesFromPriorVisit(t *testing.T) {
	dumpPath := writeDump(t, 2)
	session, err := svndump.Open(dumpPath)
	require.NoError(t, err)
	defer session.Close()

	client := memory.New()
	store := bkmemory.New()
	tree, err := workingtree.New(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())

	l := New(session, client, store, tree, log, Config{Origin: "test-origin", StopAtRevision: -1})
	_, err = l.Run(context.Background())
	require.NoError(t, err)

	_, _, revCountAfterFirstRun := client.Counts()
	assert.Equal(t, 2, revCountAfterFirstRun)

	// Re-running against the same two-revision dump with the same
	// bookkeeping store must be a no-op: there is nothing new to walk.
	l2 := New(session, client, store, tree, log, Config{Origin: "test-origin", StopAtRevision: -1})
	_, err = l2.Run(context.Background())
	require.NoError(t, err)

	_, _, revCountAfterSecondRun := client.Counts()
	assert.Equal(t, 2, revCountAfterSecondRun)
}

func TestLoaderRunDetectsHistoryAlteration(t *testing.T) {
	dumpPath := writeDump(t, 1)
	session, err := svndump.Open(dumpPath)
	require.NoError(t, err)
	defer session.Close()

	client := memory.New()
	store := bkmemory.New()
	tree, err := workingtree.New(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())

	l := New(session, client, store, tree, log, Config{Origin: "test-origin", StopAtRevision: -1})
	_, err = l.Run(context.Background())
	require.NoError(t, err)

	// Rewind the dump's revision 1 to carry a different commit message,
	// standing in for a repository whose history was rewritten after the
	// first visit: the tree is unchanged but the rebuilt revision object
	// now hashes differently than what bookkeeping recorded.
	alteredPath := writeDumpWithMessage(t, "rewritten")
	alteredSession, err := svndump.Open(alteredPath)
	require.NoError(t, err)
	defer alteredSession.Close()

	tree2, err := workingtree.New(t.TempDir())
	require.NoError(t, err)

	l2 := New(alteredSession, client, store, tree2, log, Config{Origin: "test-origin", StopAtRevision: -1})
	_, err = l2.Run(context.Background())
	require.Error(t, err)
	var altered *HistoryAlteredError
	assert.ErrorAs(t, err, &altered)
}

// writeDumpWithMessage builds a single-revision dump identical to
// writeDump(t, 1)'s except for its commit message.
func writeDumpWithMessage(t *testing.T, msg string) string {
	t.Helper()

	author, date := "alice", "2020-01-01T00:00:00.000000Z"
	props := "K 10\nsvn:author\nV " + itoa(len(author)) + "\n" + author + "\n" +
		"K 8\nsvn:date\nV " + itoa(len(date)) + "\n" + date + "\n" +
		"K 7\nsvn:log\nV " + itoa(len(msg)) + "\n" + msg + "\nPROPS-END\n"
	text := "hello\n"

	var out []byte
	out = append(out, "SVN-fs-dump-format-version: 2\n\n"...)
	out = append(out, "UUID: 22222222-2222-2222-2222-222222222222\n\n"...)
	out = append(out, []byte("Revision-number: 1\n")...)
	out = append(out, []byte("Prop-content-length: "+itoa(len(props))+"\n")...)
	out = append(out, []byte("Content-length: "+itoa(len(props))+"\n\n")...)
	out = append(out, []byte(props)...)
	out = append(out, '\n')
	out = append(out, []byte("Node-path: hello.txt\n")...)
	out = append(out, []byte("Node-kind: file\n")...)
	out = append(out, []byte("Node-action: add\n")...)
	out = append(out, []byte("Text-content-length: "+itoa(len(text))+"\n")...)
	out = append(out, []byte("Content-length: "+itoa(len(text))+"\n\n")...)
	out = append(out, []byte(text)...)
	out = append(out, '\n')

	dir := t.TempDir()
	path := filepath.Join(dir, "repo.dump")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}
