// Package loader orchestrates one full load of an SVN repository into
// the archive, driving the Replay Editor one revision at a time and
// handling resume, divergence detection and the end-of-visit snapshot.
package loader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivefeed/svnloader/archive"
	"github.com/archivefeed/svnloader/bookkeeping"
	"github.com/archivefeed/svnloader/hashtree"
	"github.com/archivefeed/svnloader/objects"
	"github.com/archivefeed/svnloader/replay"
	"github.com/archivefeed/svnloader/revision"
	"github.com/archivefeed/svnloader/svn"
	"github.com/archivefeed/svnloader/workingtree"
)

// Config is the subset of config.LoaderConfig the walker needs,
// decoupled from the YAML type so tests can construct it directly.
type Config struct {
	Origin            string
	StartFromScratch  bool
	StopAtRevision    int // -1 means "no limit"
	ExistenceCacheCap int
}

// Loader drives one load from start to finish.
type Loader struct {
	session svn.Session
	client  archive.Client
	store   bookkeeping.Store
	tree    *workingtree.Tree
	log     *logrus.Entry
	cfg     Config
}

// New constructs a Loader. tree is the scratch working directory to
// use; callers own its lifecycle.
func New(session svn.Session, client archive.Client, store bookkeeping.Store, tree *workingtree.Tree, log *logrus.Entry, cfg Config) *Loader {
	return &Loader{session: session, client: client, store: store, tree: tree, log: log, cfg: cfg}
}

func kindOf(k workingtree.Kind) objects.Kind {
	switch k {
	case workingtree.KindExecFile:
		return objects.KindExecFile
	case workingtree.KindSymlink:
		return objects.KindSymlink
	default:
		return objects.KindFile
	}
}

// Run executes steps 1-6 of the History Walker, returning the final
// snapshot identifier on success.
func (l *Loader) Run(ctx context.Context) (objects.ID, error) {
	uuid, err := l.session.GetUUID(ctx)
	if err != nil {
		return objects.ID{}, fmt.Errorf("%w: get uuid: %v", ErrSvnProtocol, err)
	}
	headRev, err := l.session.GetHeadRevision(ctx)
	if err != nil {
		return objects.ID{}, fmt.Errorf("%w: get head revision: %v", ErrSvnProtocol, err)
	}
	if l.cfg.StopAtRevision >= 0 && l.cfg.StopAtRevision < headRev {
		headRev = l.cfg.StopAtRevision
	}

	hash := hashtree.New()
	var parent *objects.ID
	startRev := 1

	prior, ok, err := l.store.Get(ctx, l.cfg.Origin)
	if err != nil {
		return objects.ID{}, fmt.Errorf("loader: reading visit state: %w", err)
	}

	if ok && !l.cfg.StartFromScratch {
		l.log.WithFields(logrus.Fields{"origin": l.cfg.Origin, "resume_from": prior.LastSvnRevision}).
			Info("resuming prior visit")

		if err := l.session.Export(ctx, "@"+strconv.Itoa(prior.LastSvnRevision), l.tree.Root(), true); err != nil {
			return objects.ID{}, fmt.Errorf("%w: exporting resume working copy: %v", ErrWorkingTreeIO, err)
		}
		if err := rebuildHashTree(l.tree, hash); err != nil {
			return objects.ID{}, fmt.Errorf("%w: rebuilding hash tree: %v", ErrWorkingTreeIO, err)
		}

		logEntries, err := l.session.GetLog(ctx, prior.LastSvnRevision, prior.LastSvnRevision)
		if err != nil || len(logEntries) == 0 {
			return objects.ID{}, fmt.Errorf("%w: fetching log for r%d: %v", ErrSvnProtocol, prior.LastSvnRevision, err)
		}

		priorRev, found, err := l.client.RevisionGet(ctx, prior.LastRevisionID)
		if err != nil {
			return objects.ID{}, fmt.Errorf("loader: fetching prior revision: %w", err)
		}
		if !found {
			return objects.ID{}, fmt.Errorf("loader: prior revision %s referenced by visit state not found in archive", prior.LastRevisionID)
		}

		var builder revision.Builder
		rootID := hash.RootID()
		recomputedRev := builder.Build(rootID, priorRev.Revision.ParentID, logEntries[0], uuid)
		recomputedID := objects.HashRevision(recomputedRev)
		if recomputedID != prior.LastRevisionID {
			return objects.ID{}, &HistoryAlteredError{
				Revision: prior.LastSvnRevision,
				Want:     prior.LastRevisionID.Hex(),
				Got:      recomputedID.Hex(),
			}
		}

		startRev = prior.LastSvnRevision + 1
		id := prior.LastRevisionID
		parent = &id
	}

	if startRev > headRev {
		if parent == nil {
			return l.emitEmptySnapshot(ctx, uuid)
		}
		return l.emitSnapshot(ctx, *parent, prior.LastSvnRevision, uuid)
	}

	editor := replay.New(l.session, l.tree, hash, l.log)
	cache := archive.NewExistenceCache(l.cfg.ExistenceCacheCap)
	var builder revision.Builder
	lastRev := startRev - 1

	for rev := startRev; rev <= headRev; rev++ {
		select {
		case <-ctx.Done():
			return objects.ID{}, ctx.Err()
		default:
		}

		entries, err := l.session.GetLog(ctx, rev, rev)
		if err != nil || len(entries) == 0 {
			return objects.ID{}, fmt.Errorf("%w: fetching log for r%d: %v", ErrSvnProtocol, rev, err)
		}

		editor.BeginRevision(ctx)
		if err := l.session.DoReplay(ctx, rev, editor); err != nil {
			rerr := classifyReplayError(rev, err)
			l.log.WithError(rerr).WithField("revision", rev).Error("revision replay failed")
			return objects.ID{}, rerr
		}

		rootID := hash.RootID()
		built := builder.Build(rootID, parent, entries[0], uuid)
		revID := objects.HashRevision(built)

		if err := l.submitWithRetry(ctx, cache, editor.Blobs(), hash.Directories(), built, revID); err != nil {
			return objects.ID{}, err
		}

		parent = &revID
		lastRev = rev

		if err := l.store.Put(ctx, l.cfg.Origin, bookkeeping.VisitState{
			LastSvnRevision: lastRev,
			LastRevisionID:  revID,
			RepoUUID:        uuid,
		}); err != nil {
			return objects.ID{}, fmt.Errorf("loader: checkpointing visit state: %w", err)
		}

		l.log.WithFields(logrus.Fields{"revision": rev, "revision_id": revID.Hex()}).Info("revision submitted")
	}

	if parent == nil {
		return l.emitEmptySnapshot(ctx, uuid)
	}
	return l.emitSnapshot(ctx, *parent, lastRev, uuid)
}

// emitEmptySnapshot handles a repository with no revisions to load: a
// well-defined snapshot with no branches at all, distinct from a
// snapshot whose single HEAD branch happens to point at an empty tree.
func (l *Loader) emitEmptySnapshot(ctx context.Context, uuid string) (objects.ID, error) {
	snap := &objects.Snapshot{}
	snapID := objects.HashSnapshot(snap)
	if err := l.client.SnapshotAdd(ctx, archive.Snap{ID: snapID, Snapshot: snap}); err != nil {
		return objects.ID{}, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if err := l.client.OriginVisitUpdate(ctx, l.cfg.Origin, time.Now().UnixNano(), archive.VisitFull, snapID); err != nil {
		return objects.ID{}, fmt.Errorf("loader: updating origin visit: %w", err)
	}
	if err := l.store.Put(ctx, l.cfg.Origin, bookkeeping.VisitState{
		LastSnapshotID: snapID,
		RepoUUID:       uuid,
	}); err != nil {
		return objects.ID{}, fmt.Errorf("loader: checkpointing final visit state: %w", err)
	}
	return snapID, nil
}

func (l *Loader) emitSnapshot(ctx context.Context, head objects.ID, lastRev int, uuid string) (objects.ID, error) {
	snap := &objects.Snapshot{Branches: []objects.Branch{{Name: "HEAD", Target: head}}}
	snapID := objects.HashSnapshot(snap)
	if err := l.client.SnapshotAdd(ctx, archive.Snap{ID: snapID, Snapshot: snap}); err != nil {
		return objects.ID{}, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if err := l.client.OriginVisitUpdate(ctx, l.cfg.Origin, time.Now().UnixNano(), archive.VisitFull, snapID); err != nil {
		return objects.ID{}, fmt.Errorf("loader: updating origin visit: %w", err)
	}
	if err := l.store.Put(ctx, l.cfg.Origin, bookkeeping.VisitState{
		LastSvnRevision: lastRev,
		LastRevisionID:  head,
		LastSnapshotID:  snapID,
		RepoUUID:        uuid,
	}); err != nil {
		return objects.ID{}, fmt.Errorf("loader: checkpointing final visit state: %w", err)
	}
	return snapID, nil
}

// submitWithRetry submits one revision's objects, retrying only on
// archive failures, with exponential backoff bounded at 5 attempts.
func (l *Loader) submitWithRetry(ctx context.Context, cache *archive.ExistenceCache, blobs map[objects.ID][]byte, dirs []hashtree.Dir, rev *objects.Revision, revID objects.ID) error {
	const maxAttempts = 5
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := revision.Submit(ctx, l.client, cache, blobs, dirs, rev, revID)
		if err == nil {
			return nil
		}
		lastErr = err
		l.log.WithError(err).WithField("attempt", attempt).Warn("archive submission failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &ArchiveError{Attempts: maxAttempts, Cause: lastErr}
}

// classifyReplayError sorts one DoReplay failure into a loader error
// kind. Callback errors carry their originating package's message prefix,
// which is enough to tell a decode failure from a disk failure without
// those packages needing to know about the loader's error kinds.
func classifyReplayError(rev int, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "svndiff:"):
		return fmt.Errorf("r%d: %w: %v", rev, ErrSvndiffApply, err)
	case strings.Contains(msg, "workingtree:"):
		return fmt.Errorf("r%d: %w: %v", rev, ErrWorkingTreeIO, err)
	default:
		return &UnsupportedRevisionShapeError{Revision: rev, Reason: msg}
	}
}

// rebuildHashTree performs the one-time full walk required on resume:
// every file under the exported working copy is
// re-hashed and inserted, since the in-memory Hash Tree does not survive
// between process runs.
func rebuildHashTree(tree *workingtree.Tree, hash *hashtree.Tree) error {
	return tree.Walk(func(entry workingtree.Entry) error {
		if entry.Kind == workingtree.KindDir {
			return hash.PutDir(entry.Path)
		}

		var data []byte
		if entry.Kind == workingtree.KindSymlink {
			target, err := tree.ReadSymlink(entry.Path)
			if err != nil {
				return err
			}
			data = append([]byte("link "), target...)
		} else {
			d, err := tree.ReadFile(entry.Path)
			if err != nil {
				return err
			}
			data = d
		}

		id := objects.HashBlob(data)
		return hash.PutFile(entry.Path, id, kindOf(entry.Kind))
	})
}
