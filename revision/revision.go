// Package revision turns one replayed SVN revision into a
// content-addressed Revision object and drives its ordered submission
// to the archive.
package revision

import (
	"context"
	"fmt"

	"github.com/archivefeed/svnloader/archive"
	"github.com/archivefeed/svnloader/hashtree"
	"github.com/archivefeed/svnloader/objects"
	"github.com/archivefeed/svnloader/svn"
)

// Builder has no state of its own; revision identity depends only on its
// Build inputs.
type Builder struct{}

// Build renders one svn.LogEntry into a Revision object. Author and
// committer are emitted verbatim with no synthetic email address, per
// the pinned Open Question on author identity.
func (Builder) Build(treeID objects.ID, parentID *objects.ID, log svn.LogEntry, repoUUID string) *objects.Revision {
	date := fmt.Sprintf("%d.%06d +0000", log.Date.Unix(), log.Date.Nanosecond()/1000)
	return &objects.Revision{
		TreeID:        treeID,
		ParentID:      parentID,
		Author:        log.Author,
		AuthorDate:    date,
		Committer:     log.Author,
		CommitterDate: date,
		Message:       log.Message,
		ExtraHeaders: []objects.HeaderKV{
			{Key: "svn_repo_uuid", Value: repoUUID},
			{Key: "svn_revision", Value: fmt.Sprintf("%d", log.Revision)},
		},
	}
}

// Submit pushes one revision's objects to client in dependency order:
// missing blobs, then missing directories (post-order), then the
// revision itself. cache elides existence checks for
// identifiers already known present; it is an optimization only.
func Submit(
	ctx context.Context,
	client archive.Client,
	cache *archive.ExistenceCache,
	blobs map[objects.ID][]byte,
	dirs []hashtree.Dir,
	rev *objects.Revision,
	revID objects.ID,
) error {
	blobList := make([]archive.Blob, 0, len(blobs))
	for id, content := range blobs {
		blobList = append(blobList, archive.Blob{ID: id, Content: content})
	}
	if err := submitCached(ctx, cache, blobList,
		func(b archive.Blob) objects.ID { return b.ID },
		client.ContentMissing, client.ContentAdd,
	); err != nil {
		return fmt.Errorf("revision: submitting blobs: %w", err)
	}

	dirList := make([]archive.Dir, 0, len(dirs))
	for _, d := range dirs {
		dirList = append(dirList, archive.Dir{ID: d.ID, Entries: d.Entries})
	}
	if err := submitCached(ctx, cache, dirList,
		func(d archive.Dir) objects.ID { return d.ID },
		client.DirectoryMissing, client.DirectoryAdd,
	); err != nil {
		return fmt.Errorf("revision: submitting directories: %w", err)
	}

	missing, err := client.RevisionMissing(ctx, []objects.ID{revID})
	if err != nil {
		return fmt.Errorf("revision: checking revision existence: %w", err)
	}
	if len(missing) > 0 {
		if err := client.RevisionAdd(ctx, []archive.Rev{{ID: revID, Revision: rev}}); err != nil {
			return fmt.Errorf("revision: submitting revision: %w", err)
		}
	}
	cache.Add(revID)
	return nil
}

// submitCached wraps archive.BatchSubmit with the shared existence
// cache: a cache hit is treated as present without round-tripping to the
// archive.
func submitCached[T any](
	ctx context.Context,
	cache *archive.ExistenceCache,
	items []T,
	idOf func(T) objects.ID,
	missingFn func(context.Context, []objects.ID) ([]objects.ID, error),
	addFn func(context.Context, []T) error,
) error {
	filtered := items[:0:0]
	for _, item := range items {
		if !cache.Has(idOf(item)) {
			filtered = append(filtered, item)
		}
	}
	err := archive.BatchSubmit(ctx, filtered, 0, idOf, missingFn, func(c context.Context, submitted []T) error {
		if err := addFn(c, submitted); err != nil {
			return err
		}
		for _, item := range submitted {
			cache.Add(idOf(item))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		cache.Add(idOf(item))
	}
	return nil
}
