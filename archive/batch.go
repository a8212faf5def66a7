package archive

import (
	"context"
	"fmt"

	"github.com/archivefeed/svnloader/objects"
)

// DefaultBatchSize bounds archive submission batches to a few thousand
// objects, keeping a single submission request's memory footprint
// bounded regardless of revision size.
const DefaultBatchSize = 4096

// BatchSubmit filters items down to the ones the archive doesn't already
// have (via missing, called in batches of at most batchSize) and submits
// only those (via add, also batched). missing is the archive's own
// existence check and is taken as authoritative: exactly the items it
// reports are submitted, so an empty result submits nothing.
//
// The equivalent idea -- apply one function to size-bounded chunks of a
// list -- is expressed directly over slices since archive batches are
// synchronous request/response calls, not a long-lived queue.
func BatchSubmit[T any](
	ctx context.Context,
	items []T,
	batchSize int,
	idOf func(T) objects.ID,
	missing func(context.Context, []objects.ID) ([]objects.ID, error),
	add func(context.Context, []T) error,
) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	byID := make(map[objects.ID]T, len(items))
	ids := make([]objects.ID, 0, len(items))
	for _, item := range items {
		id := idOf(item)
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = item
		ids = append(ids, id)
	}

	var toSubmit []T
	for chunk := range chunks(ids, batchSize) {
		missingIDs, err := missing(ctx, chunk)
		if err != nil {
			return fmt.Errorf("archive: checking existence: %w", err)
		}
		for _, id := range missingIDs {
			toSubmit = append(toSubmit, byID[id])
		}
	}

	for chunk := range chunksOf(toSubmit, batchSize) {
		if err := add(ctx, chunk); err != nil {
			return fmt.Errorf("archive: submitting batch: %w", err)
		}
	}
	return nil
}

func chunks(ids []objects.ID, size int) <-chan []objects.ID {
	ch := make(chan []objects.ID)
	go func() {
		defer close(ch)
		for i := 0; i < len(ids); i += size {
			end := i + size
			if end > len(ids) {
				end = len(ids)
			}
			ch <- ids[i:end]
		}
	}()
	return ch
}

func chunksOf[T any](items []T, size int) <-chan []T {
	ch := make(chan []T)
	go func() {
		defer close(ch)
		for i := 0; i < len(items); i += size {
			end := i + size
			if end > len(items) {
				end = len(items)
			}
			ch <- items[i:end]
		}
	}()
	return ch
}
