package ingest

import (
	"context"

	"github.com/odysseus0/campusfeed/internal/docstore"
)

const DefaultMaxRetained = 200

// Trimmer keeps the newest maxRetained items of a collection.
type Trimmer struct {
	store       docstore.Store
	maxRetained int
	batchSize   int
}

func NewTrimmer(store docstore.Store, maxRetained, batchSize int) *Trimmer {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &Trimmer{store: store, maxRetained: maxRetained, batchSize: batchSize}
}

// Trim deletes everything past the newest maxRetained items, ordered by
// publishedAt descending with id as tiebreaker. It returns the number of
// deleted documents.
func (t *Trimmer) Trim(ctx context.Context, collection string) (int, error) {
	records, err := t.store.Find(ctx, collection, docstore.Query{OrderBy: publishedAtField, Descending: true})
	if err != nil {
		return 0, newError(KindStoreWrite, "list "+collection, err)
	}
	if len(records) <= t.maxRetained {
		return 0, nil
	}

	deleted := 0
	batch := t.store.NewBatch()
	overflow := records[t.maxRetained:]
	for i, rec := range overflow {
		batch.Delete(collection, rec.ID)
		if batch.Len() >= t.batchSize || i == len(overflow)-1 {
			n := batch.Len()
			if err := batch.Commit(ctx); err != nil {
				return deleted, newError(KindStoreWrite, "trim "+collection, err)
			}
			deleted += n
		}
	}
	return deleted, nil
}
