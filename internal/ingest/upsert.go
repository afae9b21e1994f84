package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const (
	DefaultBatchSize = 500
	DefaultMaxItems  = 200
)

// Upserter writes feed items into a collection in bounded batches.
type Upserter struct {
	store     docstore.Store
	batchSize int
	maxItems  int
	now       func() time.Time
}

func NewUpserter(store docstore.Store, batchSize, maxItems int) *Upserter {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Upserter{store: store, batchSize: batchSize, maxItems: maxItems, now: time.Now}
}

// Upsert merges items into collection in feed order, skipping items published
// at or before cutoff and stopping after maxItems writes. Items whose date was
// inferred are never compared against cutoff; when one is already stored,
// its original publishedAt is kept. The returned count covers committed
// writes only, so on a StoreWrite error it reflects the batches that are
// durable.
func (u *Upserter) Upsert(ctx context.Context, collection string, items []model.FeedItem, cutoff *time.Time) (int, error) {
	fetchedAt := u.now()
	batch := u.store.NewBatch()
	committed, pending := 0, 0

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := batch.Commit(ctx); err != nil {
			return newError(KindStoreWrite, "commit batch to "+collection, err)
		}
		committed += pending
		pending = 0
		return nil
	}

	for _, item := range items {
		if committed+pending >= u.maxItems {
			break
		}
		if cutoff != nil && !item.DateInferred && !item.PublishedAt.After(*cutoff) {
			continue
		}

		id := DeriveID(item)
		doc := itemDocument(item, fetchedAt)
		if item.DateInferred {
			exists, err := u.exists(ctx, collection, id)
			if err != nil {
				return committed, newError(KindStoreWrite, "lookup "+collection, err)
			}
			if exists {
				delete(doc, publishedAtField)
				delete(doc, "dateInferred")
			}
		}

		batch.Set(collection, id, doc)
		pending++
		if batch.Len() >= u.batchSize {
			if err := flush(); err != nil {
				return committed, err
			}
		}
	}
	if err := flush(); err != nil {
		return committed, err
	}
	return committed, nil
}

func (u *Upserter) exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := u.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
