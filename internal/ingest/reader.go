package ingest

import (
	"context"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const DefaultLatestLimit = 200

// Reader lists stored items newest first.
type Reader struct {
	store        docstore.Store
	defaultLimit int
}

func NewReader(store docstore.Store, defaultLimit int) *Reader {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLatestLimit
	}
	return &Reader{store: store, defaultLimit: defaultLimit}
}

// Latest returns up to limit items of collection, ordered by publishedAt
// descending. limit <= 0 uses the reader's default.
func (r *Reader) Latest(ctx context.Context, collection string, limit int) ([]model.StoredItem, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	records, err := r.store.Find(ctx, collection, docstore.Query{
		OrderBy:    publishedAtField,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	items := make([]model.StoredItem, 0, len(records))
	for _, rec := range records {
		items = append(items, storedItemFromRecord(rec))
	}
	return items, nil
}
