package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. Batch commits apply under one lock
// and are therefore atomic.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkKey(collection, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, ErrNotFound)
	}
	return doc.clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data Document) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(collection, id, Compact(data))
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := checkQuery(collection, q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	records := make([]Record, 0, len(s.data[collection]))
	for id, doc := range s.data[collection] {
		records = append(records, Record{ID: id, Data: doc.clone()})
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if q.OrderBy != "" {
			a, aok := records[i].Data[q.OrderBy]
			b, bok := records[j].Data[q.OrderBy]
			switch {
			case aok && !bok:
				return true
			case !aok && bok:
				return false
			case aok && bok:
				c := compareValues(a, b)
				if q.Descending {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
		}
		return records[i].ID < records[j].ID
	})
	if q.After != nil {
		records = afterCursor(records, q)
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of documents in collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *MemoryStore) merge(collection, id string, data Document) {
	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string]Document)
		s.data[collection] = docs
	}
	existing, ok := docs[id]
	if !ok {
		docs[id] = data.clone()
		return
	}
	for k, v := range data {
		existing[k] = v
	}
}

type memoryBatch struct {
	opList
	store *MemoryStore
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	for _, op := range b.ops {
		switch op.kind {
		case opSet:
			b.store.merge(op.collection, op.id, op.data)
		case opDelete:
			delete(b.store.data[op.collection], op.id)
		}
	}
	b.store.mu.Unlock()
	b.reset()
	return nil
}

// afterCursor drops every record ordered at or before the cursor. records must
// already be sorted by q.
func afterCursor(records []Record, q Query) []Record {
	cv, _ := normalizeValue(q.After.Value)
	for i, rec := range records {
		v, ok := rec.Data[q.OrderBy]
		if !ok {
			return records[i:]
		}
		c := compareValues(v, cv)
		if q.Descending {
			c = -c
		}
		if c > 0 || (c == 0 && rec.ID > q.After.ID) {
			return records[i:]
		}
	}
	return records[:0]
}
