// Package docstore is a small collection-scoped document store with merge
// writes, ordered queries and batched commits. Backends: sqlite, postgres,
// mongo and an in-process memory store.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Record is a document together with its key.
type Record struct {
	ID   string
	Data Document
}

// Query selects documents of one collection. An empty OrderBy sorts by id.
// Limit <= 0 returns every document.
type Query struct {
	OrderBy    string
	Descending bool
	Limit      int
	// After resumes the listing behind the given position. Requires OrderBy.
	After *Cursor
}

// Cursor is a position in an ordered listing: the OrderBy value and id of the
// last document already seen.
type Cursor struct {
	Value any
	ID    string
}

type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set inserts the document or merges data into the existing one.
	Set(ctx context.Context, collection, id string, data Document) error
	// Add stores data under a freshly generated id.
	Add(ctx context.Context, collection string, data Document) (string, error)
	Find(ctx context.Context, collection string, q Query) ([]Record, error)
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are committed together. A batch is emptied by a
// successful Commit and may be reused afterwards.
type Batch interface {
	Set(collection, id string, data Document)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

var (
	collectionRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	fieldRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
)

// ValidCollectionName reports whether name can be used as a collection.
func ValidCollectionName(name string) bool {
	return collectionRe.MatchString(name)
}

func checkCollection(collection string) error {
	if !ValidCollectionName(collection) {
		return fmt.Errorf("%w: collection name %q", ErrInvalidInput, collection)
	}
	return nil
}

func checkKey(collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if id == "" || len(id) > 256 {
		return fmt.Errorf("%w: document id %q", ErrInvalidInput, id)
	}
	return nil
}

func checkQuery(collection string, q Query) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if q.OrderBy != "" && !fieldRe.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: order field %q", ErrInvalidInput, q.OrderBy)
	}
	if q.After != nil && (q.OrderBy == "" || q.After.Value == nil) {
		return fmt.Errorf("%w: cursor needs an order field and value", ErrInvalidInput)
	}
	return nil
}

type opKind int

const (
	opSet opKind = iota
	opDelete
)

type batchOp struct {
	kind       opKind
	collection string
	id         string
	data       Document
}

// opList is the shared bookkeeping of every Batch implementation. Invalid
// operations are remembered and reported on Commit.
type opList struct {
	ops []batchOp
	err error
}

func (l *opList) Set(collection, id string, data Document) {
	if err := checkKey(collection, id); err != nil {
		l.errOnce(err)
		return
	}
	l.ops = append(l.ops, batchOp{kind: opSet, collection: collection, id: id, data: Compact(data)})
}

func (l *opList) Delete(collection, id string) {
	if err := checkKey(collection, id); err != nil {
		l.errOnce(err)
		return
	}
	l.ops = append(l.ops, batchOp{kind: opDelete, collection: collection, id: id})
}

func (l *opList) Len() int {
	return len(l.ops)
}

func (l *opList) errOnce(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *opList) reset() {
	l.ops = nil
	l.err = nil
}
