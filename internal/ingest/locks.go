package ingest

import "sync"

// collectionLocks hands out one mutex per collection name.
type collectionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCollectionLocks() *collectionLocks {
	return &collectionLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *collectionLocks) lock(collection string) (unlock func()) {
	c.mu.Lock()
	m, ok := c.locks[collection]
	if !ok {
		m = &sync.Mutex{}
		c.locks[collection] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
