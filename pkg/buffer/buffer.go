// Package buffer holds the most recent enriched records of a session.
package buffer

import (
	"sync"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

const DefaultCapacity = 100

// Buffer is a bounded FIFO of enriched records. Once the capacity is reached
// the oldest record is evicted on push. Readers share the lock, writers hold
// it exclusively.
type Buffer struct {
	mu      sync.RWMutex
	items   []model.EnrichedRecord // ring storage
	start   int                    // index of the oldest record
	size    int
	context *model.RaceContext
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]model.EnrichedRecord, capacity)}
}

// Push appends rec and returns the resulting size. It never blocks on capacity.
func (b *Buffer) Push(rec model.EnrichedRecord) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := len(b.items)
	if b.size < c {
		b.items[(b.start+b.size)%c] = rec
		b.size++
	} else {
		b.items[b.start] = rec
		b.start = (b.start + 1) % c
	}
	return b.size
}

// Snapshot returns the most recent limit records in chronological order
// (oldest first). A limit <= 0 returns all records.
func (b *Buffer) Snapshot(limit int) []model.EnrichedRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.size
	if limit > 0 && limit < n {
		n = limit
	}
	ret := make([]model.EnrichedRecord, n)
	c := len(b.items)
	first := b.start + b.size - n
	for i := range n {
		ret[i] = b.items[(first+i)%c]
	}
	return ret
}

// Latest returns the most recently pushed record
func (b *Buffer) Latest() (model.EnrichedRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return model.EnrichedRecord{}, false
	}
	return b.items[(b.start+b.size-1)%len(b.items)], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.items)
}

// SetContext stores rc as the latest race context (last writer wins)
func (b *Buffer) SetContext(rc *model.RaceContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.context = rc.Clone()
}

// LatestContext returns a copy of the latest race context
func (b *Buffer) LatestContext() (*model.RaceContext, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.context == nil {
		return nil, false
	}
	return b.context.Clone(), true
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.items)
	b.start = 0
	b.size = 0
	b.context = nil
}
