package relay

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/chronostore/chronostore/pkg/replica"
)

var (
	// ErrBufferFull is returned by TryOffer when the buffer is at capacity.
	ErrBufferFull = errors.New("relay buffer is full")
	// ErrStopped is returned once the relay has been stopped.
	ErrStopped = errors.New("relay stopped")
)

// RelayEntry is one unit of relay work, either a single append request
// or a serialized batch, addressed to a concrete set of receivers.
type RelayEntry struct {
	Single    *replica.AppendEntryRequest
	Batch     *replica.AppendEntriesRequest
	Receivers []replica.Node
}

// Index returns the log position the entry sorts by. Lower positions
// are relayed first so receivers see entries roughly in log order.
func (r RelayEntry) Index() int64 {
	if r.Single != nil {
		return r.Single.PrevLogIndex
	}
	if r.Batch != nil {
		return r.Batch.PrevLogIndex
	}
	return 0
}

// Equal reports whether two relay entries carry the same request to the
// same receivers. Entries that differ only in receivers are distinct
// work and both get relayed.
func (r RelayEntry) Equal(other RelayEntry) bool {
	if !replica.NodesEqual(r.Receivers, other.Receivers) {
		return false
	}
	if (r.Single == nil) != (other.Single == nil) {
		return false
	}
	if r.Single != nil && !r.Single.Equal(other.Single) {
		return false
	}
	if (r.Batch == nil) != (other.Batch == nil) {
		return false
	}
	if r.Batch != nil && !r.Batch.Equal(other.Batch) {
		return false
	}
	return true
}

// Buffer is a bounded buffer of relay entries ordered by log position,
// based on container/heap. Offer blocks while the buffer is full and
// drops duplicates that are already waiting.
type Buffer struct {
	sync.Mutex
	items        []RelayEntry
	capacity     int
	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewBuffer(capacity int, pollInterval time.Duration) *Buffer {
	b := &Buffer{
		items:        make([]RelayEntry, 0, capacity),
		capacity:     capacity,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
	heap.Init(b)
	return b
}

// Len implements sort.Interface
func (b *Buffer) Len() int {
	return len(b.items)
}

// Less implements sort.Interface
func (b *Buffer) Less(i, j int) bool {
	return b.items[i].Index() < b.items[j].Index()
}

// Swap implements sort.Interface
func (b *Buffer) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
}

// Push implements heap.Interface
func (b *Buffer) Push(x any) {
	b.items = append(b.items, x.(RelayEntry))
}

// Pop implements heap.Interface
func (b *Buffer) Pop() any {
	old := b.items
	n := len(old)
	item := old[n-1]
	b.items = old[0 : n-1]
	return item
}

// Offer adds an entry, blocking until there is room or the buffer is
// stopped. The bool reports whether the entry was inserted, false means
// an equal entry was already waiting.
func (b *Buffer) Offer(entry RelayEntry) (bool, error) {
	for {
		b.Lock()
		if b.contains(entry) {
			b.Unlock()
			return false, nil
		}
		if len(b.items) < b.capacity {
			heap.Push(b, entry)
			b.Unlock()
			return true, nil
		}
		b.Unlock()

		select {
		case <-b.stopCh:
			return false, ErrStopped
		case <-time.After(b.pollInterval):
		}
	}
}

// TryOffer is the non-blocking variant of Offer, a full buffer fails
// with ErrBufferFull.
func (b *Buffer) TryOffer(entry RelayEntry) (bool, error) {
	b.Lock()
	defer b.Unlock()
	if b.contains(entry) {
		return false, nil
	}
	if len(b.items) >= b.capacity {
		return false, ErrBufferFull
	}
	heap.Push(b, entry)
	return true, nil
}

// PopLowest removes and returns the waiting entry with the lowest log
// position. The second return is false when the buffer is empty.
func (b *Buffer) PopLowest() (RelayEntry, bool) {
	b.Lock()
	defer b.Unlock()
	if len(b.items) == 0 {
		return RelayEntry{}, false
	}
	return heap.Pop(b).(RelayEntry), true
}

// First returns the lowest waiting entry without removing it.
func (b *Buffer) First() (RelayEntry, bool) {
	b.Lock()
	defer b.Unlock()
	if len(b.items) == 0 {
		return RelayEntry{}, false
	}
	return b.items[0], true
}

func (b *Buffer) Size() int {
	b.Lock()
	defer b.Unlock()
	return len(b.items)
}

func (b *Buffer) IsEmpty() bool {
	return b.Size() == 0
}

// Stop unblocks every pending Offer. Entries already buffered stay
// available to PopLowest.
func (b *Buffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

func (b *Buffer) contains(entry RelayEntry) bool {
	for i := range b.items {
		if b.items[i].Equal(entry) {
			return true
		}
	}
	return false
}
