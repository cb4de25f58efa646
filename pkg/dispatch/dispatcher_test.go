package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chronostore/chronostore/pkg/replica"
)

type fakeLog struct {
	commitIndex int64
}

func (l *fakeLog) Term(index int64) (int64, error) { return 1, nil }
func (l *fakeLog) CommitIndex() int64              { return l.commitIndex }

type fakeMember struct {
	nodes []replica.Node
	self  replica.Node
	log   replica.LogManager
}

func (m *fakeMember) GetAllNodes() []replica.Node    { return m.nodes }
func (m *fakeMember) GetThisNode() replica.Node      { return m.self }
func (m *fakeMember) Term() int64                    { return 1 }
func (m *fakeMember) GroupID() uint32                { return 1 }
func (m *fakeMember) LogManager() replica.LogManager { return m.log }

func newFakeMember(selfID uint64, ids ...uint64) *fakeMember {
	m := &fakeMember{log: &fakeLog{}}
	for _, id := range ids {
		n := replica.Node{ID: id, Addr: fmt.Sprintf("127.0.0.1:75%02d", id)}
		m.nodes = append(m.nodes, n)
		if id == selfID {
			m.self = n
		}
	}
	return m
}

// recorder collects received requests per node in arrival order.
type recorder struct {
	mu   sync.Mutex
	reqs []*replica.AppendEntryRequest
}

func (r *recorder) handler() replica.HandlerFuncs {
	return replica.HandlerFuncs{
		AppendEntry: func(req *replica.AppendEntryRequest) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.reqs = append(r.reqs, req)
			return nil
		},
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func (r *recorder) first() *replica.AppendEntryRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[0]
}

func (r *recorder) indexes() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.reqs))
	for _, req := range r.reqs {
		out = append(out, req.PrevLogIndex)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 2)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 5)
	}
	assert.Fail(t, "condition not met before deadline")
}

func offerEntry(t *testing.T, d *Dispatcher, m replica.Member, index int64) {
	t.Helper()
	entry := replica.NewEntry(replica.EntryInsert, index, 1, []byte("p"))
	entry.PrevTerm = 1
	ve := replica.BuildVotingEntry(entry, m)
	err := d.Offer(context.Background(), NewSendLogRequest(ve))
	assert.NoError(t, err)
}

func TestDispatcherFIFO(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3)
	network := replica.NewMemoryNetwork()
	rec2, rec3 := &recorder{}, &recorder{}
	network.Register(m.nodes[1], rec2.handler())
	network.Register(m.nodes[2], rec3.handler())

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(64)))
	defer d.Stop()

	const n = 20
	for i := int64(1); i <= n; i++ {
		offerEntry(t, d, m, i)
	}

	waitFor(t, func() bool { return rec2.count() == n && rec3.count() == n })
	for _, rec := range []*recorder{rec2, rec3} {
		indexes := rec.indexes()
		for i := int64(0); i < n; i++ {
			assert.Equal(t, i, indexes[i])
		}
	}
}

func TestDispatcherFIFOAsync(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3)
	network := replica.NewMemoryNetwork()
	rec2, rec3 := &recorder{}, &recorder{}
	network.Register(m.nodes[1], rec2.handler())
	network.Register(m.nodes[2], rec3.handler())

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(64), WithUseAsyncClient(true)))
	defer d.Stop()

	const n = 20
	for i := int64(1); i <= n; i++ {
		offerEntry(t, d, m, i)
	}

	waitFor(t, func() bool { return rec2.count() == n && rec3.count() == n })
	indexes := rec2.indexes()
	for i := int64(0); i < n; i++ {
		assert.Equal(t, i, indexes[i])
	}
}

func TestDispatcherTryOfferQueueFull(t *testing.T) {
	m := newFakeMember(1, 1, 2)
	network := replica.NewMemoryNetwork()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	network.Register(m.nodes[1], replica.HandlerFuncs{
		AppendEntry: func(req *replica.AppendEntryRequest) error {
			entered <- struct{}{}
			<-release
			return nil
		},
	})

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(1)))
	defer d.Stop()
	defer close(release)

	// First request occupies the sender, second fills the queue.
	offerEntry(t, d, m, 1)
	<-entered
	offerEntry(t, d, m, 2)

	entry := replica.NewEntry(replica.EntryInsert, 3, 1, []byte("p"))
	entry.PrevTerm = 1
	err := d.TryOffer(NewSendLogRequest(replica.BuildVotingEntry(entry, m)))
	assert.Equal(t, ErrQueueFull, err)
}

func TestDispatcherDropsOnTransportError(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3)
	network := replica.NewMemoryNetwork()
	rec3 := &recorder{}
	network.Register(m.nodes[1], replica.HandlerFuncs{})
	network.Register(m.nodes[2], rec3.handler())
	network.SetDown(2, true)

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(64)))
	defer d.Stop()

	const n = 10
	for i := int64(1); i <= n; i++ {
		offerEntry(t, d, m, i)
	}

	// The unreachable node never blocks delivery to the healthy one.
	waitFor(t, func() bool { return rec3.count() == n })
	waitFor(t, func() bool { return network.CheckedOut() == 0 })
}

func TestDispatcherStaleLeadershipSkip(t *testing.T) {
	m := newFakeMember(1, 1, 2)
	network := replica.NewMemoryNetwork()
	rec := &recorder{}
	network.Register(m.nodes[1], rec.handler())

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(64)))
	defer d.Stop()

	entry := replica.NewEntry(replica.EntryInsert, 1, 1, []byte("p"))
	entry.PrevTerm = 1
	req := NewSendLogRequest(replica.BuildVotingEntry(entry, m))
	req.LeadershipStale.Store(true)
	err := d.Offer(context.Background(), req)
	assert.NoError(t, err)

	offerEntry(t, d, m, 2)
	waitFor(t, func() bool { return rec.count() == 1 })
	assert.Equal(t, int64(1), rec.indexes()[0])
}

func TestDispatcherOfferAfterStop(t *testing.T) {
	m := newFakeMember(1, 1, 2)
	network := replica.NewMemoryNetwork()
	network.Register(m.nodes[1], replica.HandlerFuncs{})

	d := NewDispatcher(m, network, NewOptions())
	d.Stop()

	entry := replica.NewEntry(replica.EntryInsert, 1, 1, []byte("p"))
	entry.PrevTerm = 1
	req := NewSendLogRequest(replica.BuildVotingEntry(entry, m))
	assert.Equal(t, ErrStopped, d.Offer(context.Background(), req))
	assert.Equal(t, ErrStopped, d.TryOffer(req))
}

func TestDispatcherOfferCancel(t *testing.T) {
	m := newFakeMember(1, 1, 2)
	network := replica.NewMemoryNetwork()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	network.Register(m.nodes[1], replica.HandlerFuncs{
		AppendEntry: func(req *replica.AppendEntryRequest) error {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return nil
		},
	})

	d := NewDispatcher(m, network, NewOptions(WithQueueSize(1)))
	defer d.Stop()
	defer close(release)

	offerEntry(t, d, m, 1)
	<-entered
	offerEntry(t, d, m, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	entry := replica.NewEntry(replica.EntryInsert, 3, 1, []byte("p"))
	entry.PrevTerm = 1
	err := d.Offer(ctx, NewSendLogRequest(replica.BuildVotingEntry(entry, m)))
	assert.Equal(t, context.DeadlineExceeded, err)
}
