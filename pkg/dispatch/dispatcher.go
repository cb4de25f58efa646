package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chronostore/chronostore/pkg/cslog"
	"github.com/chronostore/chronostore/pkg/replica"
	"github.com/lni/goutils/syncutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by TryOffer when a follower queue is at
	// capacity.
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrStopped is returned once the dispatcher has been stopped.
	ErrStopped = errors.New("dispatcher stopped")
)

// Dispatcher is the leader-side delivery engine: one bounded FIFO queue and
// one dedicated sender goroutine per follower. A stalled follower fills its
// own queue but never blocks delivery to the others.
type Dispatcher struct {
	member  replica.Member
	factory replica.ClientFactory
	opts    *Options
	cslog.Log

	mu      sync.RWMutex
	queues  map[uint64]*followerQueue
	stopper *syncutil.Stopper
	stopped *atomic.Bool

	// subReceiversFor annotates outbound requests per direct follower, the
	// indirect variant installs the pairing lookup here.
	subReceiversFor func(nodeID uint64) []replica.Node
}

type followerQueue struct {
	node replica.Node
	ch   chan *SendLogRequest
}

func NewDispatcher(member replica.Member, factory replica.ClientFactory, opts *Options) *Dispatcher {
	d := newDispatcher(member, factory, opts)
	d.bindQueues(followersOf(member))
	return d
}

func newDispatcher(member replica.Member, factory replica.ClientFactory, opts *Options) *Dispatcher {
	if opts == nil {
		opts = NewOptions()
	}
	return &Dispatcher{
		member:  member,
		factory: factory,
		opts:    opts,
		Log:     cslog.NewCSLog(fmt.Sprintf("Dispatcher[%d]", member.GetThisNode().ID)),
		queues:  make(map[uint64]*followerQueue),
		stopper: syncutil.NewStopper(),
		stopped: atomic.NewBool(false),
	}
}

// followersOf returns the ordered member list with self removed.
func followersOf(m replica.Member) []replica.Node {
	all := m.GetAllNodes()
	self := m.GetThisNode()
	followers := make([]replica.Node, 0, len(all))
	for _, n := range all {
		if n.ID == self.ID {
			continue
		}
		followers = append(followers, n)
	}
	return followers
}

func (d *Dispatcher) bindQueues(nodes []replica.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stopper := d.stopper
	for _, node := range nodes {
		q := &followerQueue{
			node: node,
			ch:   make(chan *SendLogRequest, d.opts.QueueSize),
		}
		d.queues[node.ID] = q
		stopper.RunWorker(func() {
			d.senderLoop(stopper, q)
		})
	}
}

// Offer enqueues the request on every follower queue, blocking while a queue
// is at capacity. The block is per producer, sender loops of other followers
// keep draining independently.
func (d *Dispatcher) Offer(ctx context.Context, req *SendLogRequest) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	req.enqueueTime = time.Now()
	d.mu.RLock()
	queues := make([]*followerQueue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	stopper := d.stopper
	d.mu.RUnlock()

	for _, q := range queues {
		select {
		case q.ch <- req:
		case <-ctx.Done():
			return ctx.Err()
		case <-stopper.ShouldStop():
			return ErrStopped
		}
	}
	return nil
}

// TryOffer enqueues without blocking. Queues with room still receive the
// request, ErrQueueFull reports that at least one follower was saturated.
func (d *Dispatcher) TryOffer(req *SendLogRequest) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	req.enqueueTime = time.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()
	var full bool
	for _, q := range d.queues {
		select {
		case q.ch <- req:
		default:
			full = true
			d.Warn("follower queue full, backpressure", zap.Uint64("nodeId", q.node.ID), zap.Int("capacity", d.opts.QueueSize))
		}
	}
	if full {
		return ErrQueueFull
	}
	return nil
}

// QueueLen reports the number of pending items for a follower.
func (d *Dispatcher) QueueLen(nodeID uint64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q, ok := d.queues[nodeID]
	if !ok {
		return 0
	}
	return len(q.ch)
}

// senderLoop pulls in strict FIFO order and issues one outbound call per
// item. The stopper is the one active when the queue was bound, a sender
// abandoned by a topology rebuild still observes its own.
func (d *Dispatcher) senderLoop(stopper *syncutil.Stopper, q *followerQueue) {
	for {
		select {
		case <-stopper.ShouldStop():
			return
		case req := <-q.ch:
			d.sendLog(q.node, req)
		}
	}
}

func (d *Dispatcher) sendLog(node replica.Node, req *SendLogRequest) {
	if req.LeadershipStale != nil && req.LeadershipStale.Load() {
		d.Debug("leadership stale, skipping send", zap.Uint64("nodeId", node.ID), zap.Int64("index", req.VotingEntry.Entry.Index))
		return
	}
	if waited := time.Since(req.enqueueTime); waited > d.opts.InQueueWarnThreshold {
		d.Debug("request spent long in queue", zap.Uint64("nodeId", node.ID), zap.Duration("waited", waited))
	}
	out := req.Request.Clone()
	if d.subReceiversFor != nil {
		out.SubReceivers = d.subReceiversFor(node.ID)
	}
	d.send(node, out)
}

// send issues one outbound call. A transport failure is logged and the item
// dropped, the next catch-up cycle drives the retry, not this loop.
func (d *Dispatcher) send(node replica.Node, out *replica.AppendEntryRequest) {
	if d.opts.UseAsyncClient {
		cli, err := d.factory.AsyncClient(node)
		if err != nil {
			d.Error("get async client failed", zap.Uint64("nodeId", node.ID), zap.Error(err))
			return
		}
		cli.AppendEntry(out, func(err error) {
			if err != nil {
				d.Warn("append entry failed, dropping", zap.Uint64("nodeId", node.ID), zap.Int64("prevLogIndex", out.PrevLogIndex), zap.Error(err))
			}
		})
		return
	}
	cli, err := d.factory.SyncClient(node)
	if err != nil {
		d.Error("get sync client failed", zap.Uint64("nodeId", node.ID), zap.Error(err))
		return
	}
	defer d.factory.PutBackSyncClient(cli)
	if err := cli.AppendEntry(out); err != nil {
		d.Warn("append entry failed, dropping", zap.Uint64("nodeId", node.ID), zap.Int64("prevLogIndex", out.PrevLogIndex), zap.Error(err))
	}
}

// replaceQueues drains the current sender set with a bounded graceful wait,
// then rebuilds queues for the given nodes. In-flight calls are allowed to
// finish on their own.
func (d *Dispatcher) replaceQueues(nodes []replica.Node) {
	d.mu.Lock()
	old := d.stopper
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		old.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.opts.DrainTimeout):
		d.Warn("sender drain timed out, forcing replacement", zap.Duration("timeout", d.opts.DrainTimeout))
	}

	d.mu.Lock()
	d.stopper = syncutil.NewStopper()
	d.queues = make(map[uint64]*followerQueue, len(nodes))
	d.mu.Unlock()
	d.bindQueues(nodes)
}

// Stop signals every sender to stop pulling work and interrupts blocked
// waits. Calls already issued complete or time out on their own.
func (d *Dispatcher) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	d.mu.RLock()
	stopper := d.stopper
	d.mu.RUnlock()
	stopper.Stop()
}
