package relay

import (
	"time"

	"github.com/chronostore/chronostore/pkg/cslog"
	"github.com/chronostore/chronostore/pkg/replica"
	"github.com/lni/goutils/syncutil"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Relay forwards append requests received from the leader on to this
// node's assigned sub receivers. Incoming work is parked in a bounded
// buffer ordered by log position and drained by a fixed set of workers
// that fan each item out over a goroutine pool.
type Relay struct {
	buffer  *Buffer
	factory replica.ClientFactory
	opts    *Options
	cslog.Log

	sendPool *ants.Pool
	stopper  *syncutil.Stopper
	stopped  *atomic.Bool
}

func NewRelay(factory replica.ClientFactory, opts *Options) *Relay {
	if opts == nil {
		opts = NewOptions()
	}
	r := &Relay{
		buffer:  NewBuffer(opts.BufferCapacity, opts.PollInterval),
		factory: factory,
		opts:    opts,
		Log:     cslog.NewCSLog("relay"),
		stopper: syncutil.NewStopper(),
		stopped: atomic.NewBool(false),
	}
	var err error
	r.sendPool, err = ants.NewPool(opts.SenderCount, ants.WithPanicHandler(func(i interface{}) {
		r.Panic("relay send panic", zap.Any("panic", i), zap.Stack("stack"))
	}))
	if err != nil {
		r.Panic("new ants pool failed", zap.String("error", err.Error()))
	}
	for i := 0; i < reservedRelaySenders; i++ {
		r.stopper.RunWorker(func() {
			r.drainLoop()
		})
	}
	return r
}

// Offer queues a received single-entry request for relay to its sub
// receivers. The relayed copy drops the leader flag and the receiver
// list so the hop count never exceeds one. Requests with no sub
// receivers are a no-op. Offer blocks while the buffer is full, a
// request already waiting is dropped silently.
func (r *Relay) Offer(req *replica.AppendEntryRequest) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if len(req.SubReceivers) == 0 {
		return nil
	}
	receivers := req.SubReceivers
	out := req.Clone()
	out.IsFromLeader = false
	out.SubReceivers = nil
	_, err := r.buffer.Offer(RelayEntry{Single: out, Receivers: receivers})
	return err
}

// OfferBatch queues a received batch request for relay, with the same
// single-hop rules as Offer.
func (r *Relay) OfferBatch(req *replica.AppendEntriesRequest) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if len(req.SubReceivers) == 0 {
		return nil
	}
	receivers := req.SubReceivers
	out := req.Clone()
	out.IsFromLeader = false
	out.SubReceivers = nil
	_, err := r.buffer.Offer(RelayEntry{Batch: out, Receivers: receivers})
	return err
}

// OfferEntries serializes entries into one batch request and queues it
// for the given receivers. Used when a batch is built locally rather
// than received over the wire. The batch is marked as not from the
// leader so receivers never re-relay it.
func (r *Relay) OfferEntries(entries []*replica.Entry, m replica.Member, compressor replica.Compressor, receivers []replica.Node) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if len(receivers) == 0 {
		return nil
	}
	req, err := replica.BuildAppendEntriesRequest(entries, m, compressor)
	if err != nil {
		return err
	}
	req.IsFromLeader = false
	_, err = r.buffer.Offer(RelayEntry{Batch: req, Receivers: receivers})
	return err
}

// BufferSize returns the number of requests waiting to be relayed.
func (r *Relay) BufferSize() int {
	return r.buffer.Size()
}

func (r *Relay) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	r.buffer.Stop()
	r.stopper.Stop()
	r.sendPool.Release()
}

func (r *Relay) drainLoop() {
	for {
		select {
		case <-r.stopper.ShouldStop():
			return
		default:
		}
		entry, ok := r.buffer.PopLowest()
		if !ok {
			select {
			case <-r.stopper.ShouldStop():
				return
			case <-time.After(r.opts.PollInterval):
			}
			continue
		}
		r.fanOut(entry)
	}
}

// fanOut submits one send per receiver to the pool. A full or released
// pool falls back to sending inline so the item is never lost.
func (r *Relay) fanOut(entry RelayEntry) {
	for _, receiver := range entry.Receivers {
		err := r.sendPool.Submit(func() {
			r.sendTo(receiver, entry)
		})
		if err != nil {
			r.sendTo(receiver, entry)
		}
	}
}

// sendTo issues one relayed call. A transport failure is logged and the
// item dropped, catch-up from the leader covers the gap.
func (r *Relay) sendTo(receiver replica.Node, entry RelayEntry) {
	if r.opts.UseAsyncClient {
		cli, err := r.factory.AsyncClient(receiver)
		if err != nil {
			r.Error("get async client failed", zap.Uint64("nodeId", receiver.ID), zap.Error(err))
			return
		}
		if entry.Single != nil {
			cli.AppendEntry(entry.Single, func(err error) {
				if err != nil {
					r.Warn("relay append entry failed, dropping", zap.Uint64("nodeId", receiver.ID), zap.Int64("prevLogIndex", entry.Single.PrevLogIndex), zap.Error(err))
				}
			})
		} else if entry.Batch != nil {
			cli.AppendEntries(entry.Batch, func(err error) {
				if err != nil {
					r.Warn("relay append entries failed, dropping", zap.Uint64("nodeId", receiver.ID), zap.Int64("prevLogIndex", entry.Batch.PrevLogIndex), zap.Error(err))
				}
			})
		}
		return
	}
	cli, err := r.factory.SyncClient(receiver)
	if err != nil {
		r.Error("get sync client failed", zap.Uint64("nodeId", receiver.ID), zap.Error(err))
		return
	}
	defer r.factory.PutBackSyncClient(cli)
	if entry.Single != nil {
		if err := cli.AppendEntry(entry.Single); err != nil {
			r.Warn("relay append entry failed, dropping", zap.Uint64("nodeId", receiver.ID), zap.Int64("prevLogIndex", entry.Single.PrevLogIndex), zap.Error(err))
		}
	} else if entry.Batch != nil {
		if err := cli.AppendEntries(entry.Batch); err != nil {
			r.Warn("relay append entries failed, dropping", zap.Uint64("nodeId", receiver.ID), zap.Int64("prevLogIndex", entry.Batch.PrevLogIndex), zap.Error(err))
		}
	}
}
