package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/chronostore/chronostore/pkg/replica"
	"go.uber.org/zap"
)

// IndirectDispatcher sends entries only to a pre-selected half of the
// followers and lets those followers relay to the other half, halving the
// leader's direct fan-out at the cost of one extra hop.
//
// The pairing walks the ordered follower list from both ends inward: the
// follower at position i relays to the follower at position n-1-i, the
// middle follower of an odd list relays to nobody.
type IndirectDispatcher struct {
	*Dispatcher

	// directToIndirect holds map[uint64][]replica.Node. It is rebuilt as a
	// fresh map and swapped atomically, readers see the old or the new map,
	// never a partially rebuilt one.
	directToIndirect atomic.Value

	recalcMu sync.Mutex
}

func NewIndirectDispatcher(member replica.Member, factory replica.ClientFactory, opts *Options) *IndirectDispatcher {
	d := &IndirectDispatcher{
		Dispatcher: newDispatcher(member, factory, opts),
	}
	d.Dispatcher.subReceiversFor = d.SubReceiversFor
	d.recalculate(false)
	return d
}

// Recalculate rebuilds the pairing and the sender set after a node joined or
// left. The old senders get a bounded graceful drain, then are force
// replaced.
func (d *IndirectDispatcher) Recalculate() {
	d.recalculate(true)
}

func (d *IndirectDispatcher) recalculate(replace bool) {
	d.recalcMu.Lock()
	defer d.recalcMu.Unlock()

	followers := followersOf(d.member)
	pairing := make(map[uint64][]replica.Node, len(followers))
	direct := make([]replica.Node, 0, (len(followers)+1)/2)
	for i, j := 0, len(followers)-1; i <= j; i, j = i+1, j-1 {
		if i != j {
			pairing[followers[i].ID] = []replica.Node{followers[j]}
		} else {
			pairing[followers[i].ID] = nil
		}
		direct = append(direct, followers[i])
	}
	d.directToIndirect.Store(pairing)
	d.Info("recalculated follower pairing", zap.Int("followers", len(followers)), zap.Int("direct", len(direct)))

	if replace {
		d.replaceQueues(direct)
	} else {
		d.bindQueues(direct)
	}
}

// SubReceiversFor returns the nodes the given direct follower must relay to,
// nil for a follower without an indirect partner.
func (d *IndirectDispatcher) SubReceiversFor(nodeID uint64) []replica.Node {
	pairing, _ := d.directToIndirect.Load().(map[uint64][]replica.Node)
	return pairing[nodeID]
}

// DirectToIndirectMap returns a copy of the current pairing.
func (d *IndirectDispatcher) DirectToIndirectMap() map[uint64][]replica.Node {
	pairing, _ := d.directToIndirect.Load().(map[uint64][]replica.Node)
	cp := make(map[uint64][]replica.Node, len(pairing))
	for id, nodes := range pairing {
		cp[id] = append([]replica.Node(nil), nodes...)
	}
	return cp
}
