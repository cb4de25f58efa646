package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chronostore/chronostore/pkg/replica"
)

func TestPairingEvenFollowers(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3, 4, 5)
	network := replica.NewMemoryNetwork()

	d := NewIndirectDispatcher(m, network, NewOptions())
	defer d.Stop()

	pairing := d.DirectToIndirectMap()
	assert.Equal(t, 2, len(pairing))
	assert.Equal(t, []replica.Node{m.nodes[4]}, pairing[2])
	assert.Equal(t, []replica.Node{m.nodes[3]}, pairing[3])

	// Direct half plus relayed half covers every follower exactly once.
	seen := map[uint64]bool{}
	for direct, indirect := range pairing {
		assert.False(t, seen[direct])
		seen[direct] = true
		for _, n := range indirect {
			assert.False(t, seen[n.ID])
			seen[n.ID] = true
		}
	}
	assert.Equal(t, 4, len(seen))
}

func TestPairingOddFollowersMiddleRelaysNobody(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3, 4)
	network := replica.NewMemoryNetwork()

	d := NewIndirectDispatcher(m, network, NewOptions())
	defer d.Stop()

	pairing := d.DirectToIndirectMap()
	assert.Equal(t, 2, len(pairing))
	assert.Equal(t, []replica.Node{m.nodes[3]}, pairing[2])
	assert.Empty(t, pairing[3])
	assert.Empty(t, d.SubReceiversFor(3))
}

func TestRecalculateIsStable(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3, 4, 5)
	network := replica.NewMemoryNetwork()

	d := NewIndirectDispatcher(m, network, NewOptions())
	defer d.Stop()

	before := d.DirectToIndirectMap()
	d.Recalculate()
	assert.Equal(t, before, d.DirectToIndirectMap())
}

func TestIndirectDispatchFiveNodes(t *testing.T) {
	// Followers in order: 2, 3, 4, 5. The leader sends direct to 2 and 3,
	// 2 relays to 5 and 3 relays to 4.
	m := newFakeMember(1, 1, 2, 3, 4, 5)
	network := replica.NewMemoryNetwork()
	rec2, rec3 := &recorder{}, &recorder{}
	network.Register(m.nodes[1], rec2.handler())
	network.Register(m.nodes[2], rec3.handler())

	d := NewIndirectDispatcher(m, network, NewOptions(WithQueueSize(16)))
	defer d.Stop()

	entry := replica.NewEntry(replica.EntryInsert, 7, 1, []byte("p"))
	entry.PrevTerm = 1
	err := d.Offer(context.Background(), NewSendLogRequest(replica.BuildVotingEntry(entry, m)))
	assert.NoError(t, err)

	waitFor(t, func() bool { return rec2.count() == 1 && rec3.count() == 1 })

	to2 := rec2.first()
	assert.True(t, to2.IsFromLeader)
	assert.Equal(t, []replica.Node{m.nodes[4]}, to2.SubReceivers)

	to3 := rec3.first()
	assert.True(t, to3.IsFromLeader)
	assert.Equal(t, []replica.Node{m.nodes[3]}, to3.SubReceivers)
}

func TestIndirectDispatchOnlyDirectFollowersQueued(t *testing.T) {
	m := newFakeMember(1, 1, 2, 3, 4, 5)
	network := replica.NewMemoryNetwork()

	d := NewIndirectDispatcher(m, network, NewOptions())
	defer d.Stop()

	assert.Equal(t, 0, d.QueueLen(4))
	assert.Equal(t, 0, d.QueueLen(5))
}
