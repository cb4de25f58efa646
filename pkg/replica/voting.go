package replica

import (
	"sort"
	"sync"
)

// VotingEntry wraps an entry with the quorum-acknowledgment bookkeeping
// needed before it is safe to commit. Created exactly once per entry on the
// leader, mutated by the quorum tracker as acknowledgments arrive.
type VotingEntry struct {
	Entry   *Entry
	Request *AppendEntryRequest

	mu           sync.Mutex
	votedNodeIDs map[uint64]struct{}
}

func NewVotingEntry(entry *Entry, request *AppendEntryRequest) *VotingEntry {
	return &VotingEntry{
		Entry:        entry,
		Request:      request,
		votedNodeIDs: make(map[uint64]struct{}),
	}
}

func (v *VotingEntry) AddVote(nodeID uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.votedNodeIDs[nodeID] = struct{}{}
}

func (v *VotingEntry) HasVoted(nodeID uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.votedNodeIDs[nodeID]
	return ok
}

func (v *VotingEntry) VoteCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.votedNodeIDs)
}

// VotedNodeIDs returns a sorted snapshot of the acknowledging node ids.
func (v *VotingEntry) VotedNodeIDs() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]uint64, 0, len(v.votedNodeIDs))
	for id := range v.votedNodeIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
