package dispatch

import (
	"time"

	"github.com/chronostore/chronostore/pkg/replica"
	"go.uber.org/atomic"
)

// SendLogRequest is one dispatcher queue item. Enqueued once, consumed once,
// never mutated after enqueue except for timing instrumentation.
type SendLogRequest struct {
	VotingEntry *replica.VotingEntry
	// VotedNodeIDs is a snapshot taken at enqueue time.
	VotedNodeIDs []uint64
	// LeadershipStale is shared with the quorum tracker, a sender observing
	// it true skips the send because the term has been superseded.
	LeadershipStale *atomic.Bool
	NewLeaderTerm   *atomic.Int64
	Request         *replica.AppendEntryRequest
	CreateTime      time.Time

	enqueueTime time.Time
}

func NewSendLogRequest(votingEntry *replica.VotingEntry) *SendLogRequest {
	return &SendLogRequest{
		VotingEntry:     votingEntry,
		VotedNodeIDs:    votingEntry.VotedNodeIDs(),
		LeadershipStale: atomic.NewBool(false),
		NewLeaderTerm:   atomic.NewInt64(-1),
		Request:         votingEntry.Request,
		CreateTime:      time.Now(),
	}
}
