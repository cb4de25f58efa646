package replica

import (
	"github.com/chronostore/chronostore/pkg/cslog"
	"go.uber.org/zap"
)

// BuildAppendEntryRequest converts an entry plus the member's current
// leader/term/commit context into the wire request for a follower. A pure
// function of its current inputs.
//
// PrevLogTerm is taken from the entry's cached PrevTerm when set, otherwise
// looked up from the log manager. A lookup failure is logged and the field is
// left at -1, the follower then verifies by index only.
func BuildAppendEntryRequest(entry *Entry, m Member, serializeNow bool) *AppendEntryRequest {
	request := &AppendEntryRequest{
		Term:         m.Term(),
		PrevLogTerm:  -1,
		IsFromLeader: true,
	}
	if serializeNow {
		data, err := entry.Marshal()
		if err != nil {
			cslog.Error("serialize entry failed", zap.Int64("index", entry.Index), zap.Error(err))
		} else {
			request.Entry = data
		}
	}
	if entry.PrevTerm != -1 {
		request.PrevLogTerm = entry.PrevTerm
	} else {
		prevTerm, err := m.LogManager().Term(entry.Index - 1)
		if err != nil {
			cslog.Error("term lookup failed for newly appended entry", zap.Int64("index", entry.Index), zap.Error(err))
		} else {
			request.PrevLogTerm = prevTerm
		}
	}
	request.Leader = m.GetThisNode().Addr
	request.LeaderID = m.GetThisNode().ID
	// No lock around the commit index read. Even if it runs ahead of what the
	// follower can validate, the follower defers applying it until its own
	// log catches up.
	request.LeaderCommit = m.LogManager().CommitIndex()
	request.PrevLogIndex = entry.Index - 1
	request.GroupID = m.GroupID()
	return request
}

// BuildVotingEntry pairs a freshly appended entry with its precomputed wire
// request and empty vote bookkeeping.
func BuildVotingEntry(entry *Entry, m Member) *VotingEntry {
	return NewVotingEntry(entry, BuildAppendEntryRequest(entry, m, true))
}

// BuildAppendEntriesRequest builds the batched catch-up request for a run of
// entries, compressed with the given codec. The prev index/term fields
// describe the entry immediately before the first of the batch.
func BuildAppendEntriesRequest(entries []*Entry, m Member, compressor Compressor) (*AppendEntriesRequest, error) {
	if len(entries) == 0 {
		return nil, ErrCorruptBatch
	}
	blob, err := SerializeBatch(entries, compressor)
	if err != nil {
		return nil, err
	}
	first := entries[0]
	request := &AppendEntriesRequest{
		Term:         m.Term(),
		Leader:       m.GetThisNode().Addr,
		LeaderID:     m.GetThisNode().ID,
		PrevLogIndex: first.Index - 1,
		PrevLogTerm:  -1,
		LeaderCommit: m.LogManager().CommitIndex(),
		GroupID:      m.GroupID(),
		Entries:      blob,
		IsFromLeader: true,
	}
	if first.PrevTerm != -1 {
		request.PrevLogTerm = first.PrevTerm
	} else {
		prevTerm, err := m.LogManager().Term(first.Index - 1)
		if err != nil {
			cslog.Error("term lookup failed for batch", zap.Int64("index", first.Index), zap.Error(err))
		} else {
			request.PrevLogTerm = prevTerm
		}
	}
	return request, nil
}

// EntriesFromBatchRequest restores the entries of a batched request,
// decompressing and parsing through the kind registry. Corruption aborts the
// whole batch.
func EntriesFromBatchRequest(req *AppendEntriesRequest) ([]*Entry, error) {
	raws, err := DeserializeBatch(req.Entries)
	if err != nil {
		return nil, err
	}
	return ParseEntries(raws)
}
