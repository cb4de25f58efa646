package server

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/chronostore/chronostore/internal/options"
	"github.com/chronostore/chronostore/pkg/cslog"
	"github.com/chronostore/chronostore/pkg/dispatch"
	"github.com/chronostore/chronostore/pkg/relay"
	"github.com/chronostore/chronostore/pkg/replica"
)

// Server wires the replication engine together for the standalone runner:
// an in-memory log, the indirect dispatcher on the leader path and the
// relay on the follower path, all over the in-process network. The
// production transport and the election layer live outside this module,
// the server exposes the seams they plug into.
type Server struct {
	opts *options.Options
	cslog.Log

	member     *staticMember
	log        *memoryLog
	network    *replica.MemoryNetwork
	dispatcher *dispatch.IndirectDispatcher
	relay      *relay.Relay
	compressor replica.Compressor

	started *atomic.Bool
}

func New(opts *options.Options, network *replica.MemoryNetwork) (*Server, error) {
	nodes, err := opts.PeerNodes()
	if err != nil {
		return nil, err
	}
	log := newMemoryLog()
	member, err := newStaticMember(nodes, opts.NodeID, 1, log)
	if err != nil {
		return nil, err
	}
	compressor, err := replica.CompressorForName(opts.Compression)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		Log:        cslog.NewCSLog("server"),
		member:     member,
		log:        log,
		network:    network,
		compressor: compressor,
		started:    atomic.NewBool(false),
	}
	return s, nil
}

func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	s.network.Register(s.member.GetThisNode(), s)

	s.dispatcher = dispatch.NewIndirectDispatcher(s.member, s.network,
		dispatch.NewOptions(
			dispatch.WithQueueSize(s.opts.Dispatch.QueueSize),
			dispatch.WithDrainTimeout(s.opts.Dispatch.DrainTimeout),
			dispatch.WithUseAsyncClient(s.opts.Dispatch.UseAsyncClient),
		))
	s.relay = relay.NewRelay(s.network, relay.NewOptions(
		relay.WithSenderCount(s.opts.Relay.SenderCount),
		relay.WithBufferCapacity(s.opts.Relay.BufferCapacity),
		relay.WithPollInterval(s.opts.Relay.PollInterval),
		relay.WithUseAsyncClient(s.opts.Relay.UseAsyncClient),
	))

	s.Info("replication engine started",
		zap.Uint64("nodeId", s.opts.NodeID),
		zap.Int("peers", len(s.member.GetAllNodes())),
		zap.String("compression", s.opts.Compression))
	return nil
}

func (s *Server) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.dispatcher.Stop()
	s.relay.Stop()
	s.Info("replication engine stopped")
}

// Propose appends one entry to the local log and hands it to the
// dispatcher for replication. Commit advancement is driven by the vote
// bookkeeping on the returned voting entry.
func (s *Server) Propose(ctx context.Context, kind replica.EntryKind, payload []byte) (*replica.VotingEntry, error) {
	if !s.started.Load() {
		return nil, errors.New("server not started")
	}
	term := s.member.Term()
	index := s.log.Append(term)
	entry := replica.NewEntry(kind, index, term, payload)
	entry.PrevTerm = term

	votingEntry := replica.BuildVotingEntry(entry, s.member)
	votingEntry.AddVote(s.member.GetThisNode().ID)

	if err := s.dispatcher.Offer(ctx, dispatch.NewSendLogRequest(votingEntry)); err != nil {
		return nil, err
	}
	return votingEntry, nil
}

// OnAppendEntry handles one inbound append. Requests carrying sub
// receivers are queued for relay before the local append so a slow disk
// never delays the downstream hop.
func (s *Server) OnAppendEntry(req *replica.AppendEntryRequest) error {
	if req.IsFromLeader && len(req.SubReceivers) > 0 {
		if err := s.relay.Offer(req); err != nil {
			s.Warn("relay offer failed", zap.Error(err))
		}
	}
	entry, err := replica.ParseEntry(req.Entry)
	if err != nil {
		s.Error("parse entry failed", zap.Error(err))
		return err
	}
	s.appendLocal(entry, req.LeaderCommit)
	return nil
}

// OnAppendEntries handles an inbound batch with the same relay rule as
// OnAppendEntry.
func (s *Server) OnAppendEntries(req *replica.AppendEntriesRequest) error {
	if req.IsFromLeader && len(req.SubReceivers) > 0 {
		if err := s.relay.OfferBatch(req); err != nil {
			s.Warn("relay offer failed", zap.Error(err))
		}
	}
	entries, err := replica.EntriesFromBatchRequest(req)
	if err != nil {
		s.Error("decode batch failed", zap.Error(err))
		return err
	}
	for _, entry := range entries {
		s.appendLocal(entry, req.LeaderCommit)
	}
	return nil
}

func (s *Server) appendLocal(entry *replica.Entry, leaderCommit int64) {
	last := s.log.LastIndex()
	if entry.Index != last+1 {
		s.Debug("out of order entry, waiting for catch-up",
			zap.Int64("index", entry.Index), zap.Int64("last", last))
		return
	}
	s.log.Append(entry.Term)
	if leaderCommit > s.log.CommitIndex() {
		commit := leaderCommit
		if commit > s.log.LastIndex() {
			commit = s.log.LastIndex()
		}
		s.log.SetCommitIndex(commit)
	}
}

// Member exposes the group view, the election layer updates the term
// through it.
func (s *Server) Member() replica.Member {
	return s.member
}

// Dispatcher exposes topology control, callers invoke Recalculate after
// membership changes.
func (s *Server) Dispatcher() *dispatch.IndirectDispatcher {
	return s.dispatcher
}

func (s *Server) Relay() *relay.Relay {
	return s.relay
}

func (s *Server) CommitIndex() int64 {
	return s.log.CommitIndex()
}

func (s *Server) LastIndex() int64 {
	return s.log.LastIndex()
}
