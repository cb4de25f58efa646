package server

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/chronostore/chronostore/pkg/replica"
)

var ErrIndexOutOfRange = errors.New("log index out of range")

// memoryLog is the in-process log backing the standalone runner. It keeps
// term metadata per index, the entry payloads themselves are not retained.
type memoryLog struct {
	mu          sync.RWMutex
	terms       []int64 // terms[i] is the term of entry at index i+1
	commitIndex *atomic.Int64
}

func newMemoryLog() *memoryLog {
	return &memoryLog{
		commitIndex: atomic.NewInt64(0),
	}
}

func (l *memoryLog) Term(index int64) (int64, error) {
	if index == 0 {
		return 0, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 1 || index > int64(len(l.terms)) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, last %d", index, len(l.terms))
	}
	return l.terms[index-1], nil
}

func (l *memoryLog) CommitIndex() int64 {
	return l.commitIndex.Load()
}

func (l *memoryLog) LastIndex() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.terms))
}

// Append records the term for the next index and returns that index.
func (l *memoryLog) Append(term int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terms = append(l.terms, term)
	return int64(len(l.terms))
}

func (l *memoryLog) SetCommitIndex(index int64) {
	l.commitIndex.Store(index)
}

// staticMember is a fixed-topology group view built from configuration.
// Term changes come from the election layer outside this module, the
// runner keeps a settable term for it.
type staticMember struct {
	nodes   []replica.Node
	self    replica.Node
	groupID uint32
	term    *atomic.Int64
	log     *memoryLog
}

func newStaticMember(nodes []replica.Node, selfID uint64, groupID uint32, log *memoryLog) (*staticMember, error) {
	var self replica.Node
	found := false
	for _, n := range nodes {
		if n.ID == selfID {
			self = n
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("node %d not in peer list", selfID)
	}
	return &staticMember{
		nodes:   nodes,
		self:    self,
		groupID: groupID,
		term:    atomic.NewInt64(1),
		log:     log,
	}, nil
}

func (m *staticMember) GetAllNodes() []replica.Node {
	nodes := make([]replica.Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

func (m *staticMember) GetThisNode() replica.Node {
	return m.self
}

func (m *staticMember) Term() int64 {
	return m.term.Load()
}

func (m *staticMember) SetTerm(term int64) {
	m.term.Store(term)
}

func (m *staticMember) GroupID() uint32 {
	return m.groupID
}

func (m *staticMember) LogManager() replica.LogManager {
	return m.log
}
