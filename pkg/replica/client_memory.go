package replica

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Handler receives append calls delivered by the in-process network.
type Handler interface {
	OnAppendEntry(req *AppendEntryRequest) error
	OnAppendEntries(req *AppendEntriesRequest) error
}

// HandlerFuncs adapts plain funcs to Handler.
type HandlerFuncs struct {
	AppendEntry   func(req *AppendEntryRequest) error
	AppendEntries func(req *AppendEntriesRequest) error
}

func (h HandlerFuncs) OnAppendEntry(req *AppendEntryRequest) error {
	if h.AppendEntry == nil {
		return nil
	}
	return h.AppendEntry(req)
}

func (h HandlerFuncs) OnAppendEntries(req *AppendEntriesRequest) error {
	if h.AppendEntries == nil {
		return nil
	}
	return h.AppendEntries(req)
}

var ErrNodeUnreachable = errors.New("node unreachable")

// MemoryNetwork is an in-process ClientFactory delivering requests straight
// to registered handlers. It backs the standalone dev runner and the tests,
// the production transport lives outside this module.
type MemoryNetwork struct {
	mu         sync.RWMutex
	handlers   map[uint64]Handler
	down       map[uint64]struct{}
	checkedOut atomic.Int64
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		handlers: make(map[uint64]Handler),
		down:     make(map[uint64]struct{}),
	}
}

func (n *MemoryNetwork) Register(node Node, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[node.ID] = h
}

// SetDown makes every call to the node fail with ErrNodeUnreachable.
func (n *MemoryNetwork) SetDown(nodeID uint64, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if down {
		n.down[nodeID] = struct{}{}
	} else {
		delete(n.down, nodeID)
	}
}

func (n *MemoryNetwork) handlerFor(nodeID uint64) (Handler, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, ok := n.down[nodeID]; ok {
		return nil, errors.Wrapf(ErrNodeUnreachable, "node %d", nodeID)
	}
	h, ok := n.handlers[nodeID]
	if !ok {
		return nil, errors.Wrapf(ErrNodeUnreachable, "node %d not registered", nodeID)
	}
	return h, nil
}

func (n *MemoryNetwork) SyncClient(node Node) (SyncClient, error) {
	if _, err := n.handlerFor(node.ID); err != nil {
		return nil, err
	}
	n.checkedOut.Inc()
	return &memorySyncClient{network: n, nodeID: node.ID}, nil
}

func (n *MemoryNetwork) AsyncClient(node Node) (AsyncClient, error) {
	return &memoryAsyncClient{network: n, nodeID: node.ID}, nil
}

func (n *MemoryNetwork) PutBackSyncClient(cli SyncClient) {
	if _, ok := cli.(*memorySyncClient); ok {
		n.checkedOut.Dec()
	}
}

// CheckedOut reports how many sync clients have been checked out and not
// returned. Tests use it to verify checkin on every exit path.
func (n *MemoryNetwork) CheckedOut() int64 {
	return n.checkedOut.Load()
}

type memorySyncClient struct {
	network *MemoryNetwork
	nodeID  uint64
}

func (c *memorySyncClient) AppendEntry(req *AppendEntryRequest) error {
	h, err := c.network.handlerFor(c.nodeID)
	if err != nil {
		return err
	}
	return h.OnAppendEntry(req)
}

func (c *memorySyncClient) AppendEntries(req *AppendEntriesRequest) error {
	h, err := c.network.handlerFor(c.nodeID)
	if err != nil {
		return err
	}
	return h.OnAppendEntries(req)
}

type memoryAsyncClient struct {
	network *MemoryNetwork
	nodeID  uint64
}

// Delivery happens inline so calls reach the handler in issue order, only
// the completion callback is asynchronous.
func (c *memoryAsyncClient) AppendEntry(req *AppendEntryRequest, callback func(err error)) {
	h, err := c.network.handlerFor(c.nodeID)
	if err == nil {
		err = h.OnAppendEntry(req)
	}
	if callback != nil {
		go callback(err)
	}
}

func (c *memoryAsyncClient) AppendEntries(req *AppendEntriesRequest, callback func(err error)) {
	h, err := c.network.handlerFor(c.nodeID)
	if err == nil {
		err = h.OnAppendEntries(req)
	}
	if callback != nil {
		go callback(err)
	}
}
