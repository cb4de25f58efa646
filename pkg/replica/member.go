package replica

// LogManager is the external physical-log collaborator. Only the calls the
// dispatch subsystem needs are part of this contract.
type LogManager interface {
	// Term returns the term of the entry at index.
	Term(index int64) (int64, error)
	// CommitIndex returns the current commit index. Reading it racy is
	// tolerated by the protocol, see BuildAppendEntryRequest.
	CommitIndex() int64
}

// Member is the raft-group member the dispatcher and relay act on behalf of.
// Leader election and term management live behind this contract.
type Member interface {
	// GetAllNodes returns the ordered member list, self included.
	GetAllNodes() []Node
	GetThisNode() Node
	Term() int64
	GroupID() uint32
	LogManager() LogManager
}

// SyncClient is a pooled blocking RPC client. Checkout via
// ClientFactory.SyncClient must be paired with PutBackSyncClient on every
// exit path.
type SyncClient interface {
	AppendEntry(req *AppendEntryRequest) error
	AppendEntries(req *AppendEntriesRequest) error
}

// AsyncClient issues a call without blocking, completion arrives on the
// callback from another goroutine.
type AsyncClient interface {
	AppendEntry(req *AppendEntryRequest, callback func(err error))
	AppendEntries(req *AppendEntriesRequest, callback func(err error))
}

// ClientFactory is the external RPC client pool.
type ClientFactory interface {
	SyncClient(node Node) (SyncClient, error)
	AsyncClient(node Node) (AsyncClient, error)
	PutBackSyncClient(cli SyncClient)
}
