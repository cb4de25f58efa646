package replica

import (
	"bytes"
	"fmt"

	wkproto "github.com/WuKongIM/WuKongIMGoProto"
)

// Node is one cluster member as seen by the replication core.
type Node struct {
	ID   uint64
	Addr string
}

func (n Node) String() string {
	return fmt.Sprintf("Node[%d@%s]", n.ID, n.Addr)
}

func (n Node) Equal(other Node) bool {
	return n.ID == other.ID && n.Addr == other.Addr
}

// AppendEntryRequest carries one entry from the leader (or a relaying
// follower) to a follower. IsFromLeader is true only on the request the
// leader itself sends, every relayed copy clears it together with
// SubReceivers so a relay never re-relays.
type AppendEntryRequest struct {
	Term         int64
	Leader       string // leader endpoint
	LeaderID     uint64
	PrevLogIndex int64
	PrevLogTerm  int64 // -1 when unknown, the receiver then verifies by index only
	LeaderCommit int64
	GroupID      uint32
	Entry        []byte
	IsFromLeader bool
	SubReceivers []Node
}

func (r *AppendEntryRequest) Marshal() ([]byte, error) {
	enc := wkproto.NewEncoder()
	defer enc.End()
	enc.WriteInt64(r.Term)
	enc.WriteString(r.Leader)
	enc.WriteUint64(r.LeaderID)
	enc.WriteInt64(r.PrevLogIndex)
	enc.WriteInt64(r.PrevLogTerm)
	enc.WriteInt64(r.LeaderCommit)
	enc.WriteUint32(r.GroupID)
	writeBool(enc, r.IsFromLeader)
	enc.WriteInt32(int32(len(r.Entry)))
	enc.WriteBytes(r.Entry)
	writeNodes(enc, r.SubReceivers)
	return enc.Bytes(), nil
}

func (r *AppendEntryRequest) Unmarshal(data []byte) error {
	dec := wkproto.NewDecoder(data)
	var err error
	if r.Term, err = dec.Int64(); err != nil {
		return err
	}
	if r.Leader, err = dec.String(); err != nil {
		return err
	}
	if r.LeaderID, err = dec.Uint64(); err != nil {
		return err
	}
	if r.PrevLogIndex, err = dec.Int64(); err != nil {
		return err
	}
	if r.PrevLogTerm, err = dec.Int64(); err != nil {
		return err
	}
	if r.LeaderCommit, err = dec.Int64(); err != nil {
		return err
	}
	if r.GroupID, err = dec.Uint32(); err != nil {
		return err
	}
	if r.IsFromLeader, err = readBool(dec); err != nil {
		return err
	}
	if r.Entry, err = readSized(dec); err != nil {
		return err
	}
	if r.SubReceivers, err = readNodes(dec); err != nil {
		return err
	}
	return nil
}

// Clone returns a copy safe to annotate per destination. SubReceivers is
// copied, the entry bytes are shared (immutable).
func (r *AppendEntryRequest) Clone() *AppendEntryRequest {
	c := *r
	if len(r.SubReceivers) > 0 {
		c.SubReceivers = make([]Node, len(r.SubReceivers))
		copy(c.SubReceivers, r.SubReceivers)
	}
	return &c
}

func (r *AppendEntryRequest) Equal(other *AppendEntryRequest) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Term == other.Term &&
		r.Leader == other.Leader &&
		r.LeaderID == other.LeaderID &&
		r.PrevLogIndex == other.PrevLogIndex &&
		r.PrevLogTerm == other.PrevLogTerm &&
		r.LeaderCommit == other.LeaderCommit &&
		r.GroupID == other.GroupID &&
		r.IsFromLeader == other.IsFromLeader &&
		bytes.Equal(r.Entry, other.Entry) &&
		NodesEqual(r.SubReceivers, other.SubReceivers)
}

func (r *AppendEntryRequest) String() string {
	return fmt.Sprintf("AppendEntryRequest{term:%d prevIndex:%d prevTerm:%d commit:%d fromLeader:%v subReceivers:%v}",
		r.Term, r.PrevLogIndex, r.PrevLogTerm, r.LeaderCommit, r.IsFromLeader, r.SubReceivers)
}

// AppendEntriesRequest carries a batched catch-up transfer. Entries holds the
// batch blob produced by SerializeBatch, codec id included.
type AppendEntriesRequest struct {
	Term         int64
	Leader       string
	LeaderID     uint64
	PrevLogIndex int64
	PrevLogTerm  int64
	LeaderCommit int64
	GroupID      uint32
	Entries      []byte
	IsFromLeader bool
	SubReceivers []Node
}

func (r *AppendEntriesRequest) Marshal() ([]byte, error) {
	enc := wkproto.NewEncoder()
	defer enc.End()
	enc.WriteInt64(r.Term)
	enc.WriteString(r.Leader)
	enc.WriteUint64(r.LeaderID)
	enc.WriteInt64(r.PrevLogIndex)
	enc.WriteInt64(r.PrevLogTerm)
	enc.WriteInt64(r.LeaderCommit)
	enc.WriteUint32(r.GroupID)
	writeBool(enc, r.IsFromLeader)
	enc.WriteInt32(int32(len(r.Entries)))
	enc.WriteBytes(r.Entries)
	writeNodes(enc, r.SubReceivers)
	return enc.Bytes(), nil
}

func (r *AppendEntriesRequest) Unmarshal(data []byte) error {
	dec := wkproto.NewDecoder(data)
	var err error
	if r.Term, err = dec.Int64(); err != nil {
		return err
	}
	if r.Leader, err = dec.String(); err != nil {
		return err
	}
	if r.LeaderID, err = dec.Uint64(); err != nil {
		return err
	}
	if r.PrevLogIndex, err = dec.Int64(); err != nil {
		return err
	}
	if r.PrevLogTerm, err = dec.Int64(); err != nil {
		return err
	}
	if r.LeaderCommit, err = dec.Int64(); err != nil {
		return err
	}
	if r.GroupID, err = dec.Uint32(); err != nil {
		return err
	}
	if r.IsFromLeader, err = readBool(dec); err != nil {
		return err
	}
	if r.Entries, err = readSized(dec); err != nil {
		return err
	}
	if r.SubReceivers, err = readNodes(dec); err != nil {
		return err
	}
	return nil
}

func (r *AppendEntriesRequest) Clone() *AppendEntriesRequest {
	c := *r
	if len(r.SubReceivers) > 0 {
		c.SubReceivers = make([]Node, len(r.SubReceivers))
		copy(c.SubReceivers, r.SubReceivers)
	}
	return &c
}

func (r *AppendEntriesRequest) Equal(other *AppendEntriesRequest) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Term == other.Term &&
		r.Leader == other.Leader &&
		r.LeaderID == other.LeaderID &&
		r.PrevLogIndex == other.PrevLogIndex &&
		r.PrevLogTerm == other.PrevLogTerm &&
		r.LeaderCommit == other.LeaderCommit &&
		r.GroupID == other.GroupID &&
		r.IsFromLeader == other.IsFromLeader &&
		bytes.Equal(r.Entries, other.Entries) &&
		NodesEqual(r.SubReceivers, other.SubReceivers)
}

func writeBool(enc *wkproto.Encoder, b bool) {
	if b {
		enc.WriteUint8(1)
	} else {
		enc.WriteUint8(0)
	}
}

func readBool(dec *wkproto.Decoder) (bool, error) {
	v, err := dec.Uint8()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func readSized(dec *wkproto.Decoder) ([]byte, error) {
	size, err := dec.Int32()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	return dec.Bytes(int(size))
}

func writeNodes(enc *wkproto.Encoder, nodes []Node) {
	enc.WriteInt32(int32(len(nodes)))
	for _, n := range nodes {
		enc.WriteUint64(n.ID)
		enc.WriteString(n.Addr)
	}
}

func readNodes(dec *wkproto.Decoder) ([]Node, error) {
	count, err := dec.Int32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	nodes := make([]Node, 0, count)
	for i := int32(0); i < count; i++ {
		var n Node
		if n.ID, err = dec.Uint64(); err != nil {
			return nil, err
		}
		if n.Addr, err = dec.String(); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// NodesEqual reports element-wise equality of two node lists.
func NodesEqual(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
