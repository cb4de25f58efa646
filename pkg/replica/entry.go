package replica

import (
	"fmt"

	wkproto "github.com/WuKongIM/WuKongIMGoProto"
)

type EntryKind uint8

const (
	// EntryUnknown 未知
	EntryUnknown EntryKind = iota
	// EntryInsert a batch of time-series points
	EntryInsert
	// EntryDelete a range deletion
	EntryDelete
	// EntrySchema a schema change (create/alter series)
	EntrySchema
	// EntryNoop an empty entry appended on leader change
	EntryNoop
)

func (k EntryKind) Uint8() uint8 {
	return uint8(k)
}

func (k EntryKind) String() string {
	switch k {
	case EntryInsert:
		return "EntryInsert"
	case EntryDelete:
		return "EntryDelete"
	case EntrySchema:
		return "EntrySchema"
	case EntryNoop:
		return "EntryNoop"
	default:
		return fmt.Sprintf("EntryUnknown[%d]", k)
	}
}

// Entry is one ordered, immutable replicated log record. Index is assigned
// once by the leader at append time and never reused. PrevTerm caches the
// term of the entry at Index-1, -1 when unknown.
type Entry struct {
	Kind     EntryKind
	Index    int64
	Term     int64
	Payload  []byte
	ByteSize int32
	PrevTerm int64
}

func NewEntry(kind EntryKind, index int64, term int64, payload []byte) *Entry {
	return &Entry{
		Kind:     kind,
		Index:    index,
		Term:     term,
		Payload:  payload,
		PrevTerm: -1,
	}
}

func (e *Entry) Marshal() ([]byte, error) {
	enc := wkproto.NewEncoder()
	defer enc.End()
	enc.WriteUint8(e.Kind.Uint8())
	enc.WriteInt64(e.Index)
	enc.WriteInt64(e.Term)
	enc.WriteBytes(e.Payload)
	data := enc.Bytes()
	e.ByteSize = int32(len(data))
	return data, nil
}

func (e *Entry) Unmarshal(data []byte) error {
	dec := wkproto.NewDecoder(data)
	kind, err := dec.Uint8()
	if err != nil {
		return err
	}
	e.Kind = EntryKind(kind)
	if e.Index, err = dec.Int64(); err != nil {
		return err
	}
	if e.Term, err = dec.Int64(); err != nil {
		return err
	}
	if e.Payload, err = dec.BinaryAll(); err != nil {
		return err
	}
	e.ByteSize = int32(len(data))
	// PrevTerm is a leader-side cache, it never travels on the wire.
	e.PrevTerm = -1
	return nil
}

func (e *Entry) String() string {
	return fmt.Sprintf("Entry{%s index:%d term:%d size:%d}", e.Kind, e.Index, e.Term, len(e.Payload))
}
