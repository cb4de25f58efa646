package replica

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestEntryMarshalUnmarshal(t *testing.T) {
	entry := NewEntry(EntryInsert, 7, 3, []byte("ts-points"))
	entry.PrevTerm = 2

	data, err := entry.Marshal()
	assert.NoError(t, err)
	assert.Equal(t, int32(len(data)), entry.ByteSize)

	got := &Entry{}
	err = got.Unmarshal(data)
	assert.NoError(t, err)
	assert.Equal(t, EntryInsert, got.Kind)
	assert.Equal(t, int64(7), got.Index)
	assert.Equal(t, int64(3), got.Term)
	assert.Equal(t, []byte("ts-points"), got.Payload)
	// PrevTerm is leader-side only, it does not survive the wire.
	assert.Equal(t, int64(-1), got.PrevTerm)
}

func TestEntryMarshalEmptyPayload(t *testing.T) {
	entry := NewEntry(EntryNoop, 1, 1, nil)
	data, err := entry.Marshal()
	assert.NoError(t, err)

	got := &Entry{}
	err = got.Unmarshal(data)
	assert.NoError(t, err)
	assert.Equal(t, EntryNoop, got.Kind)
	assert.Equal(t, 0, len(got.Payload))
}

func TestParseEntryUnknownKind(t *testing.T) {
	data := []byte{99, 0, 0, 0}
	_, err := ParseEntry(data)
	assert.True(t, errors.Is(err, ErrUnknownEntryKind))
}

func TestParseEntriesAbortOnUnknownKind(t *testing.T) {
	good, err := NewEntry(EntryInsert, 1, 1, []byte("a")).Marshal()
	assert.NoError(t, err)
	bad := []byte{99, 1, 2, 3}

	entries, err := ParseEntries([][]byte{good, bad})
	assert.Error(t, err)
	assert.Nil(t, entries)
}

func TestRegisterEntryKind(t *testing.T) {
	kind := EntryKind(200)
	RegisterEntryKind(kind, func(data []byte) (*Entry, error) {
		e := &Entry{}
		if err := e.Unmarshal(data); err != nil {
			return nil, err
		}
		return e, nil
	})

	entry := &Entry{Kind: kind, Index: 5, Term: 2, Payload: []byte("x"), PrevTerm: -1}
	data, err := entry.Marshal()
	assert.NoError(t, err)

	got, err := ParseEntry(data)
	assert.NoError(t, err)
	assert.Equal(t, kind, got.Kind)
	assert.Equal(t, int64(5), got.Index)
}
