package replica

import (
	"sync"

	"github.com/pkg/errors"
)

// DecodeFunc decodes one raw entry buffer (including its leading kind tag)
// into an Entry.
type DecodeFunc func(data []byte) (*Entry, error)

type parserRegistry struct {
	mu       sync.RWMutex
	decoders map[EntryKind]DecodeFunc
}

var registry = &parserRegistry{
	decoders: map[EntryKind]DecodeFunc{
		EntryInsert: decodeEntry,
		EntryDelete: decodeEntry,
		EntrySchema: decodeEntry,
		EntryNoop:   decodeEntry,
	},
}

func decodeEntry(data []byte) (*Entry, error) {
	e := &Entry{}
	if err := e.Unmarshal(data); err != nil {
		return nil, err
	}
	return e, nil
}

// RegisterEntryKind installs a decoder for a new record kind. Existing kinds
// can be overridden, which tests use to inject failures.
func RegisterEntryKind(kind EntryKind, fn DecodeFunc) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.decoders[kind] = fn
}

// ParseEntry dispatches on the leading kind tag to the registered decoder.
func ParseEntry(data []byte) (*Entry, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrCorruptBatch, "empty entry buffer")
	}
	kind := EntryKind(data[0])
	registry.mu.RLock()
	fn, ok := registry.decoders[kind]
	registry.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntryKind, "kind %d", kind)
	}
	return fn(data)
}

// ParseEntries parses every raw buffer of a batch. An unknown kind or decode
// failure aborts the whole batch, a corrupt batch is never partially applied.
func ParseEntries(raws [][]byte) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(raws))
	for _, raw := range raws {
		e, err := ParseEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
