package replica

import "errors"

var (
	// ErrUnknownEntryKind is returned when a batch contains an entry with an
	// unrecognized leading type tag. The whole batch is rejected.
	ErrUnknownEntryKind = errors.New("unknown entry kind")
	// ErrCorruptBatch is returned when a batched buffer declares entry
	// lengths that overrun the buffer.
	ErrCorruptBatch = errors.New("corrupt entry batch")
	// ErrUnknownCodec is returned for an unrecognized compression codec id.
	ErrUnknownCodec = errors.New("unknown compression codec")
)
