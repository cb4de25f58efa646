package replica

import (
	wkproto "github.com/WuKongIM/WuKongIMGoProto"
	"github.com/pkg/errors"
)

// Wire layout of a batched transfer:
//
//	[uint8 codecID][int32 uncompressedLen][compressed...]
//
// where the compressed body restores to
//
//	[int32 count]{[int32 length][bytes entry]}*

// SerializeBatch serializes entries into a single buffer and compresses it
// with the given codec. On a compressor failure the caller is expected to
// fall back to uncompressed per-entry sends.
func SerializeBatch(entries []*Entry, compressor Compressor) ([]byte, error) {
	inner := wkproto.NewEncoder()
	defer inner.End()
	inner.WriteInt32(int32(len(entries)))
	for _, e := range entries {
		data, err := e.Marshal()
		if err != nil {
			return nil, errors.Wrapf(err, "serialize entry %d", e.Index)
		}
		inner.WriteInt32(int32(len(data)))
		inner.WriteBytes(data)
	}
	raw := inner.Bytes()

	compressed, err := compressor.Compress(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "compress batch with %s", compressor.ID())
	}

	outer := wkproto.NewEncoder()
	defer outer.End()
	outer.WriteUint8(compressor.ID().Uint8())
	outer.WriteInt32(int32(len(raw)))
	outer.WriteBytes(compressed)
	return outer.Bytes(), nil
}

// DeserializeBatch decompresses a batched buffer and slices out every raw
// entry range. A declared length overrunning the buffer fails with
// ErrCorruptBatch and never yields a partially sliced list.
func DeserializeBatch(data []byte) ([][]byte, error) {
	dec := wkproto.NewDecoder(data)
	codecID, err := dec.Uint8()
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}
	uncompressedLen, err := dec.Int32()
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}
	if uncompressedLen < 0 {
		return nil, errors.Wrapf(ErrCorruptBatch, "negative uncompressed length %d", uncompressedLen)
	}
	body, err := dec.BinaryAll()
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}

	decompressor, err := NewDecompressor(CodecID(codecID))
	if err != nil {
		return nil, err
	}
	raw, err := decompressor.Decompress(body, int(uncompressedLen))
	if err != nil {
		return nil, err
	}

	innerDec := wkproto.NewDecoder(raw)
	count, err := innerDec.Int32()
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}
	if count < 0 {
		return nil, errors.Wrapf(ErrCorruptBatch, "negative entry count %d", count)
	}
	raws := make([][]byte, 0, count)
	for i := int32(0); i < count; i++ {
		size, err := innerDec.Int32()
		if err != nil {
			return nil, errors.Wrap(ErrCorruptBatch, err.Error())
		}
		if size < 0 {
			return nil, errors.Wrapf(ErrCorruptBatch, "negative entry length %d", size)
		}
		b, err := innerDec.Bytes(int(size))
		if err != nil {
			return nil, errors.Wrap(ErrCorruptBatch, err.Error())
		}
		raws = append(raws, b)
	}
	return raws, nil
}
