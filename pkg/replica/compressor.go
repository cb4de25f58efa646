package replica

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/pkg/errors"
)

type CodecID uint8

const (
	CodecUncompressed CodecID = iota
	CodecSnappy
	CodecGzip
)

func (c CodecID) Uint8() uint8 {
	return uint8(c)
}

func (c CodecID) String() string {
	switch c {
	case CodecUncompressed:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Compressor compresses a whole batch buffer before it goes on the wire.
type Compressor interface {
	ID() CodecID
	Compress(src []byte) ([]byte, error)
}

// Decompressor restores a batch buffer. uncompressedLen is the length the
// sender declared for the restored buffer.
type Decompressor interface {
	ID() CodecID
	Decompress(src []byte, uncompressedLen int) ([]byte, error)
}

type snappyCodec struct{}

func (snappyCodec) ID() CodecID {
	return CodecSnappy
}

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decompress(src []byte, uncompressedLen int) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, errors.Wrap(err, "snappy decompress")
	}
	if len(dst) != uncompressedLen {
		return nil, errors.Wrapf(ErrCorruptBatch, "declared %d bytes, got %d", uncompressedLen, len(dst))
	}
	return dst, nil
}

type gzipCodec struct{}

func (gzipCodec) ID() CodecID {
	return CodecGzip
}

func (gzipCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(src); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(src []byte, uncompressedLen int) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "gzip decompress")
	}
	defer gr.Close()
	dst := make([]byte, 0, uncompressedLen)
	buf := bytes.NewBuffer(dst)
	if _, err = io.Copy(buf, gr); err != nil {
		return nil, errors.Wrap(err, "gzip decompress")
	}
	if buf.Len() != uncompressedLen {
		return nil, errors.Wrapf(ErrCorruptBatch, "declared %d bytes, got %d", uncompressedLen, buf.Len())
	}
	return buf.Bytes(), nil
}

type noopCodec struct{}

func (noopCodec) ID() CodecID {
	return CodecUncompressed
}

func (noopCodec) Compress(src []byte) ([]byte, error) {
	return src, nil
}

func (noopCodec) Decompress(src []byte, uncompressedLen int) ([]byte, error) {
	if len(src) != uncompressedLen {
		return nil, errors.Wrapf(ErrCorruptBatch, "declared %d bytes, got %d", uncompressedLen, len(src))
	}
	return src, nil
}

func NewCompressor(id CodecID) (Compressor, error) {
	switch id {
	case CodecUncompressed:
		return noopCodec{}, nil
	case CodecSnappy:
		return snappyCodec{}, nil
	case CodecGzip:
		return gzipCodec{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "id %d", id)
	}
}

func NewDecompressor(id CodecID) (Decompressor, error) {
	switch id {
	case CodecUncompressed:
		return noopCodec{}, nil
	case CodecSnappy:
		return snappyCodec{}, nil
	case CodecGzip:
		return gzipCodec{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "id %d", id)
	}
}

// CompressorForName resolves the codec configured in the options file.
func CompressorForName(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return noopCodec{}, nil
	case "snappy":
		return snappyCodec{}, nil
	case "gzip":
		return gzipCodec{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "name %q", name)
	}
}
