package streamio

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

var zlibWriter = sync.Pool{
	New: func() any {
		return &ZlibEncoder{Writer: zlib.NewWriter(io.Discard)}
	},
}

type ZlibEncoder struct {
	*zlib.Writer
}

// GetZlibWriter returns a *ZlibEncoder that is managed by a sync.Pool.
// Returns a writer that is reset with w and ready for use.
//
// After use, the *ZlibEncoder should be put back into the sync.Pool
// by calling PutZlibWriter.
func GetZlibWriter(w io.Writer) *ZlibEncoder {
	z := zlibWriter.Get().(*ZlibEncoder)
	z.Reset(w)
	return z
}

// PutZlibWriter puts w back into its sync.Pool.
func PutZlibWriter(w *ZlibEncoder) {
	zlibWriter.Put(w)
}

// ZlibDecoder wraps the stream returned by zlib.NewReader, which has no
// Reset method, so unlike ZstdDecoder this only pools the wrapper struct.
type ZlibDecoder struct {
	Reader io.ReadCloser
}

// GetZlibReader opens a new zlib stream over r. z is always non-nil, even
// on error, so callers can unconditionally PutZlibReader it.
func GetZlibReader(r io.Reader) (*ZlibDecoder, error) {
	rc, err := zlib.NewReader(r)
	if err != nil {
		return &ZlibDecoder{}, err
	}
	return &ZlibDecoder{Reader: rc}, nil
}

// PutZlibReader closes z's underlying stream.
func PutZlibReader(z *ZlibDecoder) {
	if z.Reader != nil {
		_ = z.Reader.Close()
	}
}
