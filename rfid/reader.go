package rfid

import (
	"io"
)

// TagReader is a sequential read stream over the tag's fixed usable block
// addresses. The cursor advances strictly forward; every block is
// authenticated immediately before it is fetched. Close must always run,
// whatever the outcome, to halt the tag and clear the chip's crypto state.
type TagReader struct {
	tag    *Tag
	block  int // index into dataBlocks; numBlocks means end of stream
	offset int // position inside the current block, [0,blockSize)
	closed bool
}

// Read copies up to len(p) bytes from the current block, advancing the
// cursor. Once the cursor has passed the last usable block it returns io.EOF
// indefinitely. A failed authentication or fetch is reported as an error,
// never as a short success.
func (r *TagReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.block == numBlocks {
		return 0, io.EOF
	}

	data, err := r.tag.ctrl.readBlock(r.tag.uid, dataBlocks[r.block])
	if err != nil {
		return 0, err
	}

	n := blockSize - r.offset
	if n > len(p) {
		n = len(p)
	}
	copy(p, data[r.offset:r.offset+n])
	r.offset += n
	if r.offset == blockSize {
		r.offset = 0
		r.block++
	}
	return n, nil
}

// Close releases the tag's cryptographic session. It is idempotent.
func (r *TagReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.tag.ctrl.endSession()
}

var _ io.ReadCloser = (*TagReader)(nil)
