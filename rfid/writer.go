package rfid

import (
	"io"
)

// TagWriter is a sequential buffered write stream over the tag's usable
// region. Input is staged through a 16-byte buffer; a block is committed to
// hardware only when the buffer fills or Flush is called. Committed blocks
// are never rolled back: commitment is per block, there is no whole-write
// atomicity. Close must always run to halt the tag and clear the chip's
// crypto state.
type TagWriter struct {
	tag    *Tag
	block  int // index into dataBlocks of the next block to commit
	buf    [blockSize]byte
	n      int // staged bytes in buf, [0,blockSize)
	closed bool
}

// Write stages p, committing full 16-byte blocks as they form. A trailing
// partial block stays in the buffer until the next Write fills it or Flush
// forces it out. Addressing past the last usable block fails fast with a
// capacity error instead of wrapping around.
func (w *TagWriter) Write(p []byte) (int, error) {
	wrote := 0

	// Top up a partially filled buffer first.
	if w.n > 0 {
		c := copy(w.buf[w.n:], p)
		w.n += c
		wrote += c
		p = p[c:]
		if w.n < blockSize {
			return wrote, nil
		}
		if err := w.commitBuffer(); err != nil {
			return wrote, err
		}
	}

	// Full chunks go straight to hardware, no staging.
	for len(p) >= blockSize {
		var blk [blockSize]byte
		copy(blk[:], p[:blockSize])
		if err := w.commit(blk); err != nil {
			return wrote, err
		}
		wrote += blockSize
		p = p[blockSize:]
	}

	// A trailing partial chunk is staged for later.
	if len(p) > 0 {
		if w.block == numBlocks {
			return wrote, NewCapacityError("Write")
		}
		copy(w.buf[:], p)
		w.n = len(p)
		wrote += len(p)
	}
	return wrote, nil
}

// Flush zero-pads and commits the staged partial block, if any. Flushing an
// empty buffer is a no-op, so a second Flush with nothing written in between
// commits no additional block.
func (w *TagWriter) Flush() error {
	if w.n == 0 {
		return nil
	}
	return w.commitBuffer()
}

// commitBuffer commits the staged bytes as one zero-padded block and resets
// the buffer.
func (w *TagWriter) commitBuffer() error {
	var blk [blockSize]byte
	copy(blk[:], w.buf[:w.n])
	if err := w.commit(blk); err != nil {
		return err
	}
	w.n = 0
	w.buf = [blockSize]byte{}
	return nil
}

func (w *TagWriter) commit(blk [blockSize]byte) error {
	if w.block == numBlocks {
		return NewCapacityError("Write")
	}
	if err := w.tag.ctrl.writeBlock(w.tag.uid, dataBlocks[w.block], blk); err != nil {
		return err
	}
	w.block++
	return nil
}

// Close releases the tag's cryptographic session. It does not flush; callers
// that want the final partial block on the tag must call Flush explicitly.
// Close is idempotent.
func (w *TagWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.tag.ctrl.endSession()
}

var _ io.WriteCloser = (*TagWriter)(nil)
