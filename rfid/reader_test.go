package rfid

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestTagReader_ReadsAcrossBlocks(t *testing.T) {
	chip := newSimChip()
	pattern := make([]byte, Capacity)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	chip.setContent(pattern)

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Errorf("read %d bytes, content mismatch", len(got))
	}

	// Every fetch must have been preceded by its own authentication, on the
	// fixed data block addresses in order.
	if len(chip.authLog) != numBlocks {
		t.Fatalf("got %d authentications, want %d", len(chip.authLog), numBlocks)
	}
	for i, addr := range chip.authLog {
		if addr != dataBlocks[i] {
			t.Errorf("auth %d targeted block %d, want %d", i, addr, dataBlocks[i])
		}
	}
}

func TestTagReader_SmallBufferAdvancesOffset(t *testing.T) {
	chip := newSimChip()
	chip.setContent([]byte("abcdefghijklmnopqrstuvwxyz"))

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	buf := make([]byte, 10)
	var got []byte
	for i := 0; i < 3; i++ {
		n, err := reader.Read(buf)
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		got = append(got, buf[:n]...)
	}
	if want := "abcdefghijklmnopqrstuvwxyz"; string(got[:26]) != want {
		t.Errorf("got %q, want prefix %q", got, want)
	}
}

func TestTagReader_EndOfStreamIsIdempotent(t *testing.T) {
	chip := newSimChip()
	chip.setContent(nil)

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	buf := make([]byte, blockSize)
	for i := 0; i < numBlocks; i++ {
		if n, err := reader.Read(buf); n != blockSize || err != nil {
			t.Fatalf("block %d: got (%d, %v), want (%d, nil)", i, n, err, blockSize)
		}
	}
	for i := 0; i < 3; i++ {
		n, err := reader.Read(buf)
		if n != 0 || err != io.EOF {
			t.Fatalf("post-EOF read %d: got (%d, %v), want (0, EOF)", i, n, err)
		}
	}
}

func TestTagReader_AuthFailureSurfaces(t *testing.T) {
	chip := newSimChip()
	chip.authErr = errors.New("tag pulled")

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()

	_, err := reader.Read(make([]byte, 4))
	if !IsAuthError(err) {
		t.Fatalf("got %v, want an authentication error", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("Close after failed read: %v", err)
	}
	if chip.halts != 1 || chip.cryptoStops != 1 {
		t.Errorf("session not released: halts=%d cryptoStops=%d", chip.halts, chip.cryptoStops)
	}
}

func TestTagReader_FetchFailureSurfaces(t *testing.T) {
	chip := newSimChip()
	chip.readErr = errors.New("rf fault")

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	n, err := reader.Read(make([]byte, 4))
	if n != 0 || GetErrorCode(err) != ErrCodeReadFailed {
		t.Fatalf("got (%d, %v), want (0, read error)", n, err)
	}
}

func TestTagReader_CloseIsIdempotent(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()

	if err := reader.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if chip.halts != 1 || chip.cryptoStops != 1 {
		t.Errorf("session released %d/%d times, want exactly once", chip.halts, chip.cryptoStops)
	}
}
