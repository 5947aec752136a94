package rfid

import (
	"bytes"
	"errors"
	"testing"
)

func TestTagWriter_FullBlockCommitsImmediately(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	data := bytes.Repeat([]byte{0xAB}, blockSize)
	n, err := writer.Write(data)
	if n != blockSize || err != nil {
		t.Fatalf("Write: got (%d, %v), want (%d, nil)", n, err, blockSize)
	}
	if len(chip.commitLog) != 1 || chip.commitLog[0] != dataBlocks[0] {
		t.Fatalf("commits = %v, want exactly block %d", chip.commitLog, dataBlocks[0])
	}
	if writer.n != 0 {
		t.Errorf("staging buffer holds %d bytes, want 0", writer.n)
	}
}

func TestTagWriter_PartialStagesUntilFlush(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	for _, chunk := range [][]byte{[]byte("abc"), []byte("defgh")} {
		if _, err := writer.Write(chunk); err != nil {
			t.Fatalf("Write(%q): %v", chunk, err)
		}
	}
	if len(chip.commitLog) != 0 {
		t.Fatalf("committed %v before flush, want nothing", chip.commitLog)
	}

	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(chip.commitLog) != 1 {
		t.Fatalf("commits after flush = %v, want one block", chip.commitLog)
	}
	blk := chip.blocks[dataBlocks[0]]
	want := append([]byte("abcdefgh"), make([]byte, 8)...)
	if !bytes.Equal(blk[:], want) {
		t.Errorf("block content = %x, want %x", blk, want)
	}
}

func TestTagWriter_FlushIsIdempotent(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	if _, err := writer.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(chip.commitLog) != 1 {
		t.Errorf("commits = %v, want exactly one block", chip.commitLog)
	}
}

func TestTagWriter_TopUpThenChunks(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	// 10 staged bytes, then 40 more: the first 6 top up block one, the next
	// 32 commit as two direct chunks, the trailing 2 stay staged.
	if _, err := writer.Write(bytes.Repeat([]byte{0x01}, 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := writer.Write(bytes.Repeat([]byte{0x02}, 40)); err != nil {
		t.Fatal(err)
	}
	wantCommits := []byte{dataBlocks[0], dataBlocks[1], dataBlocks[2]}
	if !bytes.Equal(chip.commitLog, wantCommits) {
		t.Fatalf("commits = %v, want %v", chip.commitLog, wantCommits)
	}
	if writer.n != 2 {
		t.Errorf("staging buffer holds %d bytes, want 2", writer.n)
	}

	first := chip.blocks[dataBlocks[0]]
	want := append(bytes.Repeat([]byte{0x01}, 10), bytes.Repeat([]byte{0x02}, 6)...)
	if !bytes.Equal(first[:], want) {
		t.Errorf("first block = %x, want %x", first, want)
	}
}

func TestTagWriter_CapacityBoundary(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	n, err := writer.Write(make([]byte, Capacity))
	if n != Capacity || err != nil {
		t.Fatalf("Write(144): got (%d, %v)", n, err)
	}
	if len(chip.commitLog) != numBlocks {
		t.Fatalf("commits = %d, want %d", len(chip.commitLog), numBlocks)
	}

	// One more byte must fail fast, never wrap onto the first block.
	if _, err := writer.Write([]byte{0xFF}); !IsCapacityError(err) {
		t.Fatalf("got %v, want a capacity error", err)
	}
	if len(chip.commitLog) != numBlocks {
		t.Errorf("overflow write committed a block: %v", chip.commitLog)
	}
}

func TestTagWriter_OversizedSingleWrite(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	n, err := writer.Write(make([]byte, Capacity+16))
	if !IsCapacityError(err) {
		t.Fatalf("got %v, want a capacity error", err)
	}
	if n != Capacity {
		t.Errorf("accepted %d bytes, want %d", n, Capacity)
	}
}

func TestTagWriter_CommitFailureNotRolledBack(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	defer writer.Close()

	if _, err := writer.Write(make([]byte, blockSize)); err != nil {
		t.Fatal(err)
	}
	chip.writeErr = errors.New("rf fault")
	if _, err := writer.Write(make([]byte, blockSize)); GetErrorCode(err) != ErrCodeWriteFailed {
		t.Fatalf("got %v, want a write error", err)
	}
	// The first block stays committed; there is no whole-write atomicity.
	if len(chip.commitLog) != 1 {
		t.Errorf("commits = %v, want the first block only", chip.commitLog)
	}
}

func TestTagWriter_CloseReleasesSession(t *testing.T) {
	chip := newSimChip()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if chip.halts != 1 || chip.cryptoStops != 1 {
		t.Errorf("session released %d/%d times, want exactly once", chip.halts, chip.cryptoStops)
	}
}
