package rfid

import (
	"bytes"
	"strings"
	"testing"
)

func writeStringToSim(t *testing.T, chip *simChip, s string) {
	t.Helper()
	ctrl := newSimController(chip)
	writer := detectSimTag(ctrl).NewWriter()
	if err := WriteString(writer, s); err != nil {
		t.Fatalf("WriteString(%q): %v", s, err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer Close: %v", err)
	}
}

func readStringFromSim(t *testing.T, chip *simChip) (string, error) {
	t.Helper()
	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	s, err := ReadString(reader)
	if cerr := reader.Close(); cerr != nil {
		t.Fatalf("reader Close: %v", cerr)
	}
	return s, err
}

func TestStringCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{"empty", ""},
		{"short", "hello"},
		{"spotify_uri", `{"SpotifyUri":"spotify:album:3HJIAvChlNYZIox4FjuHez"}`},
		{"fixstr_boundary", strings.Repeat("x", 31)},
		{"str8_boundary", strings.Repeat("y", 32)},
		{"multibyte", "grüße, höllo wörld ✓"},
		{"max_capacity", strings.Repeat("z", Capacity-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newSimChip()
			writeStringToSim(t, chip, tt.s)
			got, err := readStringFromSim(t, chip)
			if err != nil {
				t.Fatalf("ReadString: %v", err)
			}
			if got != tt.s {
				t.Errorf("round trip: got %q, want %q", got, tt.s)
			}
		})
	}
}

func TestStringCodec_HelloBlockLayout(t *testing.T) {
	chip := newSimChip()
	writeStringToSim(t, chip, "hello")

	// One length-header byte plus five payload bytes, zero-padded to one
	// block at the first usable address. No other block is touched.
	if len(chip.commitLog) != 1 || chip.commitLog[0] != dataBlocks[0] {
		t.Fatalf("commits = %v, want exactly block %d", chip.commitLog, dataBlocks[0])
	}
	blk := chip.blocks[dataBlocks[0]]
	want := append([]byte{0xA5, 'h', 'e', 'l', 'l', 'o'}, make([]byte, 10)...)
	if !bytes.Equal(blk[:], want) {
		t.Errorf("block = %x, want %x", blk, want)
	}

	got, err := readStringFromSim(t, chip)
	if err != nil || got != "hello" {
		t.Errorf("decode: got (%q, %v), want (hello, nil)", got, err)
	}
}

func TestStringCodec_OversizedPayload(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"str8_beyond_capacity", []byte{0xD9, 200}},
		{"str16_beyond_scratch", []byte{0xDA, 0x20, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newSimChip()
			chip.setContent(tt.content)
			_, err := readStringFromSim(t, chip)
			if !IsDecodeError(err) {
				t.Fatalf("got %v, want a decode error", err)
			}
		})
	}
}

func TestStringCodec_MalformedHeader(t *testing.T) {
	chip := newSimChip()
	chip.setContent([]byte{0x00}) // not a string header
	_, err := readStringFromSim(t, chip)
	if !IsDecodeError(err) {
		t.Fatalf("got %v, want a decode error", err)
	}
}

func TestStringCodec_HeaderAtEndOfStream(t *testing.T) {
	chip := newSimChip()
	chip.setContent(nil)

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	// Drain the stream, then attempt a decode at end-of-stream.
	for i := 0; i < numBlocks; i++ {
		if _, err := reader.Read(make([]byte, blockSize)); err != nil {
			t.Fatalf("drain block %d: %v", i, err)
		}
	}
	if _, err := ReadString(reader); !IsDecodeError(err) {
		t.Fatalf("got %v, want a decode error", err)
	}
}

func TestStringCodec_ReadFailurePropagates(t *testing.T) {
	chip := newSimChip()
	chip.setContent([]byte{0xA5, 'h', 'e', 'l', 'l', 'o'})
	chip.readErr = errSimulated

	ctrl := newSimController(chip)
	reader := detectSimTag(ctrl).NewReader()
	defer reader.Close()

	_, err := ReadString(reader)
	if err == nil || IsDecodeError(err) {
		t.Fatalf("got %v, want the underlying read error", err)
	}
}
