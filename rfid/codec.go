package rfid

import (
	"errors"
	"fmt"
	"io"
)

// Stored strings use the MessagePack str framing: a compact length header
// followed by the raw UTF-8 bytes. Tags written before this implementation
// used exactly this framing, so it must not change.
const (
	fixStrTag = 0xA0 // 0xA0..0xBF, length in the low 5 bits
	fixStrMax = 31
	str8Tag   = 0xD9 // 1-byte length
	str8Max   = 0xFF
	str16Tag  = 0xDA // 2-byte big-endian length

	// maxStringLen bounds the decode scratch buffer, comfortably above any
	// realistic payload on a 144-byte tag.
	maxStringLen = 1024
)

// WriteString serializes s onto the tag through w, then flushes, committing
// the final partial block. A tag stores exactly one encoded string.
func WriteString(w *TagWriter, s string) error {
	header, err := encodeHeader(len(s))
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	return w.Flush()
}

func encodeHeader(n int) ([]byte, error) {
	switch {
	case n <= fixStrMax:
		return []byte{fixStrTag | byte(n)}, nil
	case n <= str8Max:
		return []byte{str8Tag, byte(n)}, nil
	case n <= 0xFFFF:
		return []byte{str16Tag, byte(n >> 8), byte(n)}, nil
	default:
		return nil, NewCapacityError("WriteString")
	}
}

// ReadString reads one framed string from the tag through r. Malformed or
// truncated framing, and payloads that cannot fit on a tag, are decode
// errors; a read never silently runs past end-of-stream.
func ReadString(r *TagReader) (string, error) {
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", decodeOrHardwareError("truncated header", err)
	}

	var length, hdrLen int
	switch {
	case hdr[0]&0xE0 == fixStrTag:
		length = int(hdr[0] & 0x1F)
		hdrLen = 1
	case hdr[0] == str8Tag:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", decodeOrHardwareError("truncated header", err)
		}
		length = int(b[0])
		hdrLen = 2
	case hdr[0] == str16Tag:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", decodeOrHardwareError("truncated header", err)
		}
		length = int(b[0])<<8 | int(b[1])
		hdrLen = 3
	default:
		return "", NewDecodeError("ReadString", fmt.Sprintf("unrecognized header byte %#02x", hdr[0]), nil)
	}

	if length > maxStringLen || length > Capacity-hdrLen {
		return "", NewDecodeError("ReadString", fmt.Sprintf("payload length %d exceeds tag capacity", length), nil)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", decodeOrHardwareError("truncated payload", err)
	}
	return string(buf), nil
}

// decodeOrHardwareError classifies a framing read failure: running out of
// stream is a decode error, anything else is a hardware fault and passes
// through untouched.
func decodeOrHardwareError(message string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewDecodeError("ReadString", message, err)
	}
	return err
}
