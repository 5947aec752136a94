package rfid

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// Block geometry of the usable region. Only the data blocks of sectors 2-4
// are used; the sector trailers (11, 15, 19) hold key material and are never
// addressed.
const (
	blockSize = 16
	numBlocks = 9

	// Capacity is the usable payload size of a tag in bytes.
	Capacity = numBlocks * blockSize
)

// dataBlocks is the fixed ordered table of physical data block addresses.
var dataBlocks = [numBlocks]byte{8, 9, 10, 12, 13, 14, 16, 17, 18}

// DefaultKey is the factory-default MIFARE authentication key. It is what
// already-written tags in the field use, so it stays the default.
var DefaultKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ReaderChip is the hardware interface the block protocol runs over. The real
// implementation is the MFRC522 driver; tests substitute a simulated tag.
type ReaderChip interface {
	Init() error
	// DetectTag polls for a card and runs anti-collision. Absence of a tag
	// is (nil, false, nil), not an error.
	DetectTag() (uid []byte, present bool, err error)
	// Authenticate opens a Crypto1 session for exactly one block. It is
	// required immediately before every ReadBlock or WriteBlock.
	Authenticate(block byte, key [6]byte, uid []byte) error
	ReadBlock(block byte) ([]byte, error)
	WriteBlock(block byte, data []byte) error
	Halt() error
	StopCrypto() error
}

// Config carries the fixed inbound configuration of the controller.
type Config struct {
	// Bus names the SPI port, e.g. "SPI0.0". Empty selects DefaultBus.
	Bus string
	// Key is the 6-byte block authentication key. Nil selects DefaultKey.
	Key []byte
}

// Controller owns the reader chip and hands out tag handles. It is created
// once and lives for the process's polling lifetime. Every chip transaction
// runs under the controller lock and releases it before returning; the lock
// is never held across the watcher's inter-poll sleep.
type Controller struct {
	mu        sync.Mutex
	chip      ReaderChip
	key       [6]byte
	transport *Transport
}

// Open opens the SPI bus, initializes the reader chip and returns the
// controller.
func Open(cfg Config) (*Controller, error) {
	transport, err := OpenTransport(cfg.Bus)
	if err != nil {
		return nil, err
	}
	ctrl, err := NewController(newMFRC522(transport), cfg.Key)
	if err != nil {
		transport.Close()
		return nil, err
	}
	ctrl.transport = transport
	return ctrl, nil
}

// NewController builds a controller over an already-connected chip. A nil key
// selects DefaultKey.
func NewController(chip ReaderChip, key []byte) (*Controller, error) {
	if chip == nil {
		return nil, errors.New("reader chip cannot be nil")
	}
	c := &Controller{chip: chip, key: DefaultKey}
	if key != nil {
		if len(key) != 6 {
			return nil, fmt.Errorf("authentication key must be 6 bytes, got %d", len(key))
		}
		copy(c.key[:], key)
	}
	if err := c.chip.Init(); err != nil {
		return nil, NewTransportError("NewController", err)
	}
	return c, nil
}

// DetectTag polls for a new card. When nothing is in the field it returns
// (nil, false, nil); an error always means a genuine bus or chip fault.
func (c *Controller) DetectTag() (*Tag, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uid, present, err := c.chip.DetectTag()
	if err != nil {
		return nil, false, NewTransportError("DetectTag", err)
	}
	if !present {
		return nil, false, nil
	}
	return &Tag{uid: uid, ctrl: c}, true, nil
}

// Close releases the bus handle. Tag handles from this controller must not be
// used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// readBlock runs one authenticate+fetch transaction under the controller lock.
func (c *Controller) readBlock(uid []byte, addr byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chip.Authenticate(addr, c.key, uid); err != nil {
		return nil, NewAuthError("Read", hex.EncodeToString(uid), err)
	}
	data, err := c.chip.ReadBlock(addr)
	if err != nil {
		return nil, NewReadError("Read", hex.EncodeToString(uid), err)
	}
	return data, nil
}

// writeBlock runs one authenticate+commit transaction under the controller lock.
func (c *Controller) writeBlock(uid []byte, addr byte, data [blockSize]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chip.Authenticate(addr, c.key, uid); err != nil {
		return NewAuthError("Write", hex.EncodeToString(uid), err)
	}
	if err := c.chip.WriteBlock(addr, data[:]); err != nil {
		return NewWriteError("Write", hex.EncodeToString(uid), err)
	}
	return nil
}

// endSession halts the tag and clears the chip's cryptographic state. It runs
// on every reader/writer disposal regardless of outcome.
func (c *Controller) endSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	haltErr := c.chip.Halt()
	cryptoErr := c.chip.StopCrypto()
	if haltErr != nil {
		return NewTransportError("endSession", haltErr)
	}
	if cryptoErr != nil {
		return NewTransportError("endSession", cryptoErr)
	}
	return nil
}

// Tag is a handle to one physically present card. It is created per presence
// detection and discarded when the watcher moves on.
type Tag struct {
	uid  []byte
	ctrl *Controller
}

// UID returns the tag identifier as lowercase hex. Identifiers are opaque and
// only compared for equality between polls.
func (t *Tag) UID() string {
	return hex.EncodeToString(t.uid)
}

// SameTag reports whether other identifies the same physical tag.
func (t *Tag) SameTag(other *Tag) bool {
	return other != nil && bytes.Equal(t.uid, other.uid)
}

// NewReader returns a sequential reader over the tag's usable region. Only
// one active reader or writer per tag handle is permitted at a time.
func (t *Tag) NewReader() *TagReader {
	return &TagReader{tag: t}
}

// NewWriter returns a sequential buffered writer over the tag's usable region.
func (t *Tag) NewWriter() *TagWriter {
	return &TagWriter{tag: t}
}
