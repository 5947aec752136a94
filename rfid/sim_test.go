package rfid

import (
	"bytes"
	"errors"
	"fmt"
)

// errSimulated stands in for an arbitrary hardware fault.
var errSimulated = errors.New("simulated hardware fault")

// simChip simulates the reader chip with a single 9-block tag in the field.
// It enforces the session protocol: every block operation requires a fresh
// authentication, and authentication is consumed by the operation.
type simChip struct {
	uid     []byte
	present bool
	key     [6]byte
	blocks  map[byte][blockSize]byte

	authedBlock int // physical address authenticated for the next op, -1 if none

	initErr   error
	detectErr error
	authErr   error
	readErr   error
	writeErr  error

	inits       int
	halts       int
	cryptoStops int
	authLog     []byte // physical addresses authenticated, in order
	commitLog   []byte // physical addresses written, in order
}

func newSimChip() *simChip {
	return &simChip{
		uid:         []byte{0xDE, 0xAD, 0xBE, 0xEF},
		present:     true,
		key:         DefaultKey,
		blocks:      make(map[byte][blockSize]byte),
		authedBlock: -1,
	}
}

func (c *simChip) Init() error {
	c.inits++
	return c.initErr
}

func (c *simChip) DetectTag() ([]byte, bool, error) {
	if c.detectErr != nil {
		return nil, false, c.detectErr
	}
	if !c.present {
		return nil, false, nil
	}
	uid := make([]byte, len(c.uid))
	copy(uid, c.uid)
	return uid, true, nil
}

func (c *simChip) Authenticate(block byte, key [6]byte, uid []byte) error {
	if c.authErr != nil {
		return c.authErr
	}
	if key != c.key {
		return fmt.Errorf("key rejected for block %d", block)
	}
	if !bytes.Equal(uid, c.uid) {
		return errors.New("unknown tag identifier")
	}
	c.authedBlock = int(block)
	c.authLog = append(c.authLog, block)
	return nil
}

func (c *simChip) ReadBlock(block byte) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	if c.authedBlock != int(block) {
		return nil, fmt.Errorf("block %d not authenticated", block)
	}
	c.authedBlock = -1 // authentication is never reused across operations
	data := c.blocks[block]
	out := make([]byte, blockSize)
	copy(out, data[:])
	return out, nil
}

func (c *simChip) WriteBlock(block byte, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.authedBlock != int(block) {
		return fmt.Errorf("block %d not authenticated", block)
	}
	c.authedBlock = -1
	if len(data) != blockSize {
		return fmt.Errorf("block data must be %d bytes, got %d", blockSize, len(data))
	}
	var blk [blockSize]byte
	copy(blk[:], data)
	c.blocks[block] = blk
	c.commitLog = append(c.commitLog, block)
	return nil
}

func (c *simChip) Halt() error {
	c.halts++
	c.authedBlock = -1
	return nil
}

func (c *simChip) StopCrypto() error {
	c.cryptoStops++
	return nil
}

// setContent lays raw bytes over the tag's usable region, starting at the
// first usable block address.
func (c *simChip) setContent(data []byte) {
	for i := 0; i < numBlocks; i++ {
		var blk [blockSize]byte
		start := i * blockSize
		if start < len(data) {
			end := start + blockSize
			if end > len(data) {
				end = len(data)
			}
			copy(blk[:], data[start:end])
		}
		c.blocks[dataBlocks[i]] = blk
	}
}

// content flattens the usable region back into one 144-byte image.
func (c *simChip) content() []byte {
	out := make([]byte, 0, Capacity)
	for i := 0; i < numBlocks; i++ {
		blk := c.blocks[dataBlocks[i]]
		out = append(out, blk[:]...)
	}
	return out
}

func newSimController(c *simChip) *Controller {
	ctrl, err := NewController(c, nil)
	if err != nil {
		panic(err)
	}
	return ctrl
}

func detectSimTag(ctrl *Controller) *Tag {
	tag, present, err := ctrl.DetectTag()
	if err != nil || !present {
		panic(fmt.Sprintf("simulated tag not detected: present=%v err=%v", present, err))
	}
	return tag
}
