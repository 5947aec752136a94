package rfid

import (
	"errors"
	"fmt"
	"time"
)

// Register/command timing. The chip signals completion through its IRQ
// registers; we poll them over SPI instead of wiring the IRQ pin.
const (
	chipPollStep    = 100 * time.Microsecond
	chipPollRetries = 250
)

var (
	errChipTimeout = errors.New("chip command timed out")
	errCollision   = errors.New("collision or protocol error")
	errNoResponse  = errors.New("no tag response")
)

// mfrc522 is the register-level driver for the MFRC522 reader chip on SPI.
// All methods assume the caller serializes access; the controller holds its
// transaction lock around every call.
type mfrc522 struct {
	t *Transport
}

func newMFRC522(t *Transport) *mfrc522 {
	return &mfrc522{t: t}
}

// readReg reads a single register. The MFRC522 SPI framing puts the address
// in bits 6..1 with bit 7 set for reads.
func (d *mfrc522) readReg(reg byte) (byte, error) {
	w := []byte{((reg << 1) & 0x7E) | 0x80, 0x00}
	r := make([]byte, 2)
	if err := d.t.tx(w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (d *mfrc522) writeReg(reg, value byte) error {
	w := []byte{(reg << 1) & 0x7E, value}
	return d.t.tx(w, make([]byte, 2))
}

func (d *mfrc522) setBits(reg, mask byte) error {
	v, err := d.readReg(reg)
	if err != nil {
		return err
	}
	return d.writeReg(reg, v|mask)
}

func (d *mfrc522) clearBits(reg, mask byte) error {
	v, err := d.readReg(reg)
	if err != nil {
		return err
	}
	return d.writeReg(reg, v&^mask)
}

// Init soft-resets the chip and configures timer, modulation and antenna.
func (d *mfrc522) Init() error {
	if err := d.writeReg(regCommand, cmdSoftReset); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)

	// Timer: TAuto, prescaler and reload chosen for a ~25ms transceive timeout.
	steps := []struct{ reg, value byte }{
		{regTMode, 0x8D},
		{regTPrescaler, 0x3E},
		{regTReloadL, 30},
		{regTReloadH, 0},
		{regTxASK, 0x40}, // force 100% ASK
		{regMode, 0x3D},  // CRC preset 0x6363
	}
	for _, s := range steps {
		if err := d.writeReg(s.reg, s.value); err != nil {
			return err
		}
	}

	// A version of 0x00 or 0xFF means the bus is floating, i.e. no chip.
	v, err := d.readReg(regVersion)
	if err != nil {
		return err
	}
	if v == 0x00 || v == 0xFF {
		return fmt.Errorf("reader chip not responding (version %#02x)", v)
	}

	// Antenna on.
	return d.setBits(regTxControl, 0x03)
}

// transceive runs the Transceive command: send data, wait for the IRQ, read
// the response from the FIFO. txLastBits is the number of valid bits in the
// final byte (0 means all eight), as required by the short REQA frame.
func (d *mfrc522) transceive(data []byte, txLastBits byte) ([]byte, byte, error) {
	resp, err := d.communicate(cmdTransceive, data, txLastBits)
	return resp.data, resp.lastBits, err
}

type chipResponse struct {
	data     []byte
	lastBits byte
}

func (d *mfrc522) communicate(command byte, data []byte, txLastBits byte) (chipResponse, error) {
	var irqEn, waitIrq byte
	switch command {
	case cmdMFAuthent:
		irqEn, waitIrq = 0x12, 0x10
	default:
		irqEn, waitIrq = 0x77, 0x30
	}

	prep := []struct{ reg, value byte }{
		{regComIEn, irqEn | 0x80},
		{regComIrq, 0x7F}, // clear pending IRQs
		{regCommand, cmdIdle},
	}
	for _, s := range prep {
		if err := d.writeReg(s.reg, s.value); err != nil {
			return chipResponse{}, err
		}
	}
	if err := d.setBits(regFIFOLevel, 0x80); err != nil { // flush FIFO
		return chipResponse{}, err
	}
	for _, b := range data {
		if err := d.writeReg(regFIFOData, b); err != nil {
			return chipResponse{}, err
		}
	}
	if err := d.writeReg(regCommand, command); err != nil {
		return chipResponse{}, err
	}
	if command == cmdTransceive {
		if err := d.writeReg(regBitFraming, 0x80|txLastBits); err != nil { // StartSend
			return chipResponse{}, err
		}
	}

	done := false
	for i := 0; i < chipPollRetries; i++ {
		irq, err := d.readReg(regComIrq)
		if err != nil {
			return chipResponse{}, err
		}
		if irq&waitIrq != 0 {
			done = true
			break
		}
		if irq&0x01 != 0 { // timer expired: no tag answered
			return chipResponse{}, errNoResponse
		}
		time.Sleep(chipPollStep)
	}
	d.clearBits(regBitFraming, 0x80)
	if !done {
		return chipResponse{}, errChipTimeout
	}

	errReg, err := d.readReg(regError)
	if err != nil {
		return chipResponse{}, err
	}
	if errReg&0x1B != 0 { // BufferOvfl, ParityErr, ProtocolErr
		return chipResponse{}, fmt.Errorf("%w (error register %#02x)", errCollision, errReg)
	}

	if command != cmdTransceive {
		return chipResponse{}, nil
	}

	n, err := d.readReg(regFIFOLevel)
	if err != nil {
		return chipResponse{}, err
	}
	control, err := d.readReg(regControl)
	if err != nil {
		return chipResponse{}, err
	}
	resp := chipResponse{
		data:     make([]byte, n),
		lastBits: control & 0x07,
	}
	for i := range resp.data {
		b, err := d.readReg(regFIFOData)
		if err != nil {
			return chipResponse{}, err
		}
		resp.data[i] = b
	}
	return resp, nil
}

// calcCRC runs the chip's CRC_A coprocessor over data.
func (d *mfrc522) calcCRC(data []byte) ([2]byte, error) {
	var crc [2]byte
	if err := d.writeReg(regCommand, cmdIdle); err != nil {
		return crc, err
	}
	if err := d.setBits(regFIFOLevel, 0x80); err != nil {
		return crc, err
	}
	for _, b := range data {
		if err := d.writeReg(regFIFOData, b); err != nil {
			return crc, err
		}
	}
	if err := d.writeReg(regCommand, cmdCalcCRC); err != nil {
		return crc, err
	}
	for i := 0; i < chipPollRetries; i++ {
		irq, err := d.readReg(regDivIrq)
		if err != nil {
			return crc, err
		}
		if irq&0x04 != 0 { // CRCIRq
			lo, err := d.readReg(regCRCResultL)
			if err != nil {
				return crc, err
			}
			hi, err := d.readReg(regCRCResultH)
			if err != nil {
				return crc, err
			}
			crc[0], crc[1] = lo, hi
			return crc, nil
		}
		time.Sleep(chipPollStep)
	}
	return crc, errChipTimeout
}

// DetectTag polls for a new card with a short REQA frame and, if one answers,
// runs anti-collision and select to obtain its identifier. A silent field is
// reported as (nil, false, nil); only genuine bus faults return an error.
func (d *mfrc522) DetectTag() ([]byte, bool, error) {
	if err := d.writeReg(regBitFraming, 0x07); err != nil { // REQA is a 7-bit frame
		return nil, false, err
	}
	_, _, err := d.transceive([]byte{piccReqA}, 0x07)
	if err != nil {
		if errors.Is(err, errNoResponse) || errors.Is(err, errChipTimeout) || errors.Is(err, errCollision) {
			return nil, false, nil
		}
		return nil, false, err
	}

	// Anti-collision, cascade level 1: returns 4 UID bytes plus BCC.
	if err := d.writeReg(regBitFraming, 0x00); err != nil {
		return nil, false, err
	}
	resp, _, err := d.transceive([]byte{piccAntiColl, piccAntiCollNVB}, 0)
	if err != nil {
		if errors.Is(err, errNoResponse) || errors.Is(err, errChipTimeout) || errors.Is(err, errCollision) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(resp) != 5 {
		return nil, false, nil
	}
	if resp[0]^resp[1]^resp[2]^resp[3] != resp[4] {
		return nil, false, nil // BCC mismatch, likely a collision
	}
	uid := make([]byte, 4)
	copy(uid, resp[:4])

	if err := d.selectTag(resp[:5]); err != nil {
		return nil, false, nil
	}
	return uid, true, nil
}

func (d *mfrc522) selectTag(uidBCC []byte) error {
	frame := make([]byte, 0, 9)
	frame = append(frame, piccAntiColl, piccSelectNVB)
	frame = append(frame, uidBCC...)
	crc, err := d.calcCRC(frame)
	if err != nil {
		return err
	}
	frame = append(frame, crc[0], crc[1])
	resp, _, err := d.transceive(frame, 0)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return errNoResponse
	}
	return nil // resp[0] is the SAK; any answer means the tag is selected
}

// Authenticate runs the MFAuthent command for one block using key A. It must
// be called immediately before every ReadBlock/WriteBlock; the chip keeps the
// Crypto1 unit active until StopCrypto.
func (d *mfrc522) Authenticate(block byte, key [6]byte, uid []byte) error {
	if len(uid) < 4 {
		return fmt.Errorf("need a 4-byte identifier, got %d bytes", len(uid))
	}
	frame := make([]byte, 0, 12)
	frame = append(frame, piccAuthKeyA, block)
	frame = append(frame, key[:]...)
	frame = append(frame, uid[:4]...)
	if _, err := d.communicate(cmdMFAuthent, frame, 0); err != nil {
		return err
	}
	status, err := d.readReg(regStatus2)
	if err != nil {
		return err
	}
	if status&status2Crypto1On == 0 {
		return fmt.Errorf("key rejected for block %d", block)
	}
	return nil
}

// ReadBlock fetches the 16 data bytes of an authenticated block.
func (d *mfrc522) ReadBlock(block byte) ([]byte, error) {
	frame := []byte{piccRead, block}
	crc, err := d.calcCRC(frame)
	if err != nil {
		return nil, err
	}
	frame = append(frame, crc[0], crc[1])
	resp, _, err := d.transceive(frame, 0)
	if err != nil {
		return nil, err
	}
	if len(resp) < blockSize {
		return nil, fmt.Errorf("short block response (%d bytes)", len(resp))
	}
	return resp[:blockSize], nil // trailing bytes are the tag's CRC_A
}

// WriteBlock commits 16 bytes to an authenticated block. MIFARE write is a
// two-step exchange; each step must be answered with the 4-bit ACK.
func (d *mfrc522) WriteBlock(block byte, data []byte) error {
	if len(data) != blockSize {
		return fmt.Errorf("block data must be %d bytes, got %d", blockSize, len(data))
	}
	frame := []byte{piccWrite, block}
	crc, err := d.calcCRC(frame)
	if err != nil {
		return err
	}
	frame = append(frame, crc[0], crc[1])
	resp, lastBits, err := d.transceive(frame, 0)
	if err != nil {
		return err
	}
	if !isACK(resp, lastBits) {
		return fmt.Errorf("write command rejected for block %d", block)
	}

	payload := make([]byte, 0, blockSize+2)
	payload = append(payload, data...)
	crc, err = d.calcCRC(payload)
	if err != nil {
		return err
	}
	payload = append(payload, crc[0], crc[1])
	resp, lastBits, err = d.transceive(payload, 0)
	if err != nil {
		return err
	}
	if !isACK(resp, lastBits) {
		return fmt.Errorf("write data rejected for block %d", block)
	}
	return nil
}

func isACK(resp []byte, lastBits byte) bool {
	return len(resp) == 1 && lastBits == 4 && resp[0]&0x0F == mifareACK
}

// Halt puts the selected tag into the HALT state. Per ISO 14443-3 a halted
// tag stays silent, so the expected outcome is a response timeout.
func (d *mfrc522) Halt() error {
	frame := []byte{piccHaltA, 0x00}
	crc, err := d.calcCRC(frame)
	if err != nil {
		return err
	}
	frame = append(frame, crc[0], crc[1])
	_, _, err = d.transceive(frame, 0)
	if err != nil && !errors.Is(err, errNoResponse) && !errors.Is(err, errChipTimeout) {
		return err
	}
	return nil
}

// StopCrypto clears the chip's Crypto1 state, ending the authenticated session.
func (d *mfrc522) StopCrypto() error {
	return d.clearBits(regStatus2, status2Crypto1On)
}
