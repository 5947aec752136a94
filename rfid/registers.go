package rfid

// MFRC522 register addresses (datasheet section 9).
const (
	regCommand    = 0x01
	regComIEn     = 0x02
	regComIrq     = 0x04
	regDivIrq     = 0x05
	regError      = 0x06
	regStatus2    = 0x08
	regFIFOData   = 0x09
	regFIFOLevel  = 0x0A
	regControl    = 0x0C
	regBitFraming = 0x0D
	regMode       = 0x11
	regTxControl  = 0x14
	regTxASK      = 0x15
	regCRCResultH = 0x21
	regCRCResultL = 0x22
	regTMode      = 0x2A
	regTPrescaler = 0x2B
	regTReloadH   = 0x2C
	regTReloadL   = 0x2D
	regVersion    = 0x37
)

// MFRC522 command set (datasheet section 10.3).
const (
	cmdIdle       = 0x00
	cmdCalcCRC    = 0x03
	cmdTransceive = 0x0C
	cmdMFAuthent  = 0x0E
	cmdSoftReset  = 0x0F
)

// ISO 14443A / MIFARE Classic commands sent over the RF interface.
const (
	piccReqA        = 0x26
	piccAntiColl    = 0x93
	piccAntiCollNVB = 0x20
	piccSelectNVB   = 0x70
	piccHaltA       = 0x50
	piccAuthKeyA    = 0x60
	piccRead        = 0x30
	piccWrite       = 0xA0

	// 4-bit MIFARE acknowledge returned after a write step.
	mifareACK = 0x0A
)

// Status2Reg MFCrypto1On bit: set while a Crypto1 session is active.
const status2Crypto1On = 0x08
