package rfid

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Fixed bus parameters for the reader chip wiring.
const (
	DefaultBus = "SPI0.0"

	busSpeed = 20 * physic.KiloHertz
	busMode  = spi.Mode0
	busBits  = 8
)

var errClosed = errors.New("transport closed")

// Transport owns the exclusive SPI handle to the reader chip. It is shared by
// reference between the controller and any readers/writers built from it.
// Serialization of bus access is the controller's job: exactly one logical
// transaction executes at a time.
type Transport struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

// OpenTransport opens the SPI bus at the fixed parameters and returns the
// shared transport handle. An empty name selects DefaultBus.
func OpenTransport(name string) (*Transport, error) {
	if name == "" {
		name = DefaultBus
	}
	if _, err := host.Init(); err != nil {
		return nil, NewTransportError("OpenTransport", fmt.Errorf("host init: %w", err))
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, NewTransportError("OpenTransport", fmt.Errorf("open %s: %w", name, err))
	}
	conn, err := port.Connect(busSpeed, busMode, busBits)
	if err != nil {
		port.Close()
		return nil, NewTransportError("OpenTransport", fmt.Errorf("configure %s: %w", name, err))
	}
	return &Transport{port: port, conn: conn}, nil
}

// tx performs one full-duplex SPI exchange. Callers must hold the transport
// lock for the enclosing transaction.
func (t *Transport) tx(w, r []byte) error {
	if t.conn == nil {
		return NewTransportError("tx", errClosed)
	}
	if err := t.conn.Tx(w, r); err != nil {
		return NewTransportError("tx", err)
	}
	return nil
}

// Close releases the underlying bus handle.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return NewTransportError("Close", err)
	}
	return nil
}
