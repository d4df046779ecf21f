package regmap

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Counters contains client transaction counters.
type Counters struct {
	NReads  uint64 `json:"nReads"`
	NWrites uint64 `json:"nWrites"`
	NErrors uint64 `json:"nErrors"`
}

func (cnt Counters) String() string {
	return fmt.Sprintf("%dreads %dwrites %derrors", cnt.NReads, cnt.NWrites, cnt.NErrors)
}

// Client accesses the device register file through a Transport.
//
// A Client serializes transactions internally, so the TX worker and the RX
// poller may share one instance. Read-modify-write sequences are not atomic
// with respect to other bus masters; callers needing that must serialize
// externally.
type Client struct {
	mu     sync.Mutex
	tr     Transport
	shadow map[uint16]uint32
	cnt    Counters
	logger *zap.Logger
}

// NewClient creates a Client.
func NewClient(tr Transport) *Client {
	return &Client{
		tr:     tr,
		shadow: map[uint16]uint32{},
		logger: logger,
	}
}

func checkAddr(addr uint16) error {
	if addr >= RegCount {
		return fmt.Errorf("%w: %#04x", ErrInvalidRegister, addr)
	}
	return nil
}

func (c *Client) transact(tx []byte) ([]byte, error) {
	rx, e := c.tr.Transact(tx)
	if e != nil {
		c.cnt.NErrors++
		return nil, &TransportError{Err: e}
	}
	return rx, nil
}

// Read reads a 32-bit register.
func (c *Client) Read(addr uint16) (uint32, error) {
	if e := checkAddr(addr); e != nil {
		return 0, e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.NReads++
	rx, e := c.transact(encodeRegRead(addr))
	if e != nil {
		return 0, e
	}
	val, ok := decodeRegValue(rx)
	if !ok {
		c.cnt.NErrors++
		return 0, fmt.Errorf("%w: register %#04x", ErrShortResponse, addr)
	}
	return val, nil
}

// Write writes a 32-bit register.
// The shadow copy is updated only after the transaction succeeds.
func (c *Client) Write(addr uint16, val uint32) error {
	if e := checkAddr(addr); e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(addr, val)
}

func (c *Client) writeLocked(addr uint16, val uint32) error {
	c.cnt.NWrites++
	if _, e := c.transact(encodeRegWrite(addr, val)); e != nil {
		return e
	}
	c.shadow[addr] = val
	return nil
}

// Modify performs a read-modify-write, replacing the bits selected by mask.
func (c *Client) Modify(addr uint16, mask, val uint32) error {
	if e := checkAddr(addr); e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.NReads++
	rx, e := c.transact(encodeRegRead(addr))
	if e != nil {
		return e
	}
	old, ok := decodeRegValue(rx)
	if !ok {
		c.cnt.NErrors++
		return fmt.Errorf("%w: register %#04x", ErrShortResponse, addr)
	}
	return c.writeLocked(addr, (old&^mask)|(val&mask))
}

// SetBits sets the bits selected by mask.
func (c *Client) SetBits(addr uint16, mask uint32) error {
	return c.Modify(addr, mask, mask)
}

// ClearBits clears the bits selected by mask.
func (c *Client) ClearBits(addr uint16, mask uint32) error {
	return c.Modify(addr, mask, 0)
}

// ReadFIFO streams n bytes from a FIFO register.
func (c *Client) ReadFIFO(addr uint16, n int) ([]byte, error) {
	if e := checkAddr(addr); e != nil {
		return nil, e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.NReads++
	rx, e := c.transact(encodeFIFORead(addr, n))
	if e != nil {
		return nil, e
	}
	data, ok := decodeFIFOData(rx, n)
	if !ok {
		c.cnt.NErrors++
		return nil, fmt.Errorf("%w: FIFO %#04x", ErrShortResponse, addr)
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// WriteFIFO streams bytes into a FIFO register.
func (c *Client) WriteFIFO(addr uint16, p []byte) error {
	if e := checkAddr(addr); e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cnt.NWrites++
	_, e := c.transact(encodeFIFOWrite(addr, p))
	return e
}

// Shadow returns the last successfully written value of a register.
// It reflects only writes made through this Client.
func (c *Client) Shadow(addr uint16) (val uint32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok = c.shadow[addr]
	return
}

// CheckID reads the chip identification register and verifies its value.
func (c *Client) CheckID() error {
	id, e := c.Read(RegChipID)
	if e != nil {
		return e
	}
	if id != ChipID {
		return fmt.Errorf("unexpected chip ID %#04x", id)
	}
	c.logger.Debug("chip identified", zap.Uint32("id", id))
	return nil
}

// Counters returns current counters.
func (c *Client) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cnt
}
