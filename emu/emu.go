// Package emu provides an in-memory device model implementing
// regmap.Transport. It mirrors the register file, FIFO windows, and
// interrupt semantics of the real device closely enough to exercise the
// full engine without hardware.
package emu

import (
	"errors"
	"sync"

	"github.com/spe-net/adin2111/core/logging"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/regmap"
)

var logger = logging.New("emu")

// ErrInjectedFault is returned from Transact while fault injection is armed.
var ErrInjectedFault = errors.New("injected bus fault")

// DefaultTxSpace is the initial value of the TX space register.
const DefaultTxSpace = 0x4000

// Device is an emulated dual-port switch behind the wire protocol.
// All methods are safe for concurrent use.
type Device struct {
	// Gate, when non-nil, stalls every Transact until the channel is
	// closed or receives a token. Set it before any traffic starts.
	Gate chan struct{}

	// ResetLatency is how many device status reads return not-ready
	// after a soft reset before the ready bit comes up.
	ResetLatency int

	// NeverReady keeps the ready bit low after a soft reset.
	NeverReady bool

	mu        sync.Mutex
	regs      [regmap.RegCount]uint32
	ready     bool
	pollsLeft int
	link      [ethframe.NumPorts]bool
	intRaised uint32

	rxq        [ethframe.NumPorts][][]byte
	nFIFOReads [ethframe.NumPorts]int

	tx      [][]byte
	txSpace uint32
	fails   int
}

// NewDevice creates a powered-up Device with links down.
func NewDevice() *Device {
	d := &Device{
		ready:   true,
		txSpace: DefaultTxSpace,
	}
	d.regs[regmap.RegChipID] = regmap.ChipID
	return d
}

// Transact implements regmap.Transport.
func (d *Device) Transact(tx []byte) (rx []byte, e error) {
	if d.Gate != nil {
		<-d.Gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fails > 0 {
		d.fails--
		return nil, ErrInjectedFault
	}

	read, addr, data, ok := regmap.ParseWire(tx)
	if !ok {
		return nil, errors.New("short transaction")
	}
	if int(addr) >= regmap.RegCount {
		return nil, errors.New("address out of range")
	}

	rx = make([]byte, len(tx))
	copy(rx, tx)
	if read {
		d.readAddr(addr, rx[len(tx)-len(data):])
	} else {
		d.writeAddr(addr, data)
	}
	return rx, nil
}

func (d *Device) readAddr(addr uint16, out []byte) {
	switch addr {
	case regmap.RegRx1FIFO, regmap.RegRx2FIFO:
		port := d.rxPortOf(addr)
		d.nFIFOReads[port]++
		if q := d.rxq[port]; len(q) > 0 {
			copy(out, q[0])
		}
		return
	}

	var val uint32
	switch addr {
	case regmap.RegDeviceStatus:
		val = d.deviceStatus()
	case regmap.RegIntStatus:
		val = d.intStatus()
	case regmap.RegTxSpace:
		val = d.txSpace
	case regmap.RegRx1FSize, regmap.RegRx2FSize:
		if q := d.rxq[d.rxPortOf(addr)]; len(q) > 0 {
			val = uint32(len(q[0]))
		}
	default:
		val = d.regs[addr]
	}
	if len(out) >= 4 {
		out[0], out[1], out[2], out[3] = byte(val>>24), byte(val>>16), byte(val>>8), byte(val)
	}
}

func (d *Device) writeAddr(addr uint16, data []byte) {
	switch addr {
	case regmap.RegChipID:
		return // read-only
	case regmap.RegTxFIFO:
		frame := make([]byte, len(data))
		copy(frame, data)
		d.tx = append(d.tx, frame)
		d.bumpTxStats(frame)
		return
	}

	if len(data) < 4 {
		return
	}
	val := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])

	switch addr {
	case regmap.RegResetCtl:
		if val&regmap.ResetSoft != 0 {
			d.softReset()
		}
	case regmap.RegIntStatus:
		d.clearInterrupts(val)
	default:
		d.regs[addr] = val
	}
}

func (d *Device) softReset() {
	logger.Debug("soft reset")
	for i := range d.regs {
		d.regs[i] = 0
	}
	d.regs[regmap.RegChipID] = regmap.ChipID
	d.intRaised = 0
	d.rxq = [ethframe.NumPorts][][]byte{}
	d.ready = false
	d.pollsLeft = d.ResetLatency
}

func (d *Device) deviceStatus() (val uint32) {
	if !d.ready && !d.NeverReady {
		if d.pollsLeft > 0 {
			d.pollsLeft--
		} else {
			d.ready = true
		}
	}
	if d.ready {
		val |= regmap.StatusReady
	}
	for port := 0; port < ethframe.NumPorts; port++ {
		if d.link[port] {
			val |= regmap.StatusLinkBit(port)
		}
	}
	return val
}

func (d *Device) intStatus() (val uint32) {
	val = d.intRaised
	for port := 0; port < ethframe.NumPorts; port++ {
		if len(d.rxq[port]) > 0 {
			val |= regmap.IntRxBit(port)
		}
	}
	return val
}

// clearInterrupts implements the write-1-to-clear register. Clearing an RX
// bit consumes the head frame of that port's queue; the bit stays asserted
// while further frames are pending.
func (d *Device) clearInterrupts(val uint32) {
	for port := 0; port < ethframe.NumPorts; port++ {
		if val&regmap.IntRxBit(port) != 0 && len(d.rxq[port]) > 0 {
			d.rxq[port] = d.rxq[port][1:]
		}
	}
	d.intRaised &^= val
}

func (d *Device) bumpTxStats(frame []byte) {
	if port, payload, err := ethframe.Decode(frame); err == nil {
		d.regs[regmap.PortStatReg(regmap.RegPort1TxPkts, int(port))]++
		d.regs[regmap.PortStatReg(regmap.RegPort1TxBytes, int(port))] += uint32(len(payload))
	}
}

func (d *Device) rxPortOf(addr uint16) int {
	if addr >= regmap.RegRx2FSize {
		return 1
	}
	return 0
}

// InjectFrame queues a frame for reception on a port and raises its
// ready bit.
func (d *Device) InjectFrame(port ethframe.PortID, payload []byte) error {
	wire, err := ethframe.Encode(port, payload)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxq[port] = append(d.rxq[port], wire)
	return nil
}

// InjectRaw queues raw FIFO bytes, bypassing frame encoding.
// Tests use it to present malformed or oversized frames.
func (d *Device) InjectRaw(port ethframe.PortID, wire []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxq[port] = append(d.rxq[port], wire)
}

// TxFrames returns the raw frames written to the TX FIFO so far.
func (d *Device) TxFrames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.tx))
	copy(out, d.tx)
	return out
}

// FIFOReads returns how many RX FIFO data reads a port has seen.
func (d *Device) FIFOReads(port ethframe.PortID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nFIFOReads[port]
}

// Reg returns the raw value of a register, for assertions.
func (d *Device) Reg(addr uint16) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[addr]
}

// SetLink sets the link state of a port.
func (d *Device) SetLink(port ethframe.PortID, up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.link[port] = up
}

// SetTxSpace overrides the TX space register value.
func (d *Device) SetTxSpace(space uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txSpace = space
}

// FailNext makes the next n transactions fail with ErrInjectedFault.
func (d *Device) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails = n
}
