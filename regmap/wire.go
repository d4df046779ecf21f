package regmap

import "encoding/binary"

// Wire protocol: every transaction starts with a command byte and a 16-bit
// big-endian address, followed by data bytes. Register transactions carry
// exactly four data bytes; FIFO transactions stream an arbitrary count.
const (
	CmdRead  = 0x80 // command bit7: read transaction
	CmdWrite = 0x01 // command bit0: write transaction

	wireHeaderLen = 3
	regDataLen    = 4
)

func appendWireHeader(b []byte, cmd byte, addr uint16) []byte {
	return append(b, cmd, byte(addr>>8), byte(addr))
}

// encodeRegRead builds a register read transaction.
// The device clocks the register value into the four trailing bytes.
func encodeRegRead(addr uint16) []byte {
	b := appendWireHeader(make([]byte, 0, wireHeaderLen+regDataLen), CmdRead, addr)
	return append(b, 0, 0, 0, 0)
}

// encodeRegWrite builds a register write transaction.
func encodeRegWrite(addr uint16, val uint32) []byte {
	b := appendWireHeader(make([]byte, 0, wireHeaderLen+regDataLen), CmdWrite, addr)
	return binary.BigEndian.AppendUint32(b, val)
}

// encodeFIFORead builds a FIFO read transaction for n data bytes.
func encodeFIFORead(addr uint16, n int) []byte {
	b := appendWireHeader(make([]byte, 0, wireHeaderLen+n), CmdRead, addr)
	return append(b, make([]byte, n)...)
}

// encodeFIFOWrite builds a FIFO write transaction.
func encodeFIFOWrite(addr uint16, p []byte) []byte {
	b := appendWireHeader(make([]byte, 0, wireHeaderLen+len(p)), CmdWrite, addr)
	return append(b, p...)
}

// decodeRegValue extracts the register value from a read response.
func decodeRegValue(rx []byte) (val uint32, ok bool) {
	if len(rx) < wireHeaderLen+regDataLen {
		return 0, false
	}
	return binary.BigEndian.Uint32(rx[wireHeaderLen:]), true
}

// decodeFIFOData extracts n streamed bytes from a read response.
func decodeFIFOData(rx []byte, n int) (data []byte, ok bool) {
	if len(rx) < wireHeaderLen+n {
		return nil, false
	}
	return rx[wireHeaderLen : wireHeaderLen+n], true
}

// ParseWire splits a transaction as seen by the device side.
// Exposed for Transport implementations.
func ParseWire(tx []byte) (read bool, addr uint16, data []byte, ok bool) {
	if len(tx) < wireHeaderLen {
		return false, 0, nil, false
	}
	return tx[0]&CmdRead != 0, binary.BigEndian.Uint16(tx[1:3]), tx[wireHeaderLen:], true
}
