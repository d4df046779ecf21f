package regmap

// RegCount is the size of the register address space (1024 32-bit registers).
const RegCount = 0x0400

// ChipID is the value of the chip identification register.
const ChipID = 0x2111

// System control registers (0x0000 - 0x001F).
const (
	RegChipID       = 0x0000 // chip ID (RO)
	RegScratch      = 0x0001 // scratchpad
	RegResetCtl     = 0x0002 // reset control
	RegDeviceStatus = 0x0003 // device status
	RegIntStatus    = 0x0004 // interrupt status (W1C)
	RegIntMask      = 0x0005 // interrupt mask
)

// Switch core configuration (0x0040 - 0x007F).
const (
	RegSwitchConfig  = 0x0040 // switch configuration
	RegMacFltEnable  = 0x0041 // MAC filtering enable
	RegSwitchStatus  = 0x0042 // switch status
	RegFwdTablePtr   = 0x0043 // forwarding table pointer
	RegMacTableBase  = 0x0044 // MAC filter table base
	MacTableEntries  = 16     // MAC filter table size
	MacTableRegsPerE = 2      // registers per MAC filter entry
)

// Per-port control, status, and statistics blocks.
const (
	RegPort1Ctrl    = 0x0080
	RegPort1Status  = 0x0081
	RegPort1RxPkts  = 0x0083
	RegPort1TxPkts  = 0x0084
	RegPort1RxBytes = 0x0085
	RegPort1TxBytes = 0x0086
	RegPort1RxErrs  = 0x0087
	RegPort1TxErrs  = 0x0088

	RegPort2Ctrl    = 0x00A0
	RegPort2Status  = 0x00A1
	RegPort2RxPkts  = 0x00A3
	RegPort2TxPkts  = 0x00A4
	RegPort2RxBytes = 0x00A5
	RegPort2TxBytes = 0x00A6
	RegPort2RxErrs  = 0x00A7
	RegPort2TxErrs  = 0x00A8

	portBlockStride = RegPort2Ctrl - RegPort1Ctrl
)

// PortCtrlReg returns the control register address of a port (0 or 1).
func PortCtrlReg(port int) uint16 {
	return RegPort1Ctrl + uint16(port)*portBlockStride
}

// PortStatusReg returns the status register address of a port.
func PortStatusReg(port int) uint16 {
	return RegPort1Status + uint16(port)*portBlockStride
}

// PortStatReg returns one of the statistic counter registers of a port.
// base must be one of the RegPort1Rx*/Tx* constants.
func PortStatReg(base uint16, port int) uint16 {
	return base + uint16(port)*portBlockStride
}

// TX FIFO window (0x0200 - 0x02FF).
const (
	RegTxFSize = 0x0200 // TX frame size
	RegTxFIFO  = 0x0201 // TX FIFO data (streaming)
	RegTxSpace = 0x0202 // available TX buffer space in bytes
)

// RX FIFO windows (0x0300 - 0x03FF).
const (
	RegRx1FSize = 0x0300 // port 1 RX frame size
	RegRx1FIFO  = 0x0301 // port 1 RX FIFO data (streaming)
	RegRx2FSize = 0x0320 // port 2 RX frame size
	RegRx2FIFO  = 0x0321 // port 2 RX FIFO data (streaming)

	rxWindowStride = RegRx2FSize - RegRx1FSize
)

// RxFSizeReg returns the RX frame size register address of a port.
func RxFSizeReg(port int) uint16 {
	return RegRx1FSize + uint16(port)*rxWindowStride
}

// RxFIFOReg returns the RX FIFO data register address of a port.
func RxFIFOReg(port int) uint16 {
	return RegRx1FIFO + uint16(port)*rxWindowStride
}

// Reset control bits.
const (
	ResetSoft = 0x00000001
	ResetPHY1 = 0x00000002
	ResetPHY2 = 0x00000004
	ResetMAC  = 0x00000008
)

// Device status bits.
const (
	StatusReady   = 0x00000001
	StatusLink1Up = 0x00000002
	StatusLink2Up = 0x00000004
	StatusBusErr  = 0x00000008
)

// Interrupt status/mask bits.
const (
	IntReady   = 0x00000001
	IntLink1   = 0x00000002
	IntLink2   = 0x00000004
	IntRx1     = 0x00000008
	IntRx2     = 0x00000010
	IntTx1Done = 0x00000020
	IntTx2Done = 0x00000040
	IntBusErr  = 0x00000080
)

// IntRxBit returns the RX-ready interrupt bit of a port.
func IntRxBit(port int) uint32 {
	if port == 0 {
		return IntRx1
	}
	return IntRx2
}

// IntLinkBit returns the link-change interrupt bit of a port.
func IntLinkBit(port int) uint32 {
	if port == 0 {
		return IntLink1
	}
	return IntLink2
}

// StatusLinkBit returns the link-up device status bit of a port.
func StatusLinkBit(port int) uint32 {
	if port == 0 {
		return StatusLink1Up
	}
	return StatusLink2Up
}

// Switch configuration bits.
const (
	SwitchCutThrough = 0x00000001
	SwitchEnable     = 0x00000010
	SwitchLearn      = 0x00000020
	SwitchCRCAppend  = 0x00000040
)

// Port control bits.
const (
	PortEnable   = 0x00000001
	PortLoopback = 0x00000002
	PortTestMode = 0x00000004
)
