// Package ethframe defines Ethernet frame, port, and FIFO header types for the dual-port switch.
package ethframe

import (
	"fmt"

	"github.com/spe-net/adin2111/core/macaddr"
)

// NumPorts is the number of external PHY ports.
const NumPorts = 2

// Destination address classification, for sink consumers.
var (
	IsMulticast = macaddr.IsMulticast
	IsBroadcast = macaddr.IsBroadcast
)

// PortID identifies an external PHY port.
type PortID uint8

// Port identifiers.
const (
	Port1 PortID = 0
	Port2 PortID = 1

	// DstFlood is a dst-port hint requesting delivery toward all enabled ports.
	DstFlood PortID = 0xFF
)

// Valid determines whether the PortID refers to a physical port.
func (port PortID) Valid() bool {
	return port < NumPorts
}

// Other returns the opposite port of a dual-port device.
func (port PortID) Other() PortID {
	return PortID(1 - port)
}

func (port PortID) String() string {
	if port == DstFlood {
		return "flood"
	}
	return fmt.Sprintf("port%d", int(port)+1)
}

// TargetSet is a bitmask of egress ports chosen by a forwarding decision.
type TargetSet uint8

// MakeTargetSet builds a TargetSet from port identifiers.
func MakeTargetSet(ports ...PortID) (ts TargetSet) {
	for _, port := range ports {
		ts = ts.Add(port)
	}
	return ts
}

// Add returns the set with port included.
func (ts TargetSet) Add(port PortID) TargetSet {
	if !port.Valid() {
		return ts
	}
	return ts | 1<<port
}

// Has determines whether port is in the set.
func (ts TargetSet) Has(port PortID) bool {
	return port.Valid() && ts&(1<<port) != 0
}

// Without returns the set with port excluded.
func (ts TargetSet) Without(port PortID) TargetSet {
	if !port.Valid() {
		return ts
	}
	return ts &^ (1 << port)
}

// IsEmpty determines whether the set selects no port.
func (ts TargetSet) IsEmpty() bool {
	return ts == 0
}

// Ports lists the ports in the set.
func (ts TargetSet) Ports() (list []PortID) {
	for port := PortID(0); port < NumPorts; port++ {
		if ts.Has(port) {
			list = append(list, port)
		}
	}
	return list
}

// Frame is an Ethernet frame traversing the switch engine.
//
// A Frame is immutable once submitted to a pipeline; ownership of Payload
// transfers to the pipeline on successful enqueue.
type Frame struct {
	// Payload is the Ethernet frame bytes, excluding the FIFO header.
	Payload []byte

	// SrcPort is the origin port for received frames.
	SrcPort PortID

	// Dst selects the egress port for transmitted frames, or DstFlood.
	Dst PortID
}

// Len returns the payload length.
func (f Frame) Len() int {
	return len(f.Payload)
}
