// Package fwd decides egress ports for frames traversing the switch core.
//
// The decision function is pure with respect to I/O: it consults the MAC
// learning table and the switch policy, and returns a TargetSet. Learning
// the source address is a side effect applied by Process before deciding.
// Cut-through versus store-and-forward changes only when a frame becomes
// eligible for forwarding, never the decision itself.
package fwd

import (
	"net"

	"github.com/spe-net/adin2111/core/logging"
	"github.com/spe-net/adin2111/core/macaddr"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/mactable"
	"go.uber.org/zap"
)

var logger = logging.New("fwd")

// Policy is the forwarding-relevant slice of the engine configuration.
type Policy struct {
	// SwitchEnabled selects switch mode; when false the device is a pair of
	// independent MACs and frames pass through to DualEgress.
	SwitchEnabled bool `json:"switchEnabled"`

	// PortEnabled indicates which ports may be chosen as egress.
	PortEnabled [ethframe.NumPorts]bool `json:"portEnabled"`

	// DualEgress is the configured egress port in dual-MAC mode.
	DualEgress ethframe.PortID `json:"dualEgress"`
}

func (pol Policy) flood(src ethframe.PortID) (ts ethframe.TargetSet) {
	for port := ethframe.PortID(0); port < ethframe.NumPorts; port++ {
		if port != src && pol.PortEnabled[port] {
			ts = ts.Add(port)
		}
	}
	return ts
}

// Decide chooses the egress port set for a frame with destination dst
// received on src. It does not learn; see Process.
func Decide(dst net.HardwareAddr, src ethframe.PortID, pol Policy, tbl *mactable.Table) ethframe.TargetSet {
	if !pol.SwitchEnabled {
		if pol.DualEgress.Valid() && pol.PortEnabled[pol.DualEgress] {
			return ethframe.MakeTargetSet(pol.DualEgress)
		}
		return 0
	}

	if macaddr.IsMulticast(dst) || !macaddr.IsValid(dst) {
		return pol.flood(src)
	}

	port, ok := tbl.Lookup(dst)
	if !ok {
		// unknown unicast
		return pol.flood(src)
	}
	if port == src {
		// destination is on the ingress segment
		return 0
	}
	if !pol.PortEnabled[port] {
		return 0
	}
	return ethframe.MakeTargetSet(port)
}

// Process learns the source address of a received frame and decides its
// egress ports. It must run on the table's maintenance context.
func Process(srcAddr, dstAddr net.HardwareAddr, src ethframe.PortID, pol Policy, tbl *mactable.Table) ethframe.TargetSet {
	if pol.SwitchEnabled {
		tbl.Learn(srcAddr, src)
	}
	ts := Decide(dstAddr, src, pol, tbl)
	logger.Debug("decide",
		zap.Stringer("src", src),
		zap.String("dst", dstAddr.String()),
		zap.Uint8("targets", uint8(ts)),
	)
	return ts
}
