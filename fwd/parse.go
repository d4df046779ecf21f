package fwd

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotEthernet indicates a payload that does not parse as an Ethernet frame.
var ErrNotEthernet = errors.New("payload is not an Ethernet frame")

// AddrExtractor pulls source and destination MAC addresses out of frame payloads.
// It reuses decoding state and is not safe for concurrent use.
type AddrExtractor struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	eth     layers.Ethernet
}

// NewAddrExtractor creates an AddrExtractor.
func NewAddrExtractor() *AddrExtractor {
	var x AddrExtractor
	x.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &x.eth)
	x.parser.IgnoreUnsupported = true
	return &x
}

// Extract parses the Ethernet header of payload.
func (x *AddrExtractor) Extract(payload []byte) (src, dst net.HardwareAddr, e error) {
	if e = x.parser.DecodeLayers(payload, &x.decoded); e != nil {
		return nil, nil, e
	}
	for _, layerType := range x.decoded {
		if layerType == layers.LayerTypeEthernet {
			return x.eth.SrcMAC, x.eth.DstMAC, nil
		}
	}
	return nil, nil, ErrNotEthernet
}
