package engine

import (
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/fwd"
	"github.com/spe-net/adin2111/regmap"
	"go.uber.org/zap"
)

// Poll drains ready frames from the RX FIFOs and dispatches them to the
// frame sink. The caller invokes it whenever a ready signal fires, or
// periodically when no signal line is available. Poll must not run
// concurrently with itself or with AgeSweep.
//
// A transport failure aborts the iteration without clearing the ready bit;
// the frame is picked up again on the next Poll. Frames with untrustworthy
// sizes or malformed headers are cleared and counted without delivery.
func (e *Engine) Poll() error {
	if e.State() != StateReady || !e.running.Load() {
		return ErrNotReady
	}

	status, err := e.client.Read(regmap.RegIntStatus)
	if err != nil {
		return err
	}

	for port := ethframe.PortID(0); port < ethframe.NumPorts; port++ {
		bit := regmap.IntRxBit(int(port))
		if status&bit == 0 {
			continue
		}
		if err := e.rxPort(port, bit); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rxPort(port ethframe.PortID, readyBit uint32) error {
	cnt := &e.cnt[port]

	size, err := e.client.Read(regmap.RxFSizeReg(int(port)))
	if err != nil {
		cnt.rxErrors.Add(1)
		return err
	}
	n := int(size & 0xFFFF)
	if n < ethframe.HeaderLen || n > ethframe.MaxPayloadLen+ethframe.HeaderLen {
		// the size is untrustworthy; discard without a data read
		cnt.rxErrors.Add(1)
		e.logger.Warn("bad RX frame size", zap.Stringer("port", port), zap.Int("size", n))
		return e.clearReady(port, readyBit, cnt)
	}

	data, err := e.client.ReadFIFO(regmap.RxFIFOReg(int(port)), n)
	if err != nil {
		cnt.rxErrors.Add(1)
		return err
	}

	_, payload, err := ethframe.Decode(data)
	if err != nil {
		cnt.rxErrors.Add(1)
		e.logger.Warn("malformed RX header", zap.Stringer("port", port), zap.Error(err))
		return e.clearReady(port, readyBit, cnt)
	}

	// clearing before delivery keeps at-most-once: a clear failure drops
	// this copy and the frame is re-read on a later Poll
	if err := e.clearReady(port, readyBit, cnt); err != nil {
		return err
	}

	cnt.rxFrames.Add(1)
	cnt.rxOctets.Add(uint64(len(payload)))

	frame := ethframe.Frame{Payload: payload, SrcPort: port}
	if e.cfg.SwitchMode {
		e.forward(frame)
	}
	if e.sink != nil {
		e.sink(port, frame)
	}
	return nil
}

func (e *Engine) clearReady(port ethframe.PortID, readyBit uint32, cnt *portCounters) error {
	if err := e.client.Write(regmap.RegIntStatus, readyBit); err != nil {
		cnt.rxErrors.Add(1)
		return err
	}
	return nil
}

// forward re-emits a received frame toward the ports chosen by the
// forwarding engine, through the same TX ring as host transmissions.
func (e *Engine) forward(frame ethframe.Frame) {
	src, dst, err := e.xtract.Extract(frame.Payload)
	if err != nil {
		// not an Ethernet frame; host delivery only
		return
	}

	ts := fwd.Process(src, dst, frame.SrcPort, e.pol, e.table)
	for _, port := range ts.Ports() {
		if !e.ring.enqueue(txEntry{payload: frame.Payload, port: port}) {
			e.cnt[port].txDropped.Add(1)
			continue
		}
		e.cnt[port].txQueued.Add(1)
		e.kickTx()
	}
}

// PollLink reads the link status bits and emits link-change events on edges.
func (e *Engine) PollLink() error {
	if st := e.State(); st != StateReady && st != StateConfigPending {
		return ErrNotReady
	}

	status, err := e.client.Read(regmap.RegDeviceStatus)
	if err != nil {
		return err
	}
	for port := ethframe.PortID(0); port < ethframe.NumPorts; port++ {
		up := status&regmap.StatusLinkBit(int(port)) != 0
		if e.linkUp[port].Swap(up) != up {
			e.logger.Info("link change", zap.Stringer("port", port), zap.Bool("up", up))
			e.emitter.EmitSync(evtLinkChange, port, up)
		}
	}
	return nil
}
