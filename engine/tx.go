package engine

import (
	"fmt"

	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/regmap"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Transmit submits a frame for transmission. It completes in bounded time
// and never invokes the Transport; the frame is handed to the TX worker
// through the ring. Ownership of frame.Payload transfers to the engine on
// success. A full ring yields ErrBusy and the caller is notified through
// OnTxReady once occupancy drops below the low-water mark.
func (e *Engine) Transmit(frame ethframe.Frame) error {
	if e.State() != StateReady || !e.running.Load() {
		return ErrNotReady
	}
	if n := frame.Len(); n < 1 || n > ethframe.MaxPayloadLen {
		e.countTxDropped(frame.Dst)
		return fmt.Errorf("%w: %d", ethframe.ErrLengthRange, n)
	}

	var entries []txEntry
	switch {
	case frame.Dst == ethframe.DstFlood:
		for port := ethframe.PortID(0); port < ethframe.NumPorts; port++ {
			if e.cfg.PortEnabled[port] {
				entries = append(entries, txEntry{payload: frame.Payload, port: port})
			}
		}
	case frame.Dst.Valid():
		entries = []txEntry{{payload: frame.Payload, port: frame.Dst}}
	default:
		return fmt.Errorf("%w: %d", ErrBadTarget, frame.Dst)
	}
	if len(entries) == 0 {
		e.countTxDropped(frame.Dst)
		return fmt.Errorf("%w: no enabled egress port", ErrBadTarget)
	}

	if !e.ring.enqueue(entries...) {
		for _, ent := range entries {
			e.txBusy[ent.port].Store(true)
		}
		return ErrBusy
	}
	for _, ent := range entries {
		e.cnt[ent.port].txQueued.Add(1)
	}
	e.kickTx()
	return nil
}

func (e *Engine) countTxDropped(dst ethframe.PortID) {
	if dst.Valid() {
		e.cnt[dst].txDropped.Add(1)
	}
}

func (e *Engine) kickTx() {
	select {
	case e.txKick <- struct{}{}:
	default:
	}
}

func (e *Engine) txLoop() {
	defer close(e.txDone)
	for {
		select {
		case <-e.txStop:
			e.stopErr = e.drainTx()
			return
		case <-e.txKick:
			e.drainTx()
		}
	}
}

// drainTx consumes the ring in FIFO order. The consumer index advances only
// after the frame's transactions finish, so a stopping engine accounts for
// every queued frame.
func (e *Engine) drainTx() (errs error) {
	for {
		ent, ok := e.ring.peek()
		if !ok {
			return errs
		}
		errs = multierr.Append(errs, e.sendFrame(ent))
		e.ring.advance()
		e.maybeTxReady()
	}
}

// sendFrame writes one frame into the TX FIFO: frame-size register first,
// then the FIFO data. A transport failure drops the frame without retry;
// resending after an error risks duplicate delivery.
func (e *Engine) sendFrame(ent txEntry) error {
	cnt := &e.cnt[ent.port]

	wire, err := ethframe.Encode(ent.port, ent.payload)
	if err != nil {
		cnt.txDropped.Add(1)
		return err
	}

	space, err := e.client.Read(regmap.RegTxSpace)
	if err != nil {
		cnt.txErrors.Add(1)
		return err
	}
	if uint64(space) < uint64(len(wire)) {
		cnt.txDropped.Add(1)
		e.logger.Warn("TX FIFO out of space",
			zap.Stringer("port", ent.port),
			zap.Uint32("space", space),
			zap.Int("need", len(wire)),
		)
		return nil
	}

	if err := e.client.Write(regmap.RegTxFSize, uint32(len(wire))); err != nil {
		cnt.txErrors.Add(1)
		return err
	}
	if err := e.client.WriteFIFO(regmap.RegTxFIFO, wire); err != nil {
		cnt.txErrors.Add(1)
		return err
	}

	cnt.txFrames.Add(1)
	cnt.txOctets.Add(uint64(len(ent.payload)))
	return nil
}

// maybeTxReady raises the backpressure-release event once per Busy episode
// after occupancy falls to the low-water mark.
func (e *Engine) maybeTxReady() {
	if e.ring.occupancy() > e.ring.lowWater {
		return
	}
	for port := ethframe.PortID(0); port < ethframe.NumPorts; port++ {
		if e.txBusy[port].CompareAndSwap(true, false) {
			e.emitter.EmitSync(evtTxReady, port)
		}
	}
}
