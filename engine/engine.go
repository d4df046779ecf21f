// Package engine implements the dual-port switch engine: device lifecycle,
// configuration, the TX/RX packet pipelines, and per-port counters.
//
// An Engine owns a register file Client, a MAC learning table, and a TX ring.
// Blocking bus transactions happen only on the TX worker goroutine and inside
// Poll; the Transmit fast path never touches the Transport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spe-net/adin2111/core/events"
	"github.com/spe-net/adin2111/core/logging"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/fwd"
	"github.com/spe-net/adin2111/mactable"
	"github.com/spe-net/adin2111/regmap"
	"go.uber.org/zap"
)

var logger = logging.New("engine")

// Error conditions.
var (
	// ErrBusy indicates the TX ring is full. The caller decides retry/drop
	// policy and may wait for the TX-ready event.
	ErrBusy = errors.New("TX queue full")

	// ErrNotReady indicates an operation that requires the Ready state.
	ErrNotReady = errors.New("device not ready")

	// ErrResetTimeout indicates the device did not report ready within the
	// reset timeout. The engine is Faulted afterwards.
	ErrResetTimeout = errors.New("reset timeout")

	// ErrBadTarget indicates a Transmit destination that is neither a valid
	// port nor DstFlood.
	ErrBadTarget = errors.New("invalid target port")
)

// FrameSink receives frames from the RX pipeline.
// It is invoked on the Poll caller's context, exactly once per frame.
type FrameSink func(port ethframe.PortID, frame ethframe.Frame)

// Engine drives one device instance. Multiple devices are multiple
// independent Engines; there is no shared state between instances.
type Engine struct {
	client  *regmap.Client
	sink    FrameSink
	emitter *events.Emitter
	logger  *zap.Logger

	state atomic.Int32

	cfg    Config
	pol    fwd.Policy
	table  *mactable.Table
	xtract *fwd.AddrExtractor

	opts Options
	ring txRing

	running atomic.Bool
	txKick  chan struct{}
	txStop  chan struct{}
	txDone  chan struct{}
	stopErr error

	txBusy [ethframe.NumPorts]atomic.Bool
	linkUp [ethframe.NumPorts]atomic.Bool
	cnt    [ethframe.NumPorts]portCounters
}

// New creates an Engine in the Uninitialized state.
// sink may be nil if received frames are not wanted.
func New(tr regmap.Transport, opts Options, sink FrameSink) *Engine {
	opts.applyDefaults()
	e := &Engine{
		client:  regmap.NewClient(tr),
		sink:    sink,
		emitter: events.NewEmitter(),
		logger:  logger,
		table:   mactable.New(mactable.Config{AgeTimeout: opts.AgeTimeout, Clock: opts.Clock}),
		xtract:  fwd.NewAddrExtractor(),
		opts:    opts,
	}
	e.ring.init(opts.TxQueueCapacity)
	e.state.Store(int32(StateUninitialized))
	return e
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Client returns the register file client, for diagnostics.
func (e *Engine) Client() *regmap.Client {
	return e.client
}

// Reset verifies the chip identity, triggers a soft reset, and polls the
// ready bit until the device comes up or the reset timeout expires.
// On timeout the engine transitions to the terminal Faulted state.
func (e *Engine) Reset(ctx context.Context) error {
	switch e.State() {
	case StateFaulted:
		return fmt.Errorf("%w: engine is faulted", ErrNotReady)
	case StateReady:
		if e.running.Load() {
			return fmt.Errorf("%w: stop pipelines before reset", ErrNotReady)
		}
	}

	e.state.Store(int32(StateResetting))
	if err := e.client.CheckID(); err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}
	if err := e.client.Write(regmap.RegResetCtl, regmap.ResetSoft); err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}

	deadline := time.Now().Add(e.opts.ResetTimeout)
	ticker := time.NewTicker(e.opts.ResetPollInterval)
	defer ticker.Stop()
	for {
		status, err := e.client.Read(regmap.RegDeviceStatus)
		if err == nil && status&regmap.StatusReady != 0 {
			e.table.Clear()
			e.state.Store(int32(StateConfigPending))
			e.logger.Info("device ready after reset")
			return nil
		}

		if time.Now().After(deadline) {
			e.state.Store(int32(StateFaulted))
			e.logger.Error("reset timeout", zap.Duration("timeout", e.opts.ResetTimeout))
			return ErrResetTimeout
		}
		select {
		case <-ctx.Done():
			e.state.Store(int32(StateUninitialized))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Apply writes the full configuration in a fixed register order and
// transitions to Ready: switch core first, MAC filters, port controls,
// interrupt mask last. A failed write leaves the engine in ConfigPending
// and the new configuration is not adopted. Reconfiguring a Ready engine
// requires stopped pipelines; the snapshot is never swapped while they run.
func (e *Engine) Apply(cfg Config) error {
	if st := e.State(); st != StateConfigPending && st != StateReady {
		return fmt.Errorf("%w: state %s", ErrNotReady, st)
	}
	if e.running.Load() {
		return fmt.Errorf("%w: stop pipelines before reconfiguration", ErrNotReady)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	var swcfg uint32
	if cfg.SwitchMode {
		swcfg |= regmap.SwitchEnable | regmap.SwitchLearn
	}
	if cfg.CutThrough {
		swcfg |= regmap.SwitchCutThrough
	}
	if cfg.CRCAppend {
		swcfg |= regmap.SwitchCRCAppend
	}
	if err := e.client.Write(regmap.RegSwitchConfig, swcfg); err != nil {
		return err
	}

	if err := e.applyMacFilters(cfg); err != nil {
		return err
	}

	for port := 0; port < ethframe.NumPorts; port++ {
		var ctrl uint32
		if cfg.PortEnabled[port] {
			ctrl |= regmap.PortEnable
		}
		if err := e.client.Write(regmap.PortCtrlReg(port), ctrl); err != nil {
			return err
		}
	}

	mask := uint32(regmap.IntReady | regmap.IntLink1 | regmap.IntLink2 | regmap.IntRx1 | regmap.IntRx2)
	if err := e.client.Write(regmap.RegIntMask, mask); err != nil {
		return err
	}

	e.cfg = cfg
	e.pol = cfg.policy()
	e.state.Store(int32(StateReady))
	e.logger.Info("configuration applied",
		zap.Bool("switchMode", cfg.SwitchMode),
		zap.Bool("cutThrough", cfg.CutThrough),
		zap.Bool("crcAppend", cfg.CRCAppend),
	)
	return nil
}

func (e *Engine) applyMacFilters(cfg Config) error {
	enable := uint32(0)
	for port := 0; port < ethframe.NumPorts; port++ {
		addr := cfg.MacFilter[port]
		if len(addr) == 0 {
			continue
		}
		enable |= 1 << port

		base := uint16(regmap.RegMacTableBase + port*regmap.MacTableRegsPerE)
		hi := uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
		lo := uint32(addr[4])<<24 | uint32(addr[5])<<16 | uint32(port)<<8 | 0x01
		if err := e.client.Write(base, hi); err != nil {
			return err
		}
		if err := e.client.Write(base+1, lo); err != nil {
			return err
		}
	}
	return e.client.Write(regmap.RegMacFltEnable, enable)
}

// SetLoopback turns PHY loopback of a port on or off. Unlike Apply it is a
// single read-modify-write of the port control register and may run while
// the pipelines are active.
func (e *Engine) SetLoopback(port ethframe.PortID, on bool) error {
	if !port.Valid() {
		return fmt.Errorf("%w: %d", ErrBadTarget, port)
	}
	if st := e.State(); st != StateReady {
		return fmt.Errorf("%w: state %s", ErrNotReady, st)
	}
	if on {
		return e.client.SetBits(regmap.PortCtrlReg(int(port)), regmap.PortLoopback)
	}
	return e.client.ClearBits(regmap.PortCtrlReg(int(port)), regmap.PortLoopback)
}

// Start launches the TX worker. The engine must be Ready.
func (e *Engine) Start() error {
	if e.State() != StateReady {
		return fmt.Errorf("%w: state %s", ErrNotReady, e.State())
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}

	e.txKick = make(chan struct{}, 1)
	e.txStop = make(chan struct{})
	e.txDone = make(chan struct{})
	e.stopErr = nil
	go e.txLoop()
	e.logger.Info("pipelines started")
	return nil
}

// Stop drains the TX ring and stops the worker. Every queued frame is either
// transmitted or dropped with an error count; drain failures are aggregated
// into the returned error. Poll returns ErrNotReady after Stop.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	close(e.txStop)
	<-e.txDone
	e.logger.Info("pipelines stopped")
	return e.stopErr
}

// Table returns the MAC learning table. It must only be touched from the
// Poll context or while polling is stopped.
func (e *Engine) Table() *mactable.Table {
	return e.table
}

// AgeSweep runs a maintenance sweep of the MAC table.
// Like Poll, it must not run concurrently with Poll.
func (e *Engine) AgeSweep() int {
	return e.table.AgeSweep(e.opts.Clock())
}

// Events.
const (
	evtTxReady    = "TxReady"
	evtLinkChange = "LinkChange"
)

// OnTxReady registers a callback invoked after backpressure releases: the
// port previously rejected with ErrBusy may submit again. Fired from the TX
// worker goroutine, exactly once per Busy episode.
func (e *Engine) OnTxReady(cb func(port ethframe.PortID)) (cancel func()) {
	return e.emitter.On(evtTxReady, cb)
}

// OnLinkChange registers a callback invoked from PollLink on link edges.
func (e *Engine) OnLinkChange(cb func(port ethframe.PortID, up bool)) (cancel func()) {
	return e.emitter.On(evtLinkChange, cb)
}

// LinkUp returns the last observed link state of a port.
func (e *Engine) LinkUp(port ethframe.PortID) bool {
	return port.Valid() && e.linkUp[port].Load()
}
