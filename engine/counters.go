package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/regmap"
)

// Counters contains basic per-port counters.
type Counters struct {
	RxFrames uint64 `json:"rxFrames"` // delivered frames
	RxOctets uint64 `json:"rxOctets"` // delivered payload bytes
	RxErrors uint64 `json:"rxErrors"` // RX transport/size/header errors

	TxQueued  uint64 `json:"txQueued"`  // frames accepted into the TX ring
	TxFrames  uint64 `json:"txFrames"`  // frames written to the TX FIFO
	TxOctets  uint64 `json:"txOctets"`  // payload bytes written to the TX FIFO
	TxErrors  uint64 `json:"txErrors"`  // TX transport errors
	TxDropped uint64 `json:"txDropped"` // frames dropped before reaching the FIFO
}

func (cnt Counters) String() string {
	return fmt.Sprintf("RX %dfrm %db %derr TX %dqueued %dfrm %db %derr %ddropped",
		cnt.RxFrames, cnt.RxOctets, cnt.RxErrors,
		cnt.TxQueued, cnt.TxFrames, cnt.TxOctets, cnt.TxErrors, cnt.TxDropped)
}

// portCounters holds the mutable counters of one port. TX fields are
// incremented only by the TX worker, RX fields only by the Poll context.
type portCounters struct {
	rxFrames atomic.Uint64
	rxOctets atomic.Uint64
	rxErrors atomic.Uint64

	txQueued  atomic.Uint64
	txFrames  atomic.Uint64
	txOctets  atomic.Uint64
	txErrors  atomic.Uint64
	txDropped atomic.Uint64
}

// ReadCounters returns a snapshot of a port's counters.
func (e *Engine) ReadCounters(port ethframe.PortID) (cnt Counters) {
	if !port.Valid() {
		return cnt
	}
	c := &e.cnt[port]
	cnt.RxFrames = c.rxFrames.Load()
	cnt.RxOctets = c.rxOctets.Load()
	cnt.RxErrors = c.rxErrors.Load()
	cnt.TxQueued = c.txQueued.Load()
	cnt.TxFrames = c.txFrames.Load()
	cnt.TxOctets = c.txOctets.Load()
	cnt.TxErrors = c.txErrors.Load()
	cnt.TxDropped = c.txDropped.Load()
	return cnt
}

// HwStats contains the device-maintained per-port statistic registers.
type HwStats struct {
	RxPkts  uint32 `json:"rxPkts"`
	TxPkts  uint32 `json:"txPkts"`
	RxBytes uint32 `json:"rxBytes"`
	TxBytes uint32 `json:"txBytes"`
	RxErrs  uint32 `json:"rxErrs"`
	TxErrs  uint32 `json:"txErrs"`
}

func (st HwStats) String() string {
	return fmt.Sprintf("hw RX %dpkts %db %derr TX %dpkts %db %derr",
		st.RxPkts, st.RxBytes, st.RxErrs, st.TxPkts, st.TxBytes, st.TxErrs)
}

// ReadHardwareStats reads the statistic counter registers of a port.
func (e *Engine) ReadHardwareStats(port ethframe.PortID) (st HwStats, e2 error) {
	if !port.Valid() {
		return st, ErrBadTarget
	}
	p := int(port)
	regs := []struct {
		base uint16
		dst  *uint32
	}{
		{regmap.RegPort1RxPkts, &st.RxPkts},
		{regmap.RegPort1TxPkts, &st.TxPkts},
		{regmap.RegPort1RxBytes, &st.RxBytes},
		{regmap.RegPort1TxBytes, &st.TxBytes},
		{regmap.RegPort1RxErrs, &st.RxErrs},
		{regmap.RegPort1TxErrs, &st.TxErrs},
	}
	for _, r := range regs {
		val, err := e.client.Read(regmap.PortStatReg(r.base, p))
		if err != nil {
			return HwStats{}, err
		}
		*r.dst = val
	}
	return st, nil
}
