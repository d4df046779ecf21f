package engine

import (
	"fmt"
	"net"
	"time"

	binutils "github.com/jfoster/binary-utilities"
	"github.com/pkg/math"
	"github.com/spe-net/adin2111/core/macaddr"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/fwd"
)

// TX queue limits and defaults.
const (
	MinTxQueueCapacity     = 4
	MaxTxQueueCapacity     = 4096
	DefaultTxQueueCapacity = 256
)

// AlignTxQueueCapacity adjusts TX queue capacity to a power of two between
// minimum and maximum. Default capacity is used if input is zero.
func AlignTxQueueCapacity(capacity int) int {
	if capacity <= 0 {
		capacity = DefaultTxQueueCapacity
	} else {
		capacity = int(binutils.NextPowerOfTwo(int64(capacity)))
	}
	return math.MinInt(math.MaxInt(MinTxQueueCapacity, capacity), MaxTxQueueCapacity)
}

// Options contains construction-time engine settings.
type Options struct {
	// TxQueueCapacity is the TX ring size, aligned to a power of two.
	// The default is DefaultTxQueueCapacity.
	TxQueueCapacity int `json:"txQueueCapacity,omitempty"`

	// ResetTimeout bounds the reset ready-bit poll.
	// The default is 50ms.
	ResetTimeout time.Duration `json:"resetTimeout,omitempty"`

	// ResetPollInterval is the ready-bit poll period.
	// The default is 1ms.
	ResetPollInterval time.Duration `json:"resetPollInterval,omitempty"`

	// AgeTimeout is the MAC table aging interval.
	// The default is mactable.DefaultAgeTimeout.
	AgeTimeout time.Duration `json:"ageTimeout,omitempty"`

	// Clock overrides the time source. Tests use a fake clock.
	Clock func() time.Time `json:"-"`
}

func (opts *Options) applyDefaults() {
	opts.TxQueueCapacity = AlignTxQueueCapacity(opts.TxQueueCapacity)
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 50 * time.Millisecond
	}
	if opts.ResetPollInterval <= 0 {
		opts.ResetPollInterval = time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
}

// Config is the device configuration snapshot written by Apply.
// It is immutable once applied and never partially visible to the pipelines.
type Config struct {
	// SwitchMode enables hardware switching between the two ports.
	// When false the device operates as two independent MACs.
	SwitchMode bool `json:"switchMode"`

	// CutThrough forwards frames before full receipt. Latency policy only;
	// forwarding decisions are identical either way.
	CutThrough bool `json:"cutThrough"`

	// CRCAppend makes the MAC append the frame check sequence on egress.
	CRCAppend bool `json:"crcAppend"`

	// PortEnabled selects which ports pass traffic.
	PortEnabled [ethframe.NumPorts]bool `json:"portEnabled"`

	// DualEgress is the egress port used for host frames in dual-MAC mode.
	DualEgress ethframe.PortID `json:"dualEgress,omitempty"`

	// MacFilter optionally loads a per-port MAC address filter register.
	MacFilter [ethframe.NumPorts]net.HardwareAddr `json:"macFilter,omitempty"`
}

func (cfg Config) validate() error {
	if !cfg.SwitchMode && !cfg.DualEgress.Valid() {
		return fmt.Errorf("%w: dual-MAC mode needs an egress port", ErrBadTarget)
	}
	for port, addr := range cfg.MacFilter {
		if len(addr) != 0 && !macaddr.IsUnicast(addr) {
			return fmt.Errorf("MAC filter for port %d is not a unicast address", port+1)
		}
	}
	return nil
}

func (cfg Config) policy() fwd.Policy {
	return fwd.Policy{
		SwitchEnabled: cfg.SwitchMode,
		PortEnabled:   cfg.PortEnabled,
		DualEgress:    cfg.DualEgress,
	}
}
