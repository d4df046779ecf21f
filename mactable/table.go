// Package mactable implements the MAC address learning table of the switch core.
//
// The table is a fixed array of hash buckets with a small set of ways per
// bucket. Learning upserts in O(1); a full bucket evicts its least recently
// seen way so that lookup cost stays bounded. Entries age out lazily on
// lookup and eagerly during a sweep.
//
// The table is not internally locked. Learn, Lookup, and AgeSweep must run
// on a single maintenance context (the RX poll path), or be serialized by
// the caller.
package mactable

import (
	"net"
	"time"

	"github.com/spe-net/adin2111/core/logging"
	"github.com/spe-net/adin2111/core/macaddr"
	"github.com/spe-net/adin2111/ethframe"
	"go.uber.org/zap"
)

var logger = logging.New("mactable")

// Table geometry and defaults.
const (
	NumBuckets = 256
	BucketWays = 4

	// DefaultAgeTimeout is how long a learned address stays valid without
	// being observed again.
	DefaultAgeTimeout = 5 * time.Minute
)

// Config contains Table configuration.
type Config struct {
	// AgeTimeout overrides DefaultAgeTimeout.
	AgeTimeout time.Duration `json:"ageTimeout,omitempty"`

	// Clock overrides the time source. Tests use a fake clock.
	Clock func() time.Time `json:"-"`
}

func (cfg *Config) applyDefaults() {
	if cfg.AgeTimeout <= 0 {
		cfg.AgeTimeout = DefaultAgeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
}

type entry struct {
	addr  [6]byte
	port  ethframe.PortID
	seen  time.Time
	valid bool
}

// Table is a MAC address learning table.
type Table struct {
	buckets [NumBuckets][BucketWays]entry
	timeout time.Duration
	clock   func() time.Time
	nValid  int
}

// New creates a Table.
func New(cfg Config) *Table {
	cfg.applyDefaults()
	return &Table{
		timeout: cfg.AgeTimeout,
		clock:   cfg.Clock,
	}
}

func (t *Table) bucket(addr net.HardwareAddr) *[BucketWays]entry {
	return &t.buckets[macaddr.Hash(addr)%NumBuckets]
}

// Learn records or refreshes an address observed on a port.
// At most one valid entry exists per address; the last writer wins.
func (t *Table) Learn(addr net.HardwareAddr, port ethframe.PortID) {
	if !macaddr.IsUnicast(addr) || !port.Valid() {
		return
	}

	now := t.clock()
	b := t.bucket(addr)

	victim := -1
	for i := range b {
		w := &b[i]
		if w.valid && macaddr.Equal(w.addr[:], addr) {
			w.port = port
			w.seen = now
			return
		}
		if !w.valid {
			if victim < 0 || b[victim].valid {
				victim = i
			}
			continue
		}
		if victim < 0 || (b[victim].valid && w.seen.Before(b[victim].seen)) {
			victim = i
		}
	}

	w := &b[victim]
	if w.valid {
		logger.Debug("evicting bucket way",
			zap.String("addr", net.HardwareAddr(w.addr[:]).String()),
		)
		t.nValid--
	}
	copy(w.addr[:], addr)
	w.port = port
	w.seen = now
	w.valid = true
	t.nValid++
}

// Lookup returns the port an address was learned on.
// A stale entry is removed during the lookup, so Lookup mutates the table.
func (t *Table) Lookup(addr net.HardwareAddr) (port ethframe.PortID, ok bool) {
	if !macaddr.IsValid(addr) {
		return 0, false
	}

	b := t.bucket(addr)
	for i := range b {
		w := &b[i]
		if !w.valid || !macaddr.Equal(w.addr[:], addr) {
			continue
		}
		if t.clock().Sub(w.seen) > t.timeout {
			w.valid = false
			t.nValid--
			return 0, false
		}
		return w.port, true
	}
	return 0, false
}

// AgeSweep removes every entry not seen since now minus the age timeout.
// It is idempotent and may run opportunistically on the maintenance context.
func (t *Table) AgeSweep(now time.Time) (removed int) {
	for bi := range t.buckets {
		for wi := range t.buckets[bi] {
			w := &t.buckets[bi][wi]
			if w.valid && now.Sub(w.seen) > t.timeout {
				w.valid = false
				t.nValid--
				removed++
			}
		}
	}
	return removed
}

// Clear removes all entries.
func (t *Table) Clear() {
	t.buckets = [NumBuckets][BucketWays]entry{}
	t.nValid = 0
}

// Len returns the number of valid entries.
func (t *Table) Len() int {
	return t.nValid
}
