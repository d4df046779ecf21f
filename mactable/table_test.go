package mactable_test

import (
	"net"
	"testing"
	"time"

	"github.com/spe-net/adin2111/core/macaddr"
	"github.com/spe-net/adin2111/core/testenv"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/mactable"
)

var makeAR = testenv.MakeAR

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTable(timeout time.Duration) (*mactable.Table, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return mactable.New(mactable.Config{AgeTimeout: timeout, Clock: clock.Now}), clock
}

func TestLearnLastWriterWins(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, _ := newTable(0)

	addr := net.HardwareAddr{0x00, 0x00, 0x5E, 0x00, 0x53, 0x10}
	tbl.Learn(addr, ethframe.Port1)
	tbl.Learn(addr, ethframe.Port2)

	port, ok := tbl.Lookup(addr)
	assert.True(ok)
	assert.Equal(ethframe.Port2, port)
	assert.Equal(1, tbl.Len())
}

func TestLearnIgnoresNonUnicast(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, _ := newTable(0)

	tbl.Learn(net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, ethframe.Port1)
	tbl.Learn(macaddr.MakeRandom(true), ethframe.Port1)
	tbl.Learn(macaddr.MakeRandom(false), ethframe.DstFlood)
	assert.Zero(tbl.Len())
}

func TestLookupAging(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, clock := newTable(time.Minute)

	addr := macaddr.MakeRandom(false)
	tbl.Learn(addr, ethframe.Port1)

	clock.Advance(59 * time.Second)
	_, ok := tbl.Lookup(addr)
	assert.True(ok)

	clock.Advance(2 * time.Second)
	_, ok = tbl.Lookup(addr)
	assert.False(ok)
	assert.Zero(tbl.Len(), "stale entry is removed by the lookup")

	// refresh resets the age
	tbl.Learn(addr, ethframe.Port1)
	clock.Advance(59 * time.Second)
	tbl.Learn(addr, ethframe.Port1)
	clock.Advance(59 * time.Second)
	_, ok = tbl.Lookup(addr)
	assert.True(ok)
}

func TestAgeSweep(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, clock := newTable(time.Minute)

	for i := 0; i < 16; i++ {
		tbl.Learn(macaddr.MakeRandom(false), ethframe.Port1)
	}
	assert.Equal(16, tbl.Len())

	clock.Advance(30 * time.Second)
	keep := macaddr.MakeRandom(false)
	tbl.Learn(keep, ethframe.Port2)

	clock.Advance(45 * time.Second)
	removed := tbl.AgeSweep(clock.Now())
	assert.Equal(16, removed)
	assert.Equal(1, tbl.Len())

	assert.Zero(tbl.AgeSweep(clock.Now()), "sweep is idempotent")

	port, ok := tbl.Lookup(keep)
	assert.True(ok)
	assert.Equal(ethframe.Port2, port)
}

func TestBucketEvictsOldest(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, clock := newTable(time.Hour)

	// collect addresses hashing into one bucket, then overfill it
	base := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x00}
	var colliding []net.HardwareAddr
	want := macaddr.Hash(base) % 256
	for b := 0; len(colliding) < 6; b++ {
		addr := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, byte(b >> 8), byte(b)}
		if macaddr.Hash(addr)%256 == want {
			colliding = append(colliding, addr)
		}
	}

	for _, addr := range colliding[:4] {
		tbl.Learn(addr, ethframe.Port1)
		clock.Advance(time.Second)
	}

	// refresh the first-learned entry so the second-learned becomes oldest
	tbl.Learn(colliding[0], ethframe.Port1)
	clock.Advance(time.Second)

	tbl.Learn(colliding[4], ethframe.Port2)

	_, ok := tbl.Lookup(colliding[1])
	assert.False(ok, "oldest way is evicted")
	_, ok = tbl.Lookup(colliding[0])
	assert.True(ok, "refreshed way survives")
	_, ok = tbl.Lookup(colliding[4])
	assert.True(ok)
	assert.Equal(4, tbl.Len())
}

func TestClear(t *testing.T) {
	assert, _ := makeAR(t)
	tbl, _ := newTable(0)

	addr := macaddr.MakeRandom(false)
	tbl.Learn(addr, ethframe.Port1)
	tbl.Clear()
	assert.Zero(tbl.Len())
	_, ok := tbl.Lookup(addr)
	assert.False(ok)
}
