package engine_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/spe-net/adin2111/core/testenv"
	"github.com/spe-net/adin2111/emu"
	"github.com/spe-net/adin2111/engine"
	"github.com/spe-net/adin2111/ethframe"
	"github.com/spe-net/adin2111/regmap"
)

var makeAR = testenv.MakeAR

func switchConfig() engine.Config {
	return engine.Config{
		SwitchMode:  true,
		PortEnabled: [ethframe.NumPorts]bool{true, true},
	}
}

// bringUp resets, configures, and starts an engine over a fresh device.
func bringUp(t *testing.T, d *emu.Device, opts engine.Options, cfg engine.Config, sink engine.FrameSink) *engine.Engine {
	_, require := makeAR(t)
	e := engine.New(d, opts, sink)
	require.NoError(e.Reset(context.TODO()))
	require.Equal(engine.StateConfigPending, e.State())
	require.NoError(e.Apply(cfg))
	require.Equal(engine.StateReady, e.State())
	require.NoError(e.Start())
	return e
}

func randPayload(n int) []byte {
	p := make([]byte, n)
	testenv.RandBytes(p)
	return p
}

// ethPayload builds an Ethernet frame with a trailing filler payload.
func ethPayload(src, dst net.HardwareAddr, n int) []byte {
	buf := gopacket.NewSerializeBuffer()
	gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeIPv4},
		gopacket.Payload(bytes.Repeat([]byte{0x2A}, n)),
	)
	return buf.Bytes()
}

func TestLifecycle(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	d.ResetLatency = 2

	e := engine.New(d, engine.Options{}, nil)
	assert.Equal(engine.StateUninitialized, e.State())
	assert.ErrorIs(e.Transmit(ethframe.Frame{Payload: []byte{1}, Dst: ethframe.Port1}), engine.ErrNotReady)
	assert.ErrorIs(e.Apply(switchConfig()), engine.ErrNotReady)

	require.NoError(e.Reset(context.TODO()))
	require.NoError(e.Apply(switchConfig()))
	assert.NotZero(d.Reg(regmap.RegSwitchConfig) & regmap.SwitchEnable)
	assert.NotZero(d.Reg(regmap.RegSwitchConfig) & regmap.SwitchLearn)
	assert.NotZero(d.Reg(regmap.PortCtrlReg(0)) & regmap.PortEnable)
	assert.NotZero(d.Reg(regmap.PortCtrlReg(1)) & regmap.PortEnable)
	require.NoError(e.Start())

	payload := randPayload(100)
	require.NoError(e.Transmit(ethframe.Frame{Payload: payload, Dst: ethframe.Port2}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)

	port, got, err := ethframe.Decode(d.TxFrames()[0])
	require.NoError(err)
	assert.Equal(ethframe.Port2, port)
	assert.Equal(payload, got)

	require.NoError(e.Stop())
	cnt := e.ReadCounters(ethframe.Port2)
	assert.EqualValues(1, cnt.TxQueued)
	assert.EqualValues(1, cnt.TxFrames)
	assert.EqualValues(len(payload), cnt.TxOctets)
	assert.ErrorIs(e.Poll(), engine.ErrNotReady)
}

func TestResetTimeout(t *testing.T) {
	assert, _ := makeAR(t)
	d := emu.NewDevice()
	d.NeverReady = true

	e := engine.New(d, engine.Options{
		ResetTimeout:      10 * time.Millisecond,
		ResetPollInterval: time.Millisecond,
	}, nil)
	assert.ErrorIs(e.Reset(context.TODO()), engine.ErrResetTimeout)
	assert.Equal(engine.StateFaulted, e.State())

	assert.ErrorIs(e.Reset(context.TODO()), engine.ErrNotReady)
	assert.ErrorIs(e.Apply(switchConfig()), engine.ErrNotReady)
}

func TestTransmitValidation(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	cfg := switchConfig()
	cfg.PortEnabled[ethframe.Port2] = false
	e := bringUp(t, d, engine.Options{}, cfg, nil)
	defer e.Stop()

	assert.ErrorIs(e.Transmit(ethframe.Frame{Payload: randPayload(ethframe.MaxPayloadLen + 1), Dst: ethframe.Port1}),
		ethframe.ErrLengthRange)
	assert.ErrorIs(e.Transmit(ethframe.Frame{Dst: ethframe.Port1}), ethframe.ErrLengthRange)
	assert.ErrorIs(e.Transmit(ethframe.Frame{Payload: []byte{1}, Dst: 7}), engine.ErrBadTarget)
	assert.EqualValues(2, e.ReadCounters(ethframe.Port1).TxDropped)

	// flood reaches only the enabled port
	payload := randPayload(64)
	require.NoError(e.Transmit(ethframe.Frame{Payload: payload, Dst: ethframe.DstFlood}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)
	port, _, err := ethframe.Decode(d.TxFrames()[0])
	require.NoError(err)
	assert.Equal(ethframe.Port1, port)
}

func TestBackpressure(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{TxQueueCapacity: 4}, switchConfig(), nil)
	defer e.Stop()

	ready := make(chan ethframe.PortID, 8)
	cancel := e.OnTxReady(func(port ethframe.PortID) { ready <- port })
	defer cancel()

	gate := make(chan struct{})
	d.Gate = gate
	for i := 0; i < 4; i++ {
		require.NoError(e.Transmit(ethframe.Frame{Payload: randPayload(64), Dst: ethframe.Port1}))
	}
	require.ErrorIs(e.Transmit(ethframe.Frame{Payload: randPayload(64), Dst: ethframe.Port1}), engine.ErrBusy)

	close(gate)
	require.Eventually(func() bool { return len(d.TxFrames()) == 4 }, time.Second, time.Millisecond)

	select {
	case port := <-ready:
		assert.Equal(ethframe.Port1, port)
	case <-time.After(time.Second):
		require.Fail("no TX-ready notification")
	}
	select {
	case <-ready:
		require.Fail("duplicate TX-ready notification")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(e.Transmit(ethframe.Frame{Payload: randPayload(64), Dst: ethframe.Port1}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 5 }, time.Second, time.Millisecond)
}

func TestApplyRequiresStoppedPipelines(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{}, switchConfig(), nil)

	assert.ErrorIs(e.Apply(switchConfig()), engine.ErrNotReady)

	require.NoError(e.Stop())
	cfg := switchConfig()
	cfg.CutThrough = true
	require.NoError(e.Apply(cfg))
	assert.NotZero(d.Reg(regmap.RegSwitchConfig) & regmap.SwitchCutThrough)

	require.NoError(e.Start())
	defer e.Stop()
	payload := randPayload(64)
	require.NoError(e.Transmit(ethframe.Frame{Payload: payload, Dst: ethframe.Port1}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)
}

func TestTxTransportFault(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{}, switchConfig(), nil)
	defer e.Stop()

	d.FailNext(1)
	require.NoError(e.Transmit(ethframe.Frame{Payload: randPayload(64), Dst: ethframe.Port1}))
	require.Eventually(func() bool { return e.ReadCounters(ethframe.Port1).TxErrors == 1 },
		time.Second, time.Millisecond)
	assert.Empty(d.TxFrames())

	// the faulted frame is dropped, not retried; a later frame goes through
	payload := randPayload(64)
	require.NoError(e.Transmit(ethframe.Frame{Payload: payload, Dst: ethframe.Port1}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)
	_, got, err := ethframe.Decode(d.TxFrames()[0])
	require.NoError(err)
	assert.Equal(payload, got)

	cnt := e.ReadCounters(ethframe.Port1)
	assert.EqualValues(2, cnt.TxQueued)
	assert.EqualValues(1, cnt.TxFrames)
	assert.EqualValues(1, cnt.TxErrors)
}

func TestSetLoopback(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{}, switchConfig(), nil)
	defer e.Stop()

	require.NoError(e.SetLoopback(ethframe.Port1, true))
	ctrl := d.Reg(regmap.PortCtrlReg(0))
	assert.NotZero(ctrl & regmap.PortLoopback)
	assert.NotZero(ctrl & regmap.PortEnable)

	require.NoError(e.SetLoopback(ethframe.Port1, false))
	ctrl = d.Reg(regmap.PortCtrlReg(0))
	assert.Zero(ctrl & regmap.PortLoopback)
	assert.NotZero(ctrl & regmap.PortEnable)

	assert.ErrorIs(e.SetLoopback(7, true), engine.ErrBadTarget)
}

func TestRxDualMac(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	var frames []ethframe.Frame
	sink := func(port ethframe.PortID, frame ethframe.Frame) { frames = append(frames, frame) }

	cfg := engine.Config{
		PortEnabled: [ethframe.NumPorts]bool{true, true},
		DualEgress:  ethframe.Port1,
	}
	e := bringUp(t, d, engine.Options{}, cfg, sink)
	defer e.Stop()

	payload := randPayload(80)
	require.NoError(d.InjectFrame(ethframe.Port2, payload))
	require.NoError(e.Poll())
	require.Len(frames, 1)
	assert.Equal(ethframe.Port2, frames[0].SrcPort)
	assert.Equal(payload, frames[0].Payload)

	// frame consumed; nothing is re-forwarded in dual-MAC mode
	require.NoError(e.Poll())
	assert.Len(frames, 1)
	assert.Empty(d.TxFrames())

	cnt := e.ReadCounters(ethframe.Port2)
	assert.EqualValues(1, cnt.RxFrames)
	assert.EqualValues(len(payload), cnt.RxOctets)
}

func TestRxSwitchForwarding(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	var frames []ethframe.Frame
	sink := func(port ethframe.PortID, frame ethframe.Frame) { frames = append(frames, frame) }
	e := bringUp(t, d, engine.Options{}, switchConfig(), sink)
	defer e.Stop()

	macA := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A}
	macB := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0B}

	// unknown unicast from A on port1 floods toward port2
	fromA := ethPayload(macA, macB, 50)
	require.NoError(d.InjectFrame(ethframe.Port1, fromA))
	require.NoError(e.Poll())
	require.Len(frames, 1)
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)
	port, got, err := ethframe.Decode(d.TxFrames()[0])
	require.NoError(err)
	assert.Equal(ethframe.Port2, port)
	assert.Equal(fromA, got)

	learned, ok := e.Table().Lookup(macA)
	require.True(ok)
	assert.Equal(ethframe.Port1, learned)

	// reply from B on port2 goes straight to the learned port
	fromB := ethPayload(macB, macA, 50)
	require.NoError(d.InjectFrame(ethframe.Port2, fromB))
	require.NoError(e.Poll())
	require.Len(frames, 2)
	require.Eventually(func() bool { return len(d.TxFrames()) == 2 }, time.Second, time.Millisecond)
	port, got, err = ethframe.Decode(d.TxFrames()[1])
	require.NoError(err)
	assert.Equal(ethframe.Port1, port)
	assert.Equal(fromB, got)
}

func TestRxBadFrames(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	var frames []ethframe.Frame
	sink := func(port ethframe.PortID, frame ethframe.Frame) { frames = append(frames, frame) }
	e := bringUp(t, d, engine.Options{}, switchConfig(), sink)
	defer e.Stop()

	// oversized frame: rejected from the size register alone
	d.InjectRaw(ethframe.Port1, make([]byte, ethframe.MaxPayloadLen+ethframe.HeaderLen+1))
	require.NoError(e.Poll())
	assert.Empty(frames)
	assert.Zero(d.FIFOReads(ethframe.Port1))
	assert.EqualValues(1, e.ReadCounters(ethframe.Port1).RxErrors)

	// valid-flag violation in the header
	raw := make([]byte, 64)
	raw[3] = 60
	d.InjectRaw(ethframe.Port1, raw)
	require.NoError(e.Poll())
	assert.Empty(frames)
	assert.EqualValues(1, d.FIFOReads(ethframe.Port1))
	assert.EqualValues(2, e.ReadCounters(ethframe.Port1).RxErrors)

	// both frames were cleared
	require.NoError(e.Poll())
	assert.EqualValues(2, e.ReadCounters(ethframe.Port1).RxErrors)
}

func TestRxTransportFault(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	var frames []ethframe.Frame
	sink := func(port ethframe.PortID, frame ethframe.Frame) { frames = append(frames, frame) }
	e := bringUp(t, d, engine.Options{}, switchConfig(), sink)
	defer e.Stop()

	payload := ethPayload(
		net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		net.HardwareAddr{0x02, 0, 0, 0, 0, 2}, 50)
	require.NoError(d.InjectFrame(ethframe.Port1, payload))

	d.FailNext(1)
	err := e.Poll()
	require.Error(err)
	assert.True(regmap.IsTransportError(err))
	assert.Empty(frames)

	// frame survives the fault and is delivered exactly once afterwards
	require.NoError(e.Poll())
	require.Len(frames, 1)
	assert.Equal(payload, frames[0].Payload)
	require.NoError(e.Poll())
	assert.Len(frames, 1)
}

func TestPollLink(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{}, switchConfig(), nil)
	defer e.Stop()

	type edge struct {
		port ethframe.PortID
		up   bool
	}
	var edges []edge
	cancel := e.OnLinkChange(func(port ethframe.PortID, up bool) { edges = append(edges, edge{port, up}) })
	defer cancel()

	require.NoError(e.PollLink())
	assert.Empty(edges)
	assert.False(e.LinkUp(ethframe.Port1))

	d.SetLink(ethframe.Port1, true)
	require.NoError(e.PollLink())
	require.Len(edges, 1)
	assert.Equal(edge{ethframe.Port1, true}, edges[0])
	assert.True(e.LinkUp(ethframe.Port1))

	require.NoError(e.PollLink())
	assert.Len(edges, 1, "steady link state must not re-notify")

	d.SetLink(ethframe.Port1, false)
	require.NoError(e.PollLink())
	require.Len(edges, 2)
	assert.Equal(edge{ethframe.Port1, false}, edges[1])
}

func TestHardwareStats(t *testing.T) {
	assert, require := makeAR(t)
	d := emu.NewDevice()
	e := bringUp(t, d, engine.Options{}, switchConfig(), nil)
	defer e.Stop()

	payload := randPayload(70)
	require.NoError(e.Transmit(ethframe.Frame{Payload: payload, Dst: ethframe.Port1}))
	require.Eventually(func() bool { return len(d.TxFrames()) == 1 }, time.Second, time.Millisecond)
	require.NoError(e.Stop())

	st, err := e.ReadHardwareStats(ethframe.Port1)
	require.NoError(err)
	assert.EqualValues(1, st.TxPkts)
	assert.EqualValues(len(payload), st.TxBytes)

	_, err = e.ReadHardwareStats(7)
	assert.ErrorIs(err, engine.ErrBadTarget)
}
