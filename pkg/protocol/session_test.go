package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethxcp/xcpslave"
	"github.com/ethxcp/xcpslave/pkg/daq"
	"github.com/ethxcp/xcpslave/pkg/queue"
)

// fakeTransport is a Transport backed by a real queue.Queue, with
// SendDirect just appending straight to the sent list -- no framing, since
// Session only ever hands sendResponse a raw CRM payload.
type fakeTransport struct {
	q    *queue.Queue
	sent [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{q: queue.New(4, 256, 1)}
}

func (f *fakeTransport) Queue() *queue.Queue { return f.q }

func (f *fakeTransport) SendDirect(payload []byte) error {
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

type fixedClock struct {
	ticks uint64
	state xcpslave.ClockState
}

func (c *fixedClock) NowTicks() uint64           { return c.ticks }
func (c *fixedClock) TickRateNs() uint32         { return 1000 }
func (c *fixedClock) State() xcpslave.ClockState { return c.state }
func (c *fixedClock) Grandmaster() (xcpslave.GrandmasterInfo, bool) {
	return xcpslave.GrandmasterInfo{}, false
}

func newTestSession(t *testing.T, mem []byte) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	addrSpace := xcpslave.NewFlatAddressSpace(mem)
	events := daq.NewEventList(0)
	events.Add(daq.Event{Name: "10ms", CycleValue: 10, CycleUnit: 6})
	clock := &fixedClock{ticks: 100}
	s := NewSession(Config{}, transport, addrSpace, clock, xcpslave.NopInstrumentation{}, events, nil)
	return s, transport
}

func connect(t *testing.T, s *Session, transport *fakeTransport) {
	t.Helper()
	connected, disconnect := s.Dispatch([]byte{xcpslave.CmdConnect, 0}, false)
	require.True(t, connected)
	require.False(t, disconnect)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, xcpslave.PIDRes, transport.sent[0][0])
	transport.sent = nil
}

func TestConnectDisconnect(t *testing.T) {
	s, transport := newTestSession(t, make([]byte, 64))
	connect(t, s, transport)

	connected, disconnect := s.Dispatch([]byte{xcpslave.CmdDisconnect}, false)
	assert.False(t, connected)
	assert.True(t, disconnect)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, xcpslave.PIDRes, transport.sent[0][0])
}

func TestCommandBeforeConnectIsIgnored(t *testing.T) {
	s, transport := newTestSession(t, make([]byte, 64))
	connected, disconnect := s.Dispatch([]byte{xcpslave.CmdGetStatus}, false)
	assert.False(t, connected)
	assert.False(t, disconnect)
	assert.Empty(t, transport.sent)
}

func TestUploadRoundTrip(t *testing.T) {
	mem := make([]byte, 64)
	mem[10] = 0x11
	mem[11] = 0x22
	s, transport := newTestSession(t, mem)
	connect(t, s, transport)

	connected, _ := s.Dispatch([]byte{xcpslave.CmdSetMTA, 0, 0, 0, 10, 0, 0, 0}, false)
	require.True(t, connected)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, xcpslave.PIDRes, transport.sent[0][0])
	transport.sent = nil

	s.Dispatch([]byte{xcpslave.CmdUpload, 2}, false)
	require.Len(t, transport.sent, 1)
	resp := transport.sent[0]
	assert.Equal(t, xcpslave.PIDRes, resp[0])
	assert.Equal(t, []byte{0x11, 0x22}, resp[1:])
}

func TestGetIDThenUploadDrainsIdentifierBuffer(t *testing.T) {
	s, transport := newTestSession(t, make([]byte, 64))
	connect(t, s, transport)

	s.Dispatch([]byte{xcpslave.CmdGetID, xcpslave.IDTypeASCII}, false)
	require.Len(t, transport.sent, 1)
	resp := transport.sent[0]
	require.Equal(t, xcpslave.PIDRes, resp[0])
	length := uint32(resp[4]) | uint32(resp[5])<<8 | uint32(resp[6])<<16 | uint32(resp[7])<<24
	assert.EqualValues(t, len("xcpslave"), length)
	transport.sent = nil

	s.Dispatch([]byte{xcpslave.CmdUpload, uint8(length)}, false)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "xcpslave", string(transport.sent[0][1:]))
}

func TestDownloadWritesAddressSpace(t *testing.T) {
	mem := make([]byte, 64)
	s, transport := newTestSession(t, mem)
	connect(t, s, transport)

	s.Dispatch([]byte{xcpslave.CmdSetMTA, 0, 0, 0, 20, 0, 0, 0}, false)
	transport.sent = nil

	s.Dispatch([]byte{xcpslave.CmdDownload, 3, 0xAA, 0xBB, 0xCC}, false)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, xcpslave.PIDRes, transport.sent[0][0])
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, mem[20:23])
}

func TestBuildChecksumCRC16CCITT(t *testing.T) {
	mem := []byte{0x01, 0x02, 0x03, 0x04}
	s, transport := newTestSession(t, mem)
	connect(t, s, transport)

	s.Dispatch([]byte{xcpslave.CmdSetMTA, 0, 0, 0, 0, 0, 0, 0}, false)
	transport.sent = nil

	s.Dispatch([]byte{xcpslave.CmdBuildChecksum, 0, 0, 0, 4, 0, 0, 0}, false)
	require.Len(t, transport.sent, 1)
	resp := transport.sent[0]
	assert.Equal(t, xcpslave.PIDRes, resp[0])
	assert.Equal(t, xcpslave.ChecksumCRC16CCITT, resp[1])
}

// TestDAQSetupTriggerAndSample walks through the full descriptor
// allocation sequence, arms one list against the one registered event,
// starts it, and confirms one trigger_event call produces one framed DAQ
// packet carrying the sampled bytes.
func TestDAQSetupTriggerAndSample(t *testing.T) {
	mem := make([]byte, 64)
	mem[0x30] = 0x7A
	mem[0x31] = 0x7B
	s, transport := newTestSession(t, mem)
	connect(t, s, transport)
	drain := func() { transport.sent = nil }
	drain()

	s.Dispatch([]byte{xcpslave.CmdAllocDAQ, 0, 1, 0}, false)
	drain()
	s.Dispatch([]byte{xcpslave.CmdAllocODT, 0, 0, 0, 1}, false)
	drain()
	s.Dispatch([]byte{xcpslave.CmdAllocODTEntry, 0, 0, 0, 0, 1}, false)
	drain()
	s.Dispatch([]byte{xcpslave.CmdSetDAQPtr, 0, 0, 0, 0, 0}, false)
	drain()
	// bit_offset(1) size(1) ext(1) addr(4)
	s.Dispatch([]byte{xcpslave.CmdWriteDAQ, 0, 2, 0, 0x30, 0, 0, 0}, false)
	drain()
	// mode daqIndex(2) event(2) prescaler priority
	s.Dispatch([]byte{xcpslave.CmdSetDAQListMode, 0, 0, 0, 0, 0, 1, 0}, false)
	drain()

	connected, _ := s.Dispatch([]byte{xcpslave.CmdStartStopDAQList, 1, 0, 0}, false)
	require.True(t, connected)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, xcpslave.PIDRes, transport.sent[0][0])
	drain()

	s.Sampler().TriggerEvent(0, nil)

	var framed [][]byte
	res, err := transport.q.DrainOne(func(b []byte) error {
		framed = append(framed, append([]byte(nil), b...))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, queue.Sent, res)
	require.Len(t, framed, 1)
	// header(4) + PID(1) + 2 sampled bytes
	payload := framed[0][4:]
	assert.Equal(t, uint8(0), payload[0])
	assert.Equal(t, byte(0x7A), payload[1])
	assert.Equal(t, byte(0x7B), payload[2])
}

func TestDisconnectStopsRunningDAQ(t *testing.T) {
	s, transport := newTestSession(t, make([]byte, 64))
	connect(t, s, transport)

	allocSingleEntryList(s)
	s.Dispatch([]byte{xcpslave.CmdStartStopDAQList, 1, 0, 0}, false)
	assert.True(t, s.isDAQRunning())

	s.Dispatch([]byte{xcpslave.CmdDisconnect}, false)
	assert.False(t, s.isDAQRunning())
}

// allocSingleEntryList drives the session through the alloc sequence via
// Dispatch without checking the responses, for tests that only care about
// the running-state bookkeeping.
func allocSingleEntryList(s *Session) {
	s.Dispatch([]byte{xcpslave.CmdAllocDAQ, 0, 1, 0}, false)
	s.Dispatch([]byte{xcpslave.CmdAllocODT, 0, 0, 0, 1}, false)
	s.Dispatch([]byte{xcpslave.CmdAllocODTEntry, 0, 0, 0, 0, 1}, false)
	s.Dispatch([]byte{xcpslave.CmdSetDAQPtr, 0, 0, 0, 0, 0}, false)
	s.Dispatch([]byte{xcpslave.CmdWriteDAQ, 0, 1, 0, 0, 0, 0, 0}, false)
	s.Dispatch([]byte{xcpslave.CmdSetDAQListMode, 0, 0, 0, 0, 0, 1, 0}, false)
}

func TestGetDAQClockReportsTicks(t *testing.T) {
	s, transport := newTestSession(t, make([]byte, 64))
	connect(t, s, transport)

	s.Dispatch([]byte{xcpslave.CmdGetDAQClock}, false)
	require.Len(t, transport.sent, 1)
	resp := transport.sent[0]
	assert.Equal(t, xcpslave.PIDRes, resp[0])
	ticks := uint32(resp[4]) | uint32(resp[5])<<8 | uint32(resp[6])<<16 | uint32(resp[7])<<24
	assert.EqualValues(t, 100, ticks)
}
