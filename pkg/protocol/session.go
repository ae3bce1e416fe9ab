// Package protocol implements the XCP session: command decode, response
// encode, session status, the MTA cursor, and calibration-page dispatch.
// Commands reach a Session only through Dispatch, which the transport
// layer's receive workers call synchronously. The DAQ sampler, running on
// application goroutines, only reads the DAQ-running state through
// isDAQRunning; both paths take the Session mutex.
package protocol

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/ethxcp/xcpslave"
	"github.com/ethxcp/xcpslave/pkg/daq"
	"github.com/ethxcp/xcpslave/pkg/queue"
)

// Transport is the slice of the transport server a Session needs: the
// segment queue to enqueue into, and the empty-queue bypass send.
type Transport interface {
	Queue() *queue.Queue
	SendDirect(payload []byte) error
}

// Config carries the process-scoped parameters a Session needs at
// construction.
type Config struct {
	MaxCTO        uint8
	MaxDTO        uint16
	ArenaBytes    int
	MaxEvents     int
	TimestampUnit uint8 // 0 = 1ns, 1 = 1us, matches GET_DAQ_RESOLUTION_INFO unit codes
	TimestampSize uint8 // 32 or 64
	TwoByteID     bool
	OverrunByPID  bool
	ChecksumType  uint8 // one of the xcpslave.Checksum* constants
}

func (c Config) withDefaults() Config {
	if c.MaxCTO == 0 {
		c.MaxCTO = xcpslave.DefaultMaxCTO
	}
	if c.MaxDTO == 0 {
		c.MaxDTO = uint16(c.MaxCTO)
	}
	if c.ArenaBytes == 0 {
		c.ArenaBytes = 65536
	}
	if c.TimestampSize == 0 {
		c.TimestampSize = 32
	}
	if c.ChecksumType == 0 {
		c.ChecksumType = xcpslave.ChecksumCRC16CCITT
	}
	return c
}

type mtaCursor struct {
	ext  uint8
	addr uint32
}

// Session is one XCP slave session: exactly one connected master at a
// time, matching the transport layer's single-pinned-master model.
type Session struct {
	mu sync.Mutex

	logger    *slog.Logger
	cfg       Config
	transport Transport
	addrSpace xcpslave.AddressSpace
	clock     xcpslave.Clock
	instr     xcpslave.Instrumentation
	store     *daq.Store
	events    *daq.EventList
	sampler   *daq.Sampler

	connected   bool
	daqRunning  bool
	protocolVer uint8
	mta         mtaCursor
	idBuffer     []byte
	daqPtr       daqCursor
	runningCount int
}

// daqCursor is the entry-write cursor positioned by SET_DAQ_PTR and
// advanced by WRITE_DAQ.
type daqCursor struct {
	daq   int
	odt   int
	entry int
}

// NewSession builds a Session. events should already be populated; store
// is created empty and reset on every CONNECT/FREE_DAQ.
func NewSession(cfg Config, transport Transport, addrSpace xcpslave.AddressSpace, clock xcpslave.Clock, instr xcpslave.Instrumentation, events *daq.EventList, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if instr == nil {
		instr = xcpslave.NopInstrumentation{}
	}
	if events == nil {
		events = daq.NewEventList(cfg.MaxEvents)
	}
	cfg = cfg.withDefaults()
	store := daq.NewStore(cfg.ArenaBytes, cfg.OverrunByPID)
	s := &Session{
		logger:    logger.With("service", "[XCP]"),
		cfg:       cfg,
		transport: transport,
		addrSpace: addrSpace,
		clock:     clock,
		instr:     instr,
		store:     store,
		events:    events,
		protocolVer: xcpslave.ProtocolVersion,
	}
	s.sampler = daq.NewSampler(store, events, addrSpace, clock, transport.Queue(), cfg.TwoByteID, cfg.OverrunByPID, s.isDAQRunning)
	return s
}

// Sampler exposes the DAQ sampler so application code can call
// TriggerEvent without going through the protocol layer.
func (s *Session) Sampler() *daq.Sampler { return s.sampler }

func (s *Session) isDAQRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.daqRunning
}

// Dispatch decodes and handles one inbound message. It implements
// transport.Dispatcher structurally.
func (s *Session) Dispatch(msg []byte, multicast bool) (connected bool, disconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msg) == 0 {
		return s.connected, false
	}
	cmd := msg[0]
	body := msg[1:]

	if multicast {
		if s.connected && cmd == xcpslave.CmdGetDAQClock {
			s.handleGetDAQClock()
		}
		return s.connected, false
	}

	if !s.connected && cmd != xcpslave.CmdConnect {
		return false, false
	}

	switch cmd {
	case xcpslave.CmdConnect:
		s.handleConnect(body)
	case xcpslave.CmdDisconnect:
		s.handleDisconnect()
		return false, true
	case xcpslave.CmdGetStatus:
		s.handleGetStatus()
	case xcpslave.CmdSynch:
		s.sendErr(xcpslave.AbortCmdSynch)
	case xcpslave.CmdGetCommModeInfo:
		s.handleGetCommModeInfo()
	case xcpslave.CmdGetID:
		s.handleGetID(body)
	case xcpslave.CmdSetMTA:
		s.handleSetMTA(body)
	case xcpslave.CmdUpload:
		s.handleUpload(body)
	case xcpslave.CmdShortUpload:
		s.handleShortUpload(body)
	case xcpslave.CmdDownload:
		s.handleDownload(body)
	case xcpslave.CmdDownloadMax:
		s.handleDownloadMax(body)
	case xcpslave.CmdShortDownload:
		s.handleShortDownload(body)
	case xcpslave.CmdBuildChecksum:
		s.handleBuildChecksum(body)
	case xcpslave.CmdGetCalPage:
		s.handleGetCalPage(body)
	case xcpslave.CmdSetCalPage:
		s.handleSetCalPage(body)
	case xcpslave.CmdGetDAQProcessorInfo:
		s.handleGetDAQProcessorInfo()
	case xcpslave.CmdGetDAQResolutionInfo:
		s.handleGetDAQResolutionInfo()
	case xcpslave.CmdGetDAQEventInfo:
		s.handleGetDAQEventInfo(body)
	case xcpslave.CmdFreeDAQ:
		s.handleFreeDAQ()
	case xcpslave.CmdAllocDAQ:
		s.handleAllocDAQ(body)
	case xcpslave.CmdAllocODT:
		s.handleAllocODT(body)
	case xcpslave.CmdAllocODTEntry:
		s.handleAllocODTEntry(body)
	case xcpslave.CmdSetDAQPtr:
		s.handleSetDAQPtr(body)
	case xcpslave.CmdWriteDAQ:
		s.handleWriteDAQ(body)
	case xcpslave.CmdWriteDAQMultiple:
		s.handleWriteDAQMultiple(body)
	case xcpslave.CmdSetDAQListMode:
		s.handleSetDAQListMode(body)
	case xcpslave.CmdGetDAQListMode:
		s.handleGetDAQListMode(body)
	case xcpslave.CmdStartStopDAQList:
		s.handleStartStopDAQList(body)
	case xcpslave.CmdStartStopSynch:
		s.handleStartStopSynch(body)
	case xcpslave.CmdGetDAQClock:
		s.handleGetDAQClock()
	case xcpslave.CmdTimeCorrelationProperties:
		s.handleTimeCorrelationProperties(body)
	case xcpslave.CmdGetVersion:
		s.handleGetVersion()
	default:
		s.sendErr(xcpslave.AbortCmdUnknown)
	}

	return s.connected, false
}

// OnMasterLost forces the session back to disconnected without a
// response, used when the transport detects a spoofed UDP source or a
// closed TCP connection.
func (s *Session) OnMasterLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.daqRunning {
		s.instr.OnStopDaq()
	}
	s.connected = false
	s.daqRunning = false
	s.runningCount = 0
}

func (s *Session) handleConnect(body []byte) {
	if !s.instr.OnConnect() {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	s.store.Reset()
	if s.daqRunning {
		s.instr.OnStopDaq()
	}
	s.daqRunning = false
	s.runningCount = 0
	s.connected = true
	s.mta = mtaCursor{}
	s.idBuffer = nil

	resource := xcpslave.ResourceCalPag | xcpslave.ResourceDAQ
	commBasic := xcpslave.CommByteOrderIntel | xcpslave.CommAddressGranByte
	resp := []byte{
		xcpslave.PIDRes,
		resource,
		commBasic,
		s.cfg.MaxCTO,
		byte(s.cfg.MaxDTO), byte(s.cfg.MaxDTO >> 8),
		s.protocolVer,
		xcpslave.TransportVersion,
	}
	s.sendResponse(resp)
}

func (s *Session) handleDisconnect() {
	s.teardownLocked()
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleGetStatus() {
	var status uint8
	if s.daqRunning {
		status |= 0x40
	}
	resp := []byte{xcpslave.PIDRes, status, 0, 0, 0, 0}
	s.sendResponse(resp)
}

func (s *Session) handleGetCommModeInfo() {
	resp := []byte{xcpslave.PIDRes, 0, 0, 0, 0xFF, 0, 0, 0x01}
	s.sendResponse(resp)
}

func (s *Session) handleGetVersion() {
	resp := []byte{
		xcpslave.PIDRes, 0,
		s.protocolVer >> 4, s.protocolVer & 0x0F,
		xcpslave.TransportVersion >> 4, xcpslave.TransportVersion & 0x0F,
	}
	s.sendResponse(resp)
}

func (s *Session) sendResponse(payload []byte) {
	q := s.transport.Queue()
	if q.Len() == 0 {
		if err := s.transport.SendDirect(payload); err == nil {
			return
		}
	}
	slot, err := q.Reserve(len(payload))
	if err != nil {
		s.logger.Warn("failed to reserve response slot", "error", err)
		return
	}
	copy(slot.Payload, payload)
	q.Commit(slot, true)
}

func (s *Session) sendErr(code xcpslave.Abort) {
	s.sendResponse([]byte{xcpslave.PIDErr, uint8(code)})
}

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func putLE16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func putLE32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
