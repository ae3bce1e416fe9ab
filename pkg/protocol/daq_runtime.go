package protocol

import "github.com/ethxcp/xcpslave"

// syncRunningState recomputes the number of running DAQ lists and fires
// OnStartDaq/OnStopDaq exactly at the 0-to-positive and positive-to-0
// transitions, regardless of how many individual list starts or stops
// produced the change.
func (s *Session) syncRunningState() {
	n := s.store.RunningCount()
	if n > 0 && s.runningCount == 0 {
		s.instr.OnStartDaq()
	} else if n == 0 && s.runningCount > 0 {
		s.instr.OnStopDaq()
	}
	s.runningCount = n
	s.daqRunning = n > 0
}

func (s *Session) handleStartStopDAQList(body []byte) {
	if len(body) < 3 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	mode := body[0]
	daqIndex := int(le16(body[1:3]))

	switch mode {
	case 0: // stop
		if err := s.store.SetRunning(daqIndex, false); err != nil {
			s.sendErrFrom(err)
			return
		}
		s.syncRunningState()
		s.sendResponse([]byte{xcpslave.PIDRes, 0})
	case 1: // start
		if err := s.store.SetRunning(daqIndex, true); err != nil {
			s.sendErrFrom(err)
			return
		}
		s.syncRunningState()
		pid, ok := s.store.FirstPID(daqIndex)
		if !ok {
			s.sendErr(xcpslave.AbortOutOfRange)
			return
		}
		s.sendResponse([]byte{xcpslave.PIDRes, pid})
	case 2: // select for a subsequent START_STOP_SYNCH
		if err := s.store.SetSelected(daqIndex, true); err != nil {
			s.sendErrFrom(err)
			return
		}
		s.sendResponse([]byte{xcpslave.PIDRes, 0})
	default:
		s.sendErr(xcpslave.AbortOutOfRange)
	}
}

func (s *Session) handleStartStopSynch(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	mode := body[0]
	if mode > 2 {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	if mode == 1 && !s.instr.OnPrepareDaq() {
		s.sendErr(xcpslave.AbortDaqConfig)
		return
	}
	if err := s.store.StartAllSelected(mode); err != nil {
		s.sendErrFrom(err)
		return
	}
	s.syncRunningState()
	s.sendResponse([]byte{xcpslave.PIDRes})
}

// handleGetDAQClock reports the current tick count. Called for a unicast
// command and for a GET_DAQ_CLOCK received on the XCP-1.3 multicast time
// channel, the latter only while a session is connected.
func (s *Session) handleGetDAQClock() {
	ticks := s.clock.NowTicks()
	resp := make([]byte, 4+8)
	resp[0] = xcpslave.PIDRes
	if s.cfg.TimestampSize == 64 {
		resp = resp[:4+8]
		putLE32(resp[4:8], uint32(ticks))
		putLE32(resp[8:12], uint32(ticks>>32))
	} else {
		resp = resp[:4+4]
		putLE32(resp[4:8], uint32(ticks))
	}
	s.sendResponse(resp)
}

// Clock synchronization state bits reported in TIME_CORRELATION_PROPERTIES'
// observable-clock byte.
const (
	syncStateFreeRunning  uint8 = 0x00
	syncStateSynchronizing uint8 = 0x01
	syncStateSynchronized uint8 = 0x02
)

func clockSyncState(state xcpslave.ClockState) uint8 {
	switch state {
	case xcpslave.ClockSynchronizing:
		return syncStateSynchronizing
	case xcpslave.ClockSynchronized:
		return syncStateSynchronized
	default:
		return syncStateFreeRunning
	}
}

// handleTimeCorrelationProperties answers the XCP-1.3 GET_PROPERTIES
// request: the slave's observable clock state and, if the clock is
// slaved to one, its grandmaster identity.
func (s *Session) handleTimeCorrelationProperties(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	uuid, epoch, stratum, hasGM := s.instr.GrandmasterInfo()
	properties := clockSyncState(s.clock.State())
	if hasGM {
		properties |= 0x04
	}

	resp := make([]byte, 8)
	resp[0] = xcpslave.PIDRes
	resp[1] = properties
	resp[2] = 0
	resp[3] = s.cfg.TimestampSize / 32 // observable clock size class: 1=32bit, 2=64bit
	if hasGM {
		resp = append(resp, uuid[:]...)
		resp = append(resp, epoch, stratum)
	}
	s.sendResponse(resp)
}
