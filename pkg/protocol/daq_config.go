package protocol

import "github.com/ethxcp/xcpslave"

func (s *Session) handleGetDAQProcessorInfo() {
	keyByte := uint8(0)
	if s.cfg.TwoByteID {
		keyByte |= 0x01
	}
	if s.cfg.OverrunByPID {
		keyByte |= 0x02
	}
	resp := make([]byte, 8)
	resp[0] = xcpslave.PIDRes
	resp[1] = 0x01 // DAQ_CONFIG_TYPE = dynamic
	putLE16(resp[2:4], uint16(s.store.MaxODTCount()))
	putLE16(resp[4:6], uint16(s.events.Len()))
	resp[6] = uint8(s.store.NumLists())
	resp[7] = keyByte
	s.sendResponse(resp)
}

func (s *Session) handleGetDAQResolutionInfo() {
	resp := make([]byte, 8)
	resp[0] = xcpslave.PIDRes
	resp[1] = 1 // granularity ODT entry size, DAQ direction
	resp[2] = 0xFF
	resp[3] = 1 // granularity ODT entry size, STIM direction
	resp[4] = 0xFF
	resp[5] = s.cfg.TimestampSize
	resp[6] = s.cfg.TimestampUnit
	resp[7] = 1 // timestamp ticks per unit
	s.sendResponse(resp)
}

func (s *Session) handleGetDAQEventInfo(body []byte) {
	if len(body) < 3 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	id := le16(body[1:3])
	event, ok := s.events.Get(id)
	if !ok {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	properties := uint8(0x04) // DAQ direction supported
	resp := []byte{
		xcpslave.PIDRes,
		properties,
		0xFF, // max DAQ list for this event: unrestricted
		uint8(len(event.Name)),
		event.CycleValue,
		event.CycleUnit,
		event.Priority,
	}
	s.sendResponse(resp)
}

func (s *Session) handleFreeDAQ() {
	if s.daqRunning {
		s.instr.OnStopDaq()
		s.daqRunning = false
		s.runningCount = 0
	}
	s.store.Reset()
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleAllocDAQ(body []byte) {
	if len(body) < 3 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(le16(body[1:3]))
	if err := s.store.AllocDAQ(n); err != nil {
		s.sendErrFrom(err)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleAllocODT(body []byte) {
	if len(body) < 4 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	daqIndex := int(le16(body[1:3]))
	n := int(body[3])
	if err := s.store.AllocODT(daqIndex, n); err != nil {
		s.sendErrFrom(err)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleAllocODTEntry(body []byte) {
	if len(body) < 5 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	daqIndex := int(le16(body[1:3]))
	odtIndex := int(body[3])
	n := int(body[4])
	if err := s.store.AllocODTEntry(daqIndex, odtIndex, n); err != nil {
		s.sendErrFrom(err)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleSetDAQPtr(body []byte) {
	if len(body) < 5 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	daqIndex := int(le16(body[1:3]))
	odtIndex := int(body[3])
	entryIndex := int(body[4])
	if !s.store.ValidEntry(daqIndex, odtIndex, entryIndex) {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	s.daqPtr = daqCursor{daq: daqIndex, odt: odtIndex, entry: entryIndex}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleWriteDAQ(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	if !s.writeDAQEntry(body[0:7]) {
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleWriteDAQMultiple(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	count := int(body[0])
	const entrySize = 7
	if len(body) < 1+count*entrySize {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	for i := 0; i < count; i++ {
		off := 1 + i*entrySize
		if !s.writeDAQEntry(body[off : off+entrySize]) {
			return
		}
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

// writeDAQEntry writes one entry (bit_offset, size, ext, addr) at the
// current DAQ pointer and advances it, reporting an error response (and
// returning false) on failure.
func (s *Session) writeDAQEntry(fields []byte) bool {
	// fields[0] is bit_offset, unused: byte-granular entries only.
	size := fields[1]
	ext := fields[2]
	addr := le32(fields[3:7])
	if err := s.store.WriteEntry(s.daqPtr.daq, s.daqPtr.odt, s.daqPtr.entry, ext, addr, size); err != nil {
		s.sendErrFrom(err)
		return false
	}
	s.daqPtr.entry++
	return true
}

func (s *Session) handleSetDAQListMode(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	mode := body[0]
	daqIndex := int(le16(body[1:3]))
	event := le16(body[3:5])
	prescaler := body[5]
	priority := body[6]
	if priority != 0 {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	if int(event) >= s.events.Len() {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	if err := s.store.SetListMode(daqIndex, event, prescaler, mode); err != nil {
		s.sendErrFrom(err)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleGetDAQListMode(body []byte) {
	if len(body) < 3 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	daqIndex := int(le16(body[1:3]))
	event, prescaler, flags, ok := s.store.ListMode(daqIndex)
	if !ok {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	resp := make([]byte, 9)
	resp[0] = xcpslave.PIDRes
	resp[1] = flags
	putLE16(resp[4:6], event)
	resp[6] = prescaler
	resp[7] = 0 // priority
	s.sendResponse(resp)
}

// sendErrFrom sends an ERR response for an error returned by the
// descriptor store, which is always an xcpslave.Abort value.
func (s *Session) sendErrFrom(err error) {
	if abort, ok := err.(xcpslave.Abort); ok {
		s.sendErr(abort)
		return
	}
	s.sendErr(xcpslave.AbortGeneric)
}
