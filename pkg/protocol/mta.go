package protocol

import (
	"github.com/ethxcp/xcpslave"
	"github.com/ethxcp/xcpslave/internal/crc"
)

// handleGetID sets up the MTA-backed upload buffer for one of the GET_ID
// payload types and reports its length; the master then drains it with
// UPLOAD commands.
func (s *Session) handleGetID(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	idType := body[0]
	data, ok := s.instr.Identify(idType)
	if !ok {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	s.idBuffer = data
	resp := make([]byte, 8)
	resp[0] = xcpslave.PIDRes
	putLE32(resp[4:], uint32(len(data)))
	s.sendResponse(resp)
}

func (s *Session) handleSetMTA(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	s.idBuffer = nil
	s.mta = mtaCursor{ext: body[2], addr: le32(body[3:7])}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

// readMTA reads n bytes from the active source (the GET_ID upload buffer
// if one is pending, otherwise the address space at the MTA cursor),
// advancing the cursor.
func (s *Session) readMTA(n int) ([]byte, bool) {
	if s.idBuffer != nil {
		if n > len(s.idBuffer) {
			return nil, false
		}
		data := s.idBuffer[:n]
		s.idBuffer = s.idBuffer[n:]
		return data, true
	}
	data, ok := s.addrSpace.Resolve(s.mta.ext, s.mta.addr, n)
	if !ok {
		return nil, false
	}
	s.mta.addr += uint32(n)
	return data, true
}

func (s *Session) writeMTA(data []byte) bool {
	dst, ok := s.addrSpace.Resolve(s.mta.ext, s.mta.addr, len(data))
	if !ok {
		return false
	}
	copy(dst, data)
	s.mta.addr += uint32(len(data))
	return true
}

func (s *Session) maxUploadLen() int {
	return int(s.cfg.MaxCTO) - 1
}

func (s *Session) handleUpload(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(body[0])
	if n > s.maxUploadLen() {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	data, ok := s.readMTA(n)
	if !ok {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	resp := make([]byte, 1+n)
	resp[0] = xcpslave.PIDRes
	copy(resp[1:], data)
	s.sendResponse(resp)
}

func (s *Session) handleShortUpload(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(body[0])
	if n > s.maxUploadLen() {
		s.sendErr(xcpslave.AbortOutOfRange)
		return
	}
	s.idBuffer = nil
	s.mta = mtaCursor{ext: body[2], addr: le32(body[3:7])}
	data, ok := s.readMTA(n)
	if !ok {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	resp := make([]byte, 1+n)
	resp[0] = xcpslave.PIDRes
	copy(resp[1:], data)
	s.sendResponse(resp)
}

func (s *Session) handleDownload(body []byte) {
	if len(body) < 1 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(body[0])
	if len(body) < 1+n {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	if !s.writeMTA(body[1 : 1+n]) {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleDownloadMax(body []byte) {
	if !s.writeMTA(body) {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleShortDownload(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(body[0])
	if len(body) < 7+n {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	s.idBuffer = nil
	s.mta = mtaCursor{ext: body[2], addr: le32(body[3:7])}
	if !s.writeMTA(body[7 : 7+n]) {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}

func (s *Session) handleBuildChecksum(body []byte) {
	if len(body) < 7 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	n := int(le32(body[3:7]))
	data, ok := s.addrSpace.Resolve(s.mta.ext, s.mta.addr, n)
	if !ok {
		s.sendErr(xcpslave.AbortAccessDenied)
		return
	}

	result := computeChecksum(s.cfg.ChecksumType, data)

	resp := make([]byte, 8)
	resp[0] = xcpslave.PIDRes
	resp[1] = s.cfg.ChecksumType
	putLE32(resp[4:], result)
	s.sendResponse(resp)
}

// computeChecksum runs one of the BUILD_CHECKSUM algorithms over data,
// returning the result widened to 32 bits.
func computeChecksum(checksumType uint8, data []byte) uint32 {
	switch checksumType {
	case xcpslave.ChecksumAdd11:
		return uint32(crc.Add11(data))
	case xcpslave.ChecksumAdd12:
		return uint32(crc.Add12(data))
	case xcpslave.ChecksumAdd14:
		return crc.Add14(data)
	case xcpslave.ChecksumAdd22:
		return uint32(crc.Add22(data))
	case xcpslave.ChecksumAdd24:
		return crc.Add24(data)
	case xcpslave.ChecksumAdd44:
		return crc.Add44(data)
	case xcpslave.ChecksumCRC16:
		var c crc.CRC16
		c.Block(data)
		return uint32(c)
	case xcpslave.ChecksumCRC16CCITT:
		var c crc.CRC16CCITT
		c.Block(data)
		return uint32(c)
	case xcpslave.ChecksumCRC32:
		var c crc.CRC32
		c.Block(data)
		return uint32(c)
	default:
		var c crc.CRC16CCITT
		c.Block(data)
		return uint32(c)
	}
}
