package protocol

import "github.com/ethxcp/xcpslave"

func (s *Session) handleGetCalPage(body []byte) {
	if len(body) < 2 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	mode, segment := body[0], body[1]
	page, ok := s.instr.GetCalPage(segment, mode)
	if !ok {
		s.sendErr(xcpslave.AbortSegmentNotValid)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes, 0, 0, page})
}

func (s *Session) handleSetCalPage(body []byte) {
	if len(body) < 3 {
		s.sendErr(xcpslave.AbortCmdSyntax)
		return
	}
	mode, segment, page := body[0], body[1], body[2]
	ok, code := s.instr.SetCalPage(segment, page, mode)
	if !ok {
		s.sendErr(code)
		return
	}
	s.sendResponse([]byte{xcpslave.PIDRes})
}
