// Package transport implements the wire-level framing and the UDP/TCP/
// multicast server workers that move framed XCP messages between the
// segment queue and the network.
package transport

import (
	"encoding/binary"

	"github.com/ethxcp/xcpslave"
)

const HeaderSize = 4

// Header is the 4-byte little-endian {len, ctr} transport message header.
type Header struct {
	Len uint16
	Ctr uint16
}

func DecodeHeader(b []byte) Header {
	return Header{
		Len: binary.LittleEndian.Uint16(b[0:2]),
		Ctr: binary.LittleEndian.Uint16(b[2:4]),
	}
}

// SplitMessages splits one buffer (a UDP datagram or an accumulated TCP
// read) into its framed messages. It returns the decoded payloads and the
// number of trailing bytes that did not form a complete message (always 0
// for UDP, where a partial message is a protocol error).
func SplitMessages(buf []byte) (payloads [][]byte, remainder int, err error) {
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < HeaderSize {
			return payloads, len(buf) - offset, nil
		}
		h := DecodeHeader(buf[offset:])
		end := offset + HeaderSize + int(h.Len)
		if end > len(buf) {
			return payloads, len(buf) - offset, nil
		}
		payloads = append(payloads, buf[offset+HeaderSize:end])
		offset = end
	}
	return payloads, 0, nil
}

// SplitMessagesStrict is SplitMessages but treats any leftover bytes as a
// malformed-frame error, used on UDP where one datagram must carry whole
// messages only.
func SplitMessagesStrict(buf []byte) ([][]byte, error) {
	payloads, remainder, err := SplitMessages(buf)
	if err != nil {
		return nil, err
	}
	if remainder != 0 {
		return nil, xcpslave.ErrMalformedFrame
	}
	return payloads, nil
}
