// Package queue implements the segment transmit queue: a bounded ring of
// fixed-capacity byte segments that batch multiple framed XCP messages for
// one socket write. Multiple producers reserve and commit space in the
// current write segment under one mutex; a single consumer drains
// fully-committed segments in order.
package queue

import (
	"encoding/binary"
	"sync"

	"github.com/ethxcp/xcpslave"
)

// segment is one ring slot: a byte buffer holding a concatenation of framed
// messages, plus the bookkeeping needed to know when it is safe to send.
type segment struct {
	bytes       []byte
	size        uint16
	uncommitted int
	closed      bool
}

func (s *segment) reset() {
	s.size = 0
	s.uncommitted = 0
	s.closed = false
}

// Slot is a reservation returned by Reserve. Payload is the exact-length
// byte range the caller must fill before calling Commit.
type Slot struct {
	seg     *segment
	Payload []byte
}

// Result is the outcome of DrainOne.
type Result int

const (
	Empty Result = iota
	WouldBlock
	Sent
)

// Queue is the segment transmit queue. Zero value is not usable; build one
// with New.
type Queue struct {
	mu          sync.Mutex
	segments    []*segment
	readIdx     int
	length      int
	segmentSize int
	alignment   int
	nextCtr     uint16
	notify      chan struct{}
}

// New builds a queue of depth segments, each segmentSize bytes, with
// messages packed on an alignment-byte boundary (1, 2, or 4).
func New(depth, segmentSize, alignment int) *Queue {
	if alignment != 1 && alignment != 2 && alignment != 4 {
		alignment = 1
	}
	segs := make([]*segment, depth)
	for i := range segs {
		segs[i] = &segment{bytes: make([]byte, segmentSize)}
	}
	return &Queue{
		segments:    segs,
		segmentSize: segmentSize,
		alignment:   alignment,
		notify:      make(chan struct{}, 1),
	}
}

// Notify fires whenever a Commit may have produced a fully committed head
// segment. The transmit worker selects on it instead of polling.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func alignUp(n, alignment int) int {
	if alignment <= 1 {
		return n
	}
	if rem := n % alignment; rem != 0 {
		return n + (alignment - rem)
	}
	return n
}

// headerSize is the 4-byte little-endian {len, ctr} transport header.
const headerSize = 4

// Reserve allocates room for a packetSize-byte payload in the current write
// segment, advancing to a fresh ring slot if the current one has no room.
// The returned Slot's Payload must be filled with exactly packetSize bytes
// before Commit.
func (q *Queue) Reserve(packetSize int) (*Slot, error) {
	padded := alignUp(packetSize, q.alignment)
	msgSize := padded + headerSize
	if msgSize > q.segmentSize {
		return nil, xcpslave.ErrPacketTooLarge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var seg *segment
	switch {
	case q.length == 0:
		seg = q.segments[q.readIdx]
		seg.reset()
		q.length = 1
	default:
		widx := (q.readIdx + q.length - 1) % len(q.segments)
		seg = q.segments[widx]
		if seg.closed || int(seg.size)+msgSize > q.segmentSize {
			if q.length == len(q.segments) {
				return nil, xcpslave.ErrQueueOverflow
			}
			widx = (widx + 1) % len(q.segments)
			seg = q.segments[widx]
			seg.reset()
			q.length++
		}
	}

	offset := int(seg.size)
	binary.LittleEndian.PutUint16(seg.bytes[offset:offset+2], uint16(packetSize))
	binary.LittleEndian.PutUint16(seg.bytes[offset+2:offset+4], q.nextCtr)
	q.nextCtr++
	payload := seg.bytes[offset+headerSize : offset+headerSize+packetSize]
	seg.size += uint16(msgSize)
	seg.uncommitted++

	return &Slot{seg: seg, Payload: payload}, nil
}

// Commit marks a reserved slot as filled. If flush is set and the slot's
// segment is still the active write target, the segment is closed so the
// next Reserve starts a fresh one -- bounding latency for a high-priority
// commit instead of waiting for the segment to fill naturally.
func (q *Queue) Commit(slot *Slot, flush bool) {
	q.mu.Lock()
	slot.seg.uncommitted--
	wake := slot.seg.uncommitted == 0
	if flush {
		slot.seg.closed = true
	}
	q.mu.Unlock()
	if wake {
		q.wake()
	}
}

// Flush closes the current write segment (if any and non-empty) so it
// becomes eligible to drain without waiting for it to fill.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.length == 0 {
		q.mu.Unlock()
		return
	}
	widx := (q.readIdx + q.length - 1) % len(q.segments)
	seg := q.segments[widx]
	if seg.size > 0 {
		seg.closed = true
	}
	q.mu.Unlock()
	q.wake()
}

// DrainOne sends the head segment via send if it is fully committed. The
// segment is closed for further writes the moment it is selected, and the
// socket write happens outside the queue lock.
func (q *Queue) DrainOne(send func([]byte) error) (Result, error) {
	q.mu.Lock()
	if q.length == 0 {
		q.mu.Unlock()
		return Empty, nil
	}
	seg := q.segments[q.readIdx]
	if seg.uncommitted > 0 {
		q.mu.Unlock()
		return WouldBlock, nil
	}
	seg.closed = true
	data := seg.bytes[:seg.size]
	q.mu.Unlock()

	if err := send(data); err != nil {
		return Sent, err
	}

	q.mu.Lock()
	q.readIdx = (q.readIdx + 1) % len(q.segments)
	q.length--
	q.mu.Unlock()
	return Sent, nil
}

// Len reports the number of segments currently occupying the ring.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}
