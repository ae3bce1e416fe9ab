package daq

import (
	"encoding/binary"
	"sync"

	"github.com/ethxcp/xcpslave"
	"github.com/ethxcp/xcpslave/pkg/queue"
)

// Transport is the slice of the segment queue the sampler needs: reserve
// space for one ODT packet and commit it.
type Transport interface {
	Reserve(packetSize int) (*queue.Slot, error)
	Commit(slot *queue.Slot, flush bool)
}

// Sampler implements trigger_event: for a fired event channel, walk every
// RUNNING DAQ list bound to it and copy one ODT's worth of sampled memory
// into a queue slot per ODT.
type Sampler struct {
	mu sync.Mutex

	store     *Store
	events    *EventList
	addrSpace xcpslave.AddressSpace
	clock     xcpslave.Clock
	transport Transport
	running   func() bool

	// twoByteID selects the 2-byte (relative_odt, daq) identification
	// field over the default 1-byte absolute ODT PID.
	twoByteID bool
	// overrunByPID signals a dropped sample by setting bit 7 of the next
	// successfully transmitted PID, instead of (or alongside) the
	// DAQFlagOverrun status bit. Only meaningful with the 1-byte field.
	overrunByPID bool
}

func NewSampler(store *Store, events *EventList, addrSpace xcpslave.AddressSpace, clock xcpslave.Clock, transport Transport, twoByteID, overrunByPID bool, running func() bool) *Sampler {
	return &Sampler{
		store:        store,
		events:       events,
		addrSpace:    addrSpace,
		clock:        clock,
		transport:    transport,
		running:      running,
		twoByteID:    twoByteID,
		overrunByPID: overrunByPID,
	}
}

// TriggerEvent samples every running DAQ list bound to eventID. base is
// the event's data context, used to resolve ext==1 (event-relative)
// entries; pass nil for events with no context.
func (s *Sampler) TriggerEvent(eventID uint16, base []byte) {
	if !s.running() {
		return
	}
	event, ok := s.events.Get(eventID)
	if !ok {
		return
	}
	event.setLastTriggerTicks(s.clock.NowTicks())

	s.store.mu.Lock()
	lists := s.store.Lists
	for i := range lists {
		if lists[i].EventChannel != eventID || lists[i].Flags&xcpslave.DAQFlagRunning == 0 {
			continue
		}
		s.sampleListLocked(i, base)
	}
	s.store.mu.Unlock()
}

// sampleListLocked runs with store.mu already held, matching the rest of
// Store's methods which take the lock themselves; the sampler reaches into
// store fields directly since it lives in the same package.
func (s *Sampler) sampleListLocked(listIdx int, base []byte) {
	list := &s.store.Lists[listIdx]

	if list.Prescaler > 1 {
		list.prescalerCounter++
		if list.prescalerCounter < list.Prescaler {
			return
		}
		list.prescalerCounter = 0
	}

	if list.Flags&xcpslave.DAQFlagDirection != 0 {
		return // STIM list: server does not sample it
	}

	timestamped := list.Flags&xcpslave.DAQFlagTimestamp != 0
	noPID := list.Flags&xcpslave.DAQFlagNoPID != 0
	ts := uint32(s.clock.NowTicks())

	for local, odtGlobal := 0, int(list.FirstODT); odtGlobal < int(list.LastODT); local, odtGlobal = local+1, odtGlobal+1 {
		odt := s.store.ODTs[odtGlobal]
		payload := s.buildODTPayload(list, odtGlobal, odt, listIdx, local, timestamped && local == 0, noPID, ts, base)

		slot, err := s.transport.Reserve(len(payload))
		if err != nil {
			list.Flags |= xcpslave.DAQFlagOverrun
			list.overrunPending = true
			return
		}
		copy(slot.Payload, payload)
		s.transport.Commit(slot, false)
	}
}

func (s *Sampler) buildODTPayload(list *List, odtGlobal int, odt ODT, listIdx, local int, writeTimestamp, noPID bool, ts uint32, base []byte) []byte {
	var header []byte
	switch {
	case noPID:
		header = nil
	case s.twoByteID:
		header = []byte{uint8(local), uint8(listIdx)}
	default:
		pid := uint8(odtGlobal)
		if s.overrunByPID && list.overrunPending {
			pid |= 0x80
			list.overrunPending = false
		}
		header = []byte{pid}
	}

	size := len(header)
	if writeTimestamp {
		size += 4
	}
	for e := odt.FirstEntry; e < odt.LastEntry; e++ {
		size += int(s.store.Entries[e].Size)
	}

	buf := make([]byte, size)
	offset := copy(buf, header)
	if writeTimestamp {
		binary.LittleEndian.PutUint32(buf[offset:], ts)
		offset += 4
	}
	for e := odt.FirstEntry; e < odt.LastEntry; e++ {
		entry := s.store.Entries[e]
		var src []byte
		var ok bool
		if entry.Ext == 1 {
			src, ok = s.addrSpace.ResolveRelative(base, entry.Addr, int(entry.Size))
		} else {
			src, ok = s.addrSpace.Resolve(entry.Ext, entry.Addr, int(entry.Size))
		}
		if ok {
			copy(buf[offset:], src)
		}
		offset += int(entry.Size)
	}
	return buf
}
