// Package daq implements the DAQ descriptor store (lists, ODTs, ODT
// entries bump-allocated out of a bounded arena) and the per-event sampler
// that turns a trigger_event call into one or more framed DAQ packets.
package daq

import (
	"sync"

	"github.com/ethxcp/xcpslave"
)

// Per-item byte costs charged against the arena budget. These stand in for
// the four non-overlapping regions of a single fixed-size arena block; the
// store tracks the running total instead of laying the regions out in one
// literal byte slice, since nothing downstream needs to address them by
// raw offset.
const (
	bytesPerList      = 8
	bytesPerODT       = 6
	bytesPerEntryAddr = 4
	bytesPerEntrySize = 1
)

// List is one DAQ list: a contiguous range of ODTs, bound to one event.
type List struct {
	FirstODT, LastODT uint16
	Flags             uint8
	EventChannel      uint16
	Prescaler         uint8

	prescalerCounter uint8
	overrunPending   bool
}

// ODT is one Object Descriptor Table: a contiguous range of entries
// sharing one identification field.
type ODT struct {
	FirstEntry, LastEntry uint16
}

// Entry is one sampled memory region.
type Entry struct {
	Ext  uint8
	Addr uint32
	Size uint8
}

type stage int

const (
	stageCleared stage = iota
	stageDAQ
	stageODT
	stageEntry
)

// Store is the bump-allocated descriptor arena. Allocation only moves
// forward: ALLOC_DAQ, then ALLOC_ODT per list, then ALLOC_ODT_ENTRY per
// (list, odt); any call that would step backwards in that sequence is
// rejected with AbortSequence. FREE_DAQ is the only way to reclaim space.
type Store struct {
	mu sync.Mutex

	arenaBytes   int
	used         int
	stage        stage
	overrunByPID bool

	Lists   []List
	ODTs    []ODT
	Entries []Entry
}

func NewStore(arenaBytes int, overrunByPID bool) *Store {
	return &Store{arenaBytes: arenaBytes, overrunByPID: overrunByPID}
}

// MaxODTCount returns the effective ODT count ceiling: xcpslave.MaxODTCount
// normally, or the reduced xcpslave.MaxODTCountOverrunByPID when overrun-by-PID
// signalling is active, since bit 7 of the PID byte is then reserved for the
// overrun flag.
func (s *Store) MaxODTCount() uint8 {
	if s.overrunByPID {
		return xcpslave.MaxODTCountOverrunByPID
	}
	return xcpslave.MaxODTCount
}

// Reset clears every list, ODT, and entry and returns the store to its
// just-constructed state (FREE_DAQ).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = 0
	s.stage = stageCleared
	s.Lists = nil
	s.ODTs = nil
	s.Entries = nil
}

// AllocDAQ reserves n new DAQ lists.
func (s *Store) AllocDAQ(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage > stageDAQ {
		return xcpslave.AbortSequence
	}
	cost := n * bytesPerList
	if s.used+cost > s.arenaBytes {
		return xcpslave.AbortMemoryOverflow
	}
	for i := 0; i < n; i++ {
		s.Lists = append(s.Lists, List{
			FirstODT: uint16(len(s.ODTs)),
			LastODT:  uint16(len(s.ODTs)),
		})
	}
	s.used += cost
	s.stage = stageDAQ
	return nil
}

// AllocODT reserves n ODTs for daqIndex. ODTs are bump-allocated globally,
// so this list's ODTs must directly follow whatever ODTs already exist.
func (s *Store) AllocODT(daqIndex, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return xcpslave.AbortOutOfRange
	}
	if s.stage > stageODT {
		return xcpslave.AbortSequence
	}
	if len(s.ODTs)+n > int(s.MaxODTCount()) {
		return xcpslave.AbortMemoryOverflow
	}
	cost := n * bytesPerODT
	if s.used+cost > s.arenaBytes {
		return xcpslave.AbortMemoryOverflow
	}
	list := &s.Lists[daqIndex]
	if int(list.LastODT) != len(s.ODTs) {
		return xcpslave.AbortSequence
	}
	for i := 0; i < n; i++ {
		s.ODTs = append(s.ODTs, ODT{
			FirstEntry: uint16(len(s.Entries)),
			LastEntry:  uint16(len(s.Entries)),
		})
	}
	list.LastODT += uint16(n)
	// Lists after this one are still empty; they start where this one ends.
	for j := daqIndex + 1; j < len(s.Lists); j++ {
		s.Lists[j].FirstODT = list.LastODT
		s.Lists[j].LastODT = list.LastODT
	}
	s.used += cost
	s.stage = stageODT
	return nil
}

// AllocODTEntry reserves n entries for (daqIndex, odtLocalIndex), the odt's
// index within its own list.
func (s *Store) AllocODTEntry(daqIndex, odtLocalIndex, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	odtGlobal, ok := s.odtGlobalLocked(daqIndex, odtLocalIndex)
	if !ok {
		return xcpslave.AbortOutOfRange
	}
	if len(s.Entries)+n > 0xFFFF {
		return xcpslave.AbortMemoryOverflow
	}
	cost := n * (bytesPerEntryAddr + bytesPerEntrySize)
	if s.used+cost > s.arenaBytes {
		return xcpslave.AbortMemoryOverflow
	}
	odt := &s.ODTs[odtGlobal]
	if int(odt.LastEntry) != len(s.Entries) {
		return xcpslave.AbortSequence
	}
	for i := 0; i < n; i++ {
		s.Entries = append(s.Entries, Entry{})
	}
	odt.LastEntry += uint16(n)
	// ODTs after this one are still empty; they start where this one ends.
	for k := odtGlobal + 1; k < len(s.ODTs); k++ {
		s.ODTs[k].FirstEntry = odt.LastEntry
		s.ODTs[k].LastEntry = odt.LastEntry
	}
	s.used += cost
	s.stage = stageEntry
	return nil
}

// WriteEntry sets the (ext, addr, size) of one already-allocated entry.
func (s *Store) WriteEntry(daqIndex, odtLocalIndex, entryLocalIndex int, ext uint8, addr uint32, size uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.entryGlobalLocked(daqIndex, odtLocalIndex, entryLocalIndex)
	if !ok {
		return xcpslave.AbortOutOfRange
	}
	s.Entries[idx] = Entry{Ext: ext, Addr: addr, Size: size}
	return nil
}

func (s *Store) odtGlobalLocked(daqIndex, odtLocalIndex int) (int, bool) {
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return 0, false
	}
	list := s.Lists[daqIndex]
	odtGlobal := int(list.FirstODT) + odtLocalIndex
	if odtLocalIndex < 0 || odtGlobal >= int(list.LastODT) {
		return 0, false
	}
	return odtGlobal, true
}

func (s *Store) entryGlobalLocked(daqIndex, odtLocalIndex, entryLocalIndex int) (int, bool) {
	odtGlobal, ok := s.odtGlobalLocked(daqIndex, odtLocalIndex)
	if !ok {
		return 0, false
	}
	odt := s.ODTs[odtGlobal]
	entryGlobal := int(odt.FirstEntry) + entryLocalIndex
	if entryLocalIndex < 0 || entryGlobal >= int(odt.LastEntry) {
		return 0, false
	}
	return entryGlobal, true
}

// ValidEntry reports whether (daqIndex, odtLocalIndex, entryLocalIndex)
// names an already-allocated entry.
func (s *Store) ValidEntry(daqIndex, odtLocalIndex, entryLocalIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entryGlobalLocked(daqIndex, odtLocalIndex, entryLocalIndex)
	return ok
}

// ODTCount returns the number of ODTs belonging to daqIndex.
func (s *Store) ODTCount(daqIndex int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return 0, false
	}
	list := s.Lists[daqIndex]
	return int(list.LastODT - list.FirstODT), true
}

// FirstPID returns the wire PID of daqIndex's first ODT, returned by
// START_STOP_DAQ_LIST mode 1.
func (s *Store) FirstPID(daqIndex int) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return 0, false
	}
	return uint8(s.Lists[daqIndex].FirstODT), true
}

// SetListMode records the event/prescaler/flags negotiated by
// SET_DAQ_LIST_MODE.
func (s *Store) SetListMode(daqIndex int, eventChannel uint16, prescaler uint8, flags uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return xcpslave.AbortOutOfRange
	}
	list := &s.Lists[daqIndex]
	list.EventChannel = eventChannel
	if prescaler == 0 {
		prescaler = 1
	}
	list.Prescaler = prescaler
	list.prescalerCounter = 0
	list.Flags = flags
	return nil
}

// ListMode mirrors SetListMode for GET_DAQ_LIST_MODE.
func (s *Store) ListMode(daqIndex int) (eventChannel uint16, prescaler uint8, flags uint8, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return 0, 0, 0, false
	}
	list := s.Lists[daqIndex]
	return list.EventChannel, list.Prescaler, list.Flags, true
}

// SetRunning sets or clears DAQFlagRunning for daqIndex.
func (s *Store) SetRunning(daqIndex int, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return xcpslave.AbortOutOfRange
	}
	if running {
		s.Lists[daqIndex].Flags |= xcpslave.DAQFlagRunning
	} else {
		s.Lists[daqIndex].Flags &^= xcpslave.DAQFlagRunning
	}
	return nil
}

// SetSelected sets or clears DAQFlagSelected for daqIndex (START_STOP_DAQ_LIST mode 2).
func (s *Store) SetSelected(daqIndex int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if daqIndex < 0 || daqIndex >= len(s.Lists) {
		return xcpslave.AbortOutOfRange
	}
	if selected {
		s.Lists[daqIndex].Flags |= xcpslave.DAQFlagSelected
	} else {
		s.Lists[daqIndex].Flags &^= xcpslave.DAQFlagSelected
	}
	return nil
}

// StartAllSelected starts (mode 1) or stops (mode 2) every selected list,
// or stops every list (mode 0), for START_STOP_SYNCH.
func (s *Store) StartAllSelected(mode uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Lists) == 0 {
		return xcpslave.AbortDaqConfig
	}
	for i := range s.Lists {
		switch mode {
		case 0:
			s.Lists[i].Flags &^= xcpslave.DAQFlagRunning
		case 1:
			if s.Lists[i].Flags&xcpslave.DAQFlagSelected != 0 {
				s.Lists[i].Flags |= xcpslave.DAQFlagRunning
				s.Lists[i].Flags &^= xcpslave.DAQFlagSelected
			}
		case 2:
			if s.Lists[i].Flags&xcpslave.DAQFlagSelected != 0 {
				s.Lists[i].Flags &^= (xcpslave.DAQFlagRunning | xcpslave.DAQFlagSelected)
			}
		}
	}
	return nil
}

// RunningCount returns how many DAQ lists currently have DAQFlagRunning set.
func (s *Store) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.Lists {
		if s.Lists[i].Flags&xcpslave.DAQFlagRunning != 0 {
			n++
		}
	}
	return n
}

// NumLists returns the number of currently allocated DAQ lists.
func (s *Store) NumLists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Lists)
}

// ArenaUsage returns (used, capacity) in bytes.
func (s *Store) ArenaUsage() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, s.arenaBytes
}
