package daq

import (
	"sync/atomic"

	"github.com/ethxcp/xcpslave"
)

// Event describes one DAQ event channel: the rate at which it fires and
// the static metadata returned by GET_DAQ_EVENT_INFO.
type Event struct {
	Name        string
	CycleValue  uint8
	CycleUnit   uint8 // exponent code: 0=1ns ... matches GET_DAQ_RESOLUTION_INFO units
	Priority    uint8
	Packed      bool   // supplemented XCP-1.4 packed-mode capability
	SampleCount uint16 // packed-mode samples per trigger; the sampler does not use it
	ContextSize uint16 // size in bytes of the event-relative data context

	lastTriggerTicks uint64
}

// LastTriggerTicks is a diagnostic: the clock tick of this event's most
// recent TriggerEvent call.
func (e *Event) LastTriggerTicks() uint64 {
	return atomic.LoadUint64(&e.lastTriggerTicks)
}

func (e *Event) setLastTriggerTicks(t uint64) {
	atomic.StoreUint64(&e.lastTriggerTicks, t)
}

// EventList is the static table of DAQ event channels, built once at
// startup and read concurrently by the sampler and by GET_DAQ_EVENT_INFO.
type EventList struct {
	events []Event
	max    int
}

// NewEventList builds an empty event table. max caps the number of events
// Add will accept; max <= 0 means unbounded, matching the zero-value-default
// idiom the rest of this stack uses for process-scoped configuration.
func NewEventList(max int) *EventList {
	return &EventList{max: max}
}

// Add appends an event and returns its channel number. It fails with
// xcpslave.ErrEventTableFull once the table already holds max events.
func (l *EventList) Add(e Event) (uint16, error) {
	if l.max > 0 && len(l.events) >= l.max {
		return 0, xcpslave.ErrEventTableFull
	}
	l.events = append(l.events, e)
	return uint16(len(l.events) - 1), nil
}

func (l *EventList) Get(id uint16) (*Event, bool) {
	if int(id) >= len(l.events) {
		return nil, false
	}
	return &l.events[id], true
}

func (l *EventList) Len() int {
	return len(l.events)
}
