package xcpslave

import (
	"sync"
	"time"
)

// ClockState mirrors the synchronization state reported by
// TIME_CORRELATION_PROPERTIES.
type ClockState uint8

const (
	ClockFreeRunning ClockState = iota
	ClockSynchronizing
	ClockSynchronized
)

// Epoch identifies the reference epoch of a grandmaster clock.
type Epoch uint8

const (
	EpochTAI Epoch = iota
	EpochUTC
	EpochARB
)

// GrandmasterInfo is the optional XCP-1.3 grandmaster identity.
type GrandmasterInfo struct {
	UUID    [8]byte
	Epoch   Epoch
	Stratum uint8
}

// Clock is the monotonic tick source behind GET_DAQ_CLOCK and
// TIME_CORRELATION_PROPERTIES. Ticks never go backwards.
type Clock interface {
	// NowTicks returns the current tick count, at TickRateNs nanoseconds
	// per tick.
	NowTicks() uint64
	// TickRateNs is 1 (nanosecond resolution) or 1000 (microsecond).
	TickRateNs() uint32
	State() ClockState
	Grandmaster() (GrandmasterInfo, bool)
}

// MonotonicClock derives ticks from time.Now(), clamping re-reads so the
// reported value never regresses even if the wall clock jumps backwards.
type MonotonicClock struct {
	mu       sync.Mutex
	tickRate uint32
	epoch    time.Time
	lastTick uint64
	state    ClockState
	gm       *GrandmasterInfo
}

// NewMonotonicClock builds a clock ticking every tickRateNs nanoseconds.
// tickRateNs must be 1 or 1000; anything else defaults to 1000 (1us).
func NewMonotonicClock(tickRateNs uint32) *MonotonicClock {
	if tickRateNs != 1 && tickRateNs != 1000 {
		tickRateNs = 1000
	}
	return &MonotonicClock{
		tickRate: tickRateNs,
		epoch:    time.Now(),
		state:    ClockFreeRunning,
	}
}

func (c *MonotonicClock) NowTicks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := uint64(time.Since(c.epoch).Nanoseconds())
	tick := elapsed / uint64(c.tickRate)
	if tick < c.lastTick {
		tick = c.lastTick
	}
	c.lastTick = tick
	return tick
}

func (c *MonotonicClock) TickRateNs() uint32 { return c.tickRate }

func (c *MonotonicClock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetGrandmaster records the grandmaster this clock is slaved to and moves
// the reported state to synchronized.
func (c *MonotonicClock) SetGrandmaster(gm GrandmasterInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gm = &gm
	c.state = ClockSynchronized
}

func (c *MonotonicClock) Grandmaster() (GrandmasterInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gm == nil {
		return GrandmasterInfo{}, false
	}
	return *c.gm, true
}
