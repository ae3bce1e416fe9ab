package xcpslave

// Instrumentation is the capability trait the host application supplies at
// construction to react to session and DAQ lifecycle transitions and to own
// calibration-page state. The core never holds a global callback table; it
// holds one Instrumentation value.
type Instrumentation interface {
	// OnConnect is called when a CONNECT command is otherwise valid.
	// Returning false rejects the connection with AbortAccessDenied.
	OnConnect() bool

	// OnPrepareDaq is called during START_STOP_SYNCH mode-1 preparation,
	// before any list transitions to running. Returning false aborts the
	// start with AbortDaqConfig.
	OnPrepareDaq() bool

	// OnStartDaq and OnStopDaq bracket the running state of the whole
	// session's DAQ lists.
	OnStartDaq()
	OnStopDaq()

	// GetCalPage returns the active page number for segment under mode, or
	// ok=false if the segment is not valid.
	GetCalPage(segment uint8, mode uint8) (page uint8, ok bool)

	// SetCalPage switches the active page for segment. ok=false rejects the
	// switch and code becomes the ERR response's Abort code.
	SetCalPage(segment uint8, page uint8, mode uint8) (ok bool, code Abort)

	// GrandmasterInfo reports the TIME_CORRELATION_PROPERTIES grandmaster
	// identity, if the clock is slaved to one.
	GrandmasterInfo() (uuid [8]byte, epoch uint8, stratum uint8, ok bool)

	// Identify returns the GET_ID payload for idType (one of the IDType*
	// constants). ok=false rejects the request with AbortOutOfRange. The
	// session keeps the returned slice itself, without copying it, as its
	// MTA-backed upload buffer; the implementation must not mutate it
	// afterwards.
	Identify(idType uint8) (data []byte, ok bool)
}

// NopInstrumentation accepts every connection, has one calibration page
// per segment, and reports no grandmaster. Useful for tests and for
// processes with no real calibration pages.
type NopInstrumentation struct{}

func (NopInstrumentation) OnConnect() bool     { return true }
func (NopInstrumentation) OnPrepareDaq() bool  { return true }
func (NopInstrumentation) OnStartDaq()         {}
func (NopInstrumentation) OnStopDaq()          {}

func (NopInstrumentation) GetCalPage(segment, mode uint8) (uint8, bool) {
	return 0, true
}

func (NopInstrumentation) SetCalPage(segment, page, mode uint8) (bool, Abort) {
	return true, 0
}

func (NopInstrumentation) GrandmasterInfo() ([8]byte, uint8, uint8, bool) {
	return [8]byte{}, 0, 0, false
}

func (NopInstrumentation) Identify(idType uint8) ([]byte, bool) {
	if idType == IDTypeASCII {
		return []byte("xcpslave"), true
	}
	return nil, false
}
