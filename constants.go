package xcpslave

// Command codes, the first byte of every CRO (command) packet.
const (
	CmdTransportLayerCmd uint8 = 0xF2
	CmdConnect           uint8 = 0xFF
	CmdDisconnect        uint8 = 0xFE
	CmdGetStatus         uint8 = 0xFD
	CmdSynch             uint8 = 0xFC
	CmdGetCommModeInfo   uint8 = 0xFB
	CmdGetID             uint8 = 0xFA
	CmdSetMTA            uint8 = 0xF6
	CmdUpload            uint8 = 0xF5
	CmdShortUpload       uint8 = 0xF4
	CmdBuildChecksum     uint8 = 0xF3
	CmdDownload          uint8 = 0xF0
	CmdDownloadMax       uint8 = 0xEE
	CmdShortDownload     uint8 = 0xED
	CmdSetCalPage        uint8 = 0xEB
	CmdGetCalPage        uint8 = 0xEA
	CmdSetDAQPtr         uint8 = 0xE2
	CmdWriteDAQ          uint8 = 0xE1
	CmdSetDAQListMode    uint8 = 0xE0
	CmdGetDAQListMode    uint8 = 0xDF
	CmdStartStopDAQList  uint8 = 0xDE
	CmdStartStopSynch    uint8 = 0xDD
	CmdGetDAQClock       uint8 = 0xDC
	CmdGetDAQProcessorInfo uint8 = 0xDA
	CmdGetDAQResolutionInfo uint8 = 0xD9
	CmdGetDAQEventInfo   uint8 = 0xD7
	CmdFreeDAQ           uint8 = 0xD6
	CmdAllocDAQ          uint8 = 0xD5
	CmdAllocODT          uint8 = 0xD4
	CmdAllocODTEntry     uint8 = 0xD3
	CmdWriteDAQMultiple  uint8 = 0xC7
	CmdTimeCorrelationProperties uint8 = 0xC6
	CmdGetVersion        uint8 = 0xC0
)

// Packet identifiers: the first byte of a response/event packet, or of a
// DAQ data packet when below PIDEventMin.
const (
	PIDRes   uint8 = 0xFF
	PIDErr   uint8 = 0xFE
	PIDEvent uint8 = 0xFD
	PIDServ  uint8 = 0xFC
	// DAQ data packets occupy 0x00-0xFB; at most MaxODTCount ODTs are
	// allocated, so the ODT PIDs handed out run from 0x00 to 0xFA.
	PIDEventMin uint8 = 0xFC
	MaxODTCount uint8 = 0xFB
	// MaxODTCountOverrunByPID is the reduced ODT count ceiling when
	// overrun-by-PID signalling is active: bit 7 of the PID byte is
	// reserved for the overrun flag, halving the usable PID space.
	MaxODTCountOverrunByPID uint8 = 0x7B
)

// Resource bits advertised in the CONNECT response.
const (
	ResourceCalPag uint8 = 0x01
	ResourceDAQ    uint8 = 0x04
	ResourceStim   uint8 = 0x08
	ResourcePgm    uint8 = 0x10
)

// Communication-mode-basic bits: byte order and address granularity.
const (
	CommByteOrderIntel    uint8 = 0x00
	CommByteOrderMotorola uint8 = 0x01
	CommAddressGranByte   uint8 = 0x00 << 1
	CommAddressGranWord   uint8 = 0x01 << 1
	CommAddressGranDWord  uint8 = 0x02 << 1
	CommSlaveBlockMode    uint8 = 0x01 << 6
	CommOptional          uint8 = 0x01 << 7
)

// Protocol and transport-layer version bytes reported by CONNECT and
// GET_VERSION, encoded as (major<<4 | minor).
const (
	ProtocolVersion  uint8 = 0x14
	TransportVersion uint8 = 0x14
)

// GET_ID identification payload types.
const (
	IDTypeASCII      uint8 = 0
	IDTypeASAMName   uint8 = 1
	IDTypeASAMPath   uint8 = 2
	IDTypeASAMURL    uint8 = 3
	IDTypeASAMUpload uint8 = 4
	IDTypeASAMEPK    uint8 = 5
)

// BUILD_CHECKSUM checksum type codes.
const (
	ChecksumAdd11      uint8 = 0x01
	ChecksumAdd12      uint8 = 0x02
	ChecksumAdd14      uint8 = 0x03
	ChecksumAdd22      uint8 = 0x04
	ChecksumAdd24      uint8 = 0x05
	ChecksumAdd44      uint8 = 0x06
	ChecksumCRC16      uint8 = 0x07
	ChecksumCRC16CCITT uint8 = 0x08
	ChecksumCRC32      uint8 = 0x09
)

// DAQ list flag bits.
const (
	DAQFlagSelected  uint8 = 0x01
	DAQFlagDirection uint8 = 0x02 // set = STIM, clear = DAQ
	DAQFlagTimestamp uint8 = 0x10
	DAQFlagNoPID     uint8 = 0x20
	DAQFlagRunning   uint8 = 0x40
	DAQFlagOverrun   uint8 = 0x80
)

// Event priority classes.
const (
	EventPriorityQueued   uint8 = 0
	EventPriorityPushing  uint8 = 1
	EventPriorityRealtime uint8 = 2
)

// Default process-scoped configuration values.
const (
	DefaultMaxCTO        = 252
	DefaultQueueDepth    = 8
	DefaultAlignment     = 4
	DefaultFlushCycleMs  = 50
	DefaultBindPort      = 5555
	DefaultMulticastPort = 5557
)
