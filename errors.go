package xcpslave

import (
	"errors"
	"fmt"
)

// Package-level sentinel errors for conditions that never reach the wire as
// an Abort code: misuse of the Go API itself, resource exhaustion in the
// transport layer, and session lifecycle errors.
var (
	ErrIllegalArgument = errors.New("illegal argument")
	ErrNotConnected    = errors.New("session is not connected")
	ErrAlreadyRunning  = errors.New("server already running")
	ErrShutdown        = errors.New("server is shutting down")
	ErrQueueOverflow   = errors.New("segment queue is full")
	ErrWouldBlock      = errors.New("head segment not yet fully committed")
	ErrPacketTooLarge  = errors.New("packet exceeds segment capacity")
	ErrMalformedFrame  = errors.New("malformed transport frame")
	ErrSpoofedSource   = errors.New("datagram source does not match pinned master")
	ErrEventTableFull  = errors.New("event table is at its configured capacity")
)

// Abort is the command-error code carried as the second byte of an ERR
// response. Its numeric values follow the wire encoding; do not reorder.
type Abort uint8

const (
	AbortCmdSynch        Abort = 0x00
	AbortCmdBusy         Abort = 0x10
	AbortDaqActive       Abort = 0x11
	AbortPgmActive       Abort = 0x12
	AbortCmdUnknown      Abort = 0x20
	AbortCmdSyntax       Abort = 0x21
	AbortOutOfRange      Abort = 0x22
	AbortWriteProtected  Abort = 0x23
	AbortAccessDenied    Abort = 0x24
	AbortAccessLocked    Abort = 0x25
	AbortPageNotValid    Abort = 0x26
	AbortModeNotValid    Abort = 0x27
	AbortSegmentNotValid Abort = 0x28
	AbortSequence        Abort = 0x29
	AbortDaqConfig       Abort = 0x2A
	AbortMemoryOverflow  Abort = 0x30
	AbortGeneric         Abort = 0x31
	AbortVerify          Abort = 0x32
)

var abortText = map[Abort]string{
	AbortCmdSynch:        "command processor synchronization",
	AbortCmdBusy:         "command was already issued and is being processed",
	AbortDaqActive:       "command rejected because DAQ is running",
	AbortPgmActive:       "command rejected because PGM is running",
	AbortCmdUnknown:      "unknown command or not implemented",
	AbortCmdSyntax:       "command syntax invalid",
	AbortOutOfRange:      "command parameter out of range",
	AbortWriteProtected:  "memory location is write protected",
	AbortAccessDenied:    "access to the memory location is denied",
	AbortAccessLocked:    "access locked",
	AbortPageNotValid:    "selected page is not valid",
	AbortModeNotValid:    "selected mode is not valid",
	AbortSegmentNotValid: "selected segment is not valid",
	AbortSequence:        "sequence error",
	AbortDaqConfig:       "DAQ configuration is invalid",
	AbortMemoryOverflow:  "memory overflow",
	AbortGeneric:         "generic error",
	AbortVerify:          "the slave internal verification of a download failed",
}

func (a Abort) Error() string {
	if s, ok := abortText[a]; ok {
		return s
	}
	return fmt.Sprintf("unknown abort code 0x%02X", uint8(a))
}
