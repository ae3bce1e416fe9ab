package daq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethxcp/xcpslave"
)

func TestAllocSequenceHappyPath(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(2))
	require.NoError(t, s.AllocODT(0, 1))
	require.NoError(t, s.AllocODT(1, 2))
	require.NoError(t, s.AllocODTEntry(0, 0, 3))
	require.NoError(t, s.AllocODTEntry(1, 0, 1))
	require.NoError(t, s.AllocODTEntry(1, 1, 1))

	n, ok := s.ODTCount(1)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	require.NoError(t, s.WriteEntry(0, 0, 0, 0, 0x1000, 4))
	idx, ok := s.entryGlobalLocked(0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, Entry{Ext: 0, Addr: 0x1000, Size: 4}, s.Entries[idx])
}

func TestAllocODTRejectsAfterEntryPhase(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(1))
	require.NoError(t, s.AllocODT(0, 1))
	require.NoError(t, s.AllocODTEntry(0, 0, 1))

	err := s.AllocODT(0, 1)
	var abort xcpslave.Abort
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, xcpslave.AbortSequence, abort)
}

func TestAllocDAQRejectsAfterODTPhase(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(1))
	require.NoError(t, s.AllocODT(0, 1))

	err := s.AllocDAQ(1)
	var abort xcpslave.Abort
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, xcpslave.AbortSequence, abort)
}

func TestAllocODTOutOfOrderAcrossListsRejected(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(2))
	require.NoError(t, s.AllocODT(1, 1))

	err := s.AllocODT(0, 1)
	var abort xcpslave.Abort
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, xcpslave.AbortSequence, abort)
}

func TestAllocMemoryOverflow(t *testing.T) {
	s := NewStore(bytesPerList, false) // room for exactly one list
	require.NoError(t, s.AllocDAQ(1))
	err := s.AllocDAQ(1)
	var abort xcpslave.Abort
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, xcpslave.AbortMemoryOverflow, abort)
}

func TestFreeDAQResetsStore(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(1))
	require.NoError(t, s.AllocODT(0, 1))
	s.Reset()
	assert.Equal(t, 0, s.NumLists())
	require.NoError(t, s.AllocDAQ(1))
}

func TestFirstPIDIsGloballyContiguous(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(2))
	require.NoError(t, s.AllocODT(0, 2))
	require.NoError(t, s.AllocODT(1, 3))

	pid0, ok := s.FirstPID(0)
	require.True(t, ok)
	assert.Equal(t, uint8(0), pid0)

	pid1, ok := s.FirstPID(1)
	require.True(t, ok)
	assert.Equal(t, uint8(2), pid1)
}

func TestAllocODTLimitReducedWhenOverrunByPID(t *testing.T) {
	s := NewStore(1<<20, true)
	require.NoError(t, s.AllocDAQ(2))
	require.NoError(t, s.AllocODT(0, int(xcpslave.MaxODTCountOverrunByPID)))

	err := s.AllocODT(1, 1)
	var abort xcpslave.Abort
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, xcpslave.AbortMemoryOverflow, abort)
}

func TestAllocODTLimitUnreducedWithoutOverrunByPID(t *testing.T) {
	s := NewStore(1<<20, false)
	require.NoError(t, s.AllocDAQ(1))
	require.NoError(t, s.AllocODT(0, int(xcpslave.MaxODTCountOverrunByPID)+1))
	assert.Equal(t, xcpslave.MaxODTCount, s.MaxODTCount())
}

func TestStartAllSelectedModes(t *testing.T) {
	s := NewStore(4096, false)
	require.NoError(t, s.AllocDAQ(2))
	require.NoError(t, s.SetSelected(0, true))
	require.NoError(t, s.SetSelected(1, true))

	require.NoError(t, s.StartAllSelected(1))
	_, _, flags0, _ := s.ListMode(0)
	assert.NotZero(t, flags0&xcpslave.DAQFlagRunning)
	assert.Zero(t, flags0&xcpslave.DAQFlagSelected)

	require.NoError(t, s.StartAllSelected(0))
	_, _, flags0, _ = s.ListMode(0)
	assert.Zero(t, flags0&xcpslave.DAQFlagRunning)
}
