package daq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethxcp/xcpslave"
)

func TestEventListUnboundedByDefault(t *testing.T) {
	l := NewEventList(0)
	for i := 0; i < 16; i++ {
		_, err := l.Add(Event{Name: "e"})
		require.NoError(t, err)
	}
	assert.Equal(t, 16, l.Len())
}

func TestEventListRejectsPastMax(t *testing.T) {
	l := NewEventList(2)
	id0, err := l.Add(Event{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, uint16(0), id0)

	id1, err := l.Add(Event{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id1)

	_, err = l.Add(Event{Name: "c"})
	require.True(t, errors.Is(err, xcpslave.ErrEventTableFull))
	assert.Equal(t, 2, l.Len())
}
