package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessagesSingle(t *testing.T) {
	buf := []byte{2, 0, 0, 0, 0xFF, 0x00}
	msgs, remainder, err := SplitMessages(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, remainder)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0xFF, 0x00}, msgs[0])
}

func TestSplitMessagesMultiple(t *testing.T) {
	buf := []byte{
		1, 0, 5, 0, 0xFF,
		1, 0, 6, 0, 0xFE,
	}
	msgs, remainder, err := SplitMessages(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, remainder)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte{0xFF}, msgs[0])
	assert.Equal(t, []byte{0xFE}, msgs[1])
}

func TestSplitMessagesPartialTrailer(t *testing.T) {
	buf := []byte{2, 0, 0, 0, 0xFF, 0x00, 3, 0}
	msgs, remainder, err := SplitMessages(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, remainder)
	require.Len(t, msgs, 1)
}

func TestSplitMessagesStrictRejectsPartial(t *testing.T) {
	buf := []byte{2, 0, 0, 0, 0xFF}
	_, err := SplitMessagesStrict(buf)
	assert.Error(t, err)
}
