package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCCITTSingle(t *testing.T) {
	var c CRC16CCITT
	c.Single(10)
	assert.EqualValues(t, 0xA14A, c)
}

func TestCRC16Block(t *testing.T) {
	var c CRC16
	c.Block([]byte{0x01, 0x02, 0x03, 0x04})
	var want CRC16
	want.Single(0x01)
	want.Single(0x02)
	want.Single(0x03)
	want.Single(0x04)
	assert.EqualValues(t, want, c)
}

func TestCRC32Block(t *testing.T) {
	var c CRC32
	c.Block([]byte("123456789"))
	assert.EqualValues(t, 0xCBF43926, c)
}

func TestAdd11(t *testing.T) {
	assert.EqualValues(t, 6, Add11([]byte{1, 2, 3}))
}

func TestAdd11Wraps(t *testing.T) {
	assert.EqualValues(t, 0, Add11([]byte{0xFF, 0x01}))
}

func TestAdd22(t *testing.T) {
	// little-endian words 0x0201, 0x0403
	assert.EqualValues(t, 0x0201+0x0403, Add22([]byte{0x01, 0x02, 0x03, 0x04}))
}

func TestAdd44(t *testing.T) {
	assert.EqualValues(t, 0x04030201, Add44([]byte{0x01, 0x02, 0x03, 0x04}))
}
