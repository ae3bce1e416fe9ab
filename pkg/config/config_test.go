package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIni = `
[transport]
bind_addr = 192.168.1.50
bind_port = 5555
enable_tcp = true
enable_udp = true
enable_multicast = true
multicast_group = 239.0.0.1
multicast_port = 5557
segment_size = 2048
queue_depth = 16
alignment = 4
flush_cycle_ms = 20

[daq]
max_cto = 64
max_dto = 64
arena_bytes = 32768
max_events = 8
timestamp_unit = 1
timestamp_size = 32
two_byte_daq_id = false
overrun_by_pid = true
checksum_type = 8
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xcpd.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleIni), 0o644))
	return path
}

func TestLoadParsesBothSections(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", cfg.Transport.BindAddr)
	assert.Equal(t, 5555, cfg.Transport.BindPort)
	assert.True(t, cfg.Transport.EnableMulticast)
	assert.Equal(t, "239.0.0.1", cfg.Transport.MulticastGroup)
	assert.Equal(t, 5557, cfg.Transport.MulticastPort)
	assert.Equal(t, 2048, cfg.Transport.SegmentSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Transport.FlushCycle)

	assert.EqualValues(t, 64, cfg.Session.MaxCTO)
	assert.EqualValues(t, 32768, cfg.Session.ArenaBytes)
	assert.True(t, cfg.Session.OverrunByPID)
	assert.False(t, cfg.Session.TwoByteID)
	assert.EqualValues(t, 8, cfg.Session.ChecksumType)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}

func TestLoadEmptyFileUsesZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ini")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Transport.SegmentSize)
	assert.EqualValues(t, 0, cfg.Session.MaxCTO)
}
