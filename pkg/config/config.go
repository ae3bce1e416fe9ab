// Package config loads the xcpd.ini process configuration file: the
// [transport] section feeding pkg/transport.Config and the [daq] section
// feeding pkg/protocol.Config.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ethxcp/xcpslave/pkg/protocol"
	"github.com/ethxcp/xcpslave/pkg/transport"
)

// Config is the fully parsed xcpd.ini: the transport server's listener
// parameters and the protocol session's DAQ/CTO/DTO sizing.
type Config struct {
	Transport transport.Config
	Session   protocol.Config
}

// Load parses path as an xcpd.ini file and returns the resulting Config.
// Every key is optional; omitted keys keep pkg/transport's and
// pkg/protocol's own zero-value defaults, except that inside a present
// [transport] section an omitted bind_addr reads as 0.0.0.0 and omitted
// enable_tcp and enable_udp read as true.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config

	if f.HasSection("transport") {
		sec := f.Section("transport")
		cfg.Transport = transport.Config{
			BindAddr:        sec.Key("bind_addr").MustString("0.0.0.0"),
			BindPort:        sec.Key("bind_port").MustInt(0),
			EnableTCP:       sec.Key("enable_tcp").MustBool(true),
			EnableUDP:       sec.Key("enable_udp").MustBool(true),
			EnableMulticast: sec.Key("enable_multicast").MustBool(false),
			MulticastGroup:  sec.Key("multicast_group").MustString(""),
			MulticastPort:   sec.Key("multicast_port").MustInt(0),
			SegmentSize:     sec.Key("segment_size").MustInt(0),
			QueueDepth:      sec.Key("queue_depth").MustInt(0),
			Alignment:       sec.Key("alignment").MustInt(0),
			FlushCycle:      time.Duration(sec.Key("flush_cycle_ms").MustInt(0)) * time.Millisecond,
		}
	}

	if f.HasSection("daq") {
		sec := f.Section("daq")
		cfg.Session = protocol.Config{
			MaxCTO:        uint8(sec.Key("max_cto").MustUint(0)),
			MaxDTO:        uint16(sec.Key("max_dto").MustUint(0)),
			ArenaBytes:    sec.Key("arena_bytes").MustInt(0),
			MaxEvents:     sec.Key("max_events").MustInt(0),
			TimestampUnit: uint8(sec.Key("timestamp_unit").MustUint(0)),
			TimestampSize: uint8(sec.Key("timestamp_size").MustUint(0)),
			TwoByteID:     sec.Key("two_byte_daq_id").MustBool(false),
			OverrunByPID:  sec.Key("overrun_by_pid").MustBool(false),
			ChecksumType:  uint8(sec.Key("checksum_type").MustUint(0)),
		}
	}

	return &cfg, nil
}
