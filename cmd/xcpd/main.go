// Command xcpd runs a standalone XCP-on-Ethernet slave against a flat
// in-process memory region, for interactive testing against a real XCP
// master tool.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethxcp/xcpslave"
	"github.com/ethxcp/xcpslave/pkg/config"
	"github.com/ethxcp/xcpslave/pkg/daq"
	"github.com/ethxcp/xcpslave/pkg/protocol"
	"github.com/ethxcp/xcpslave/pkg/transport"
)

var defaultConfigPath = "xcpd.ini"

func main() {
	configPath := flag.String("c", defaultConfigPath, "path to xcpd.ini")
	bindAddr := flag.String("a", "0.0.0.0", "bind address, overrides xcpd.ini")
	bindPort := flag.Int("p", int(xcpslave.DefaultBindPort), "bind port, overrides xcpd.ini")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("no config file, using built-in defaults", "path", *configPath, "error", err)
		cfg = &config.Config{}
	}
	if *bindAddr != "" {
		cfg.Transport.BindAddr = *bindAddr
	}
	if *bindPort != 0 {
		cfg.Transport.BindPort = *bindPort
	}
	if !cfg.Transport.EnableTCP && !cfg.Transport.EnableUDP {
		cfg.Transport.EnableUDP = true
	}

	// A flat 64KiB region stands in for the application's calibration and
	// measurement memory; a real process wires xcpslave.AddressSpace to its
	// own structs instead.
	memory := make([]byte, 64*1024)
	addrSpace := xcpslave.NewFlatAddressSpace(memory)
	clock := xcpslave.NewMonotonicClock(1000)

	events := daq.NewEventList(cfg.Session.MaxEvents)
	if _, err := events.Add(daq.Event{Name: "10ms", CycleValue: 10, CycleUnit: 6, Priority: xcpslave.EventPriorityQueued}); err != nil {
		logger.Error("failed to register event", "error", err)
		os.Exit(1)
	}
	if _, err := events.Add(daq.Event{Name: "100ms", CycleValue: 100, CycleUnit: 6, Priority: xcpslave.EventPriorityQueued}); err != nil {
		logger.Error("failed to register event", "error", err)
		os.Exit(1)
	}

	server := transport.NewServer(cfg.Transport, logger)
	session := protocol.NewSession(cfg.Session, server, addrSpace, clock, xcpslave.NopInstrumentation{}, events, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go runEventLoop(ctx, session)

	logger.Info("xcp slave listening",
		"addr", cfg.Transport.BindAddr, "port", cfg.Transport.BindPort,
		"tcp", cfg.Transport.EnableTCP, "udp", cfg.Transport.EnableUDP)
	if err := server.Run(ctx, session); err != nil && ctx.Err() == nil {
		logger.Error("transport server exited", "error", err)
		os.Exit(1)
	}
}

// runEventLoop fires the "10ms" event every 10ms for as long as the
// process runs, standing in for an application's own cyclic task calling
// trigger_event from wherever its sampled variables actually live.
func runEventLoop(ctx context.Context, session *protocol.Session) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session.Sampler().TriggerEvent(0, nil)
		}
	}
}
