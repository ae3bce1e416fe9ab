package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/ethxcp/xcpslave/pkg/queue"
)

// Dispatcher is implemented by the protocol layer. Dispatch decodes and
// handles one inbound message, reporting the session's connected state
// afterwards and whether the transport must tear the session down (a fatal
// decode error or a DISCONNECT command). multicast is true for messages
// received on the optional multicast time channel, which accepts only
// GET_DAQ_CLOCK_MULTICAST; Dispatch is responsible for rejecting anything
// else arriving that way.
type Dispatcher interface {
	Dispatch(msg []byte, multicast bool) (connected bool, disconnect bool)
	// OnMasterLost forces the session back to disconnected, used when the
	// transport itself detects a spoofed UDP source or a TCP client close.
	OnMasterLost()
}

// Config configures one Server.
type Config struct {
	BindAddr        string
	BindPort        int
	EnableTCP       bool
	EnableUDP       bool
	EnableMulticast bool
	MulticastGroup  string
	MulticastPort   int
	SegmentSize     int
	QueueDepth      int
	Alignment       int
	FlushCycle      time.Duration
}

// Server owns the segment queue and the receive/transmit/multicast
// goroutines. UDP serves one pinned master at a time; TCP serves one
// accepted client at a time.
type Server struct {
	cfg    Config
	logger *slog.Logger
	queue  *queue.Queue

	mu          sync.Mutex
	udpConn     *net.UDPConn
	masterAddr  *net.UDPAddr
	tcpConn     net.Conn
	tcpListener *net.TCPListener
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = 1024
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 8
	}
	if cfg.Alignment == 0 {
		cfg.Alignment = 4
	}
	if cfg.FlushCycle == 0 {
		cfg.FlushCycle = 50 * time.Millisecond
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("service", "[TL]"),
		queue:  queue.New(cfg.QueueDepth, cfg.SegmentSize, cfg.Alignment),
	}
}

// Queue exposes the segment queue so the protocol layer can enqueue DAQ
// data and non-bypassed responses.
func (s *Server) Queue() *queue.Queue { return s.queue }

// SendDirect frames payload, reserves it, and drains it immediately --
// the empty-queue bypass for latency-sensitive responses like
// GET_DAQ_CLOCK.
func (s *Server) SendDirect(payload []byte) error {
	slot, err := s.queue.Reserve(len(payload))
	if err != nil {
		return err
	}
	copy(slot.Payload, payload)
	s.queue.Commit(slot, true)
	_, err = s.queue.DrainOne(s.send)
	return err
}

func (s *Server) send(data []byte) error {
	s.mu.Lock()
	conn, addr, tcpConn := s.udpConn, s.masterAddr, s.tcpConn
	s.mu.Unlock()

	if conn != nil && addr != nil {
		_, err := conn.WriteToUDP(data, addr)
		return err
	}
	if tcpConn != nil {
		_, err := tcpConn.Write(data)
		return err
	}
	return nil
}

// Run starts every enabled worker and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, dispatcher Dispatcher) error {
	var wg sync.WaitGroup

	if s.cfg.EnableUDP {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(s.cfg.BindAddr), Port: s.cfg.BindPort})
		if err != nil {
			return fmt.Errorf("listen udp: %w", err)
		}
		s.mu.Lock()
		s.udpConn = conn
		s.mu.Unlock()
		wg.Add(1)
		go func() { defer wg.Done(); s.runUDPReceive(ctx, conn, dispatcher) }()
	}

	if s.cfg.EnableTCP {
		ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.ParseIP(s.cfg.BindAddr), Port: s.cfg.BindPort})
		if err != nil {
			return fmt.Errorf("listen tcp: %w", err)
		}
		s.mu.Lock()
		s.tcpListener = ln
		s.mu.Unlock()
		wg.Add(1)
		go func() { defer wg.Done(); s.runTCPAccept(ctx, ln, dispatcher) }()
	}

	if s.cfg.EnableMulticast {
		wg.Add(1)
		go func() { defer wg.Done(); s.runMulticast(ctx, dispatcher) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); s.runTransmit(ctx) }()

	<-ctx.Done()
	s.Close()
	wg.Wait()
	return ctx.Err()
}

// Close shuts down every open socket, unblocking any worker parked in a
// read or accept call.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	if s.tcpConn != nil {
		s.tcpConn.Close()
	}
}

func (s *Server) runUDPReceive(ctx context.Context, conn *net.UDPConn, dispatcher Dispatcher) {
	buf := make([]byte, s.cfg.SegmentSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		s.mu.Lock()
		pinned := s.masterAddr
		s.mu.Unlock()

		if pinned != nil && !sameUDPAddr(pinned, addr) {
			s.logger.Warn("dropping datagram from unpinned source, disconnecting session", "source", addr)
			s.mu.Lock()
			s.masterAddr = nil
			s.mu.Unlock()
			dispatcher.OnMasterLost()
			continue
		}

		msgs, err := SplitMessagesStrict(buf[:n])
		if err != nil {
			s.logger.Warn("malformed datagram, disconnecting session", "error", err)
			s.mu.Lock()
			s.masterAddr = nil
			s.mu.Unlock()
			dispatcher.OnMasterLost()
			continue
		}

		for _, msg := range msgs {
			connected, disconnect := dispatcher.Dispatch(msg, false)
			s.mu.Lock()
			if connected && s.masterAddr == nil {
				s.masterAddr = addr
			}
			if disconnect {
				s.masterAddr = nil
			}
			s.mu.Unlock()
		}
	}
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func (s *Server) runTCPAccept(ctx context.Context, ln *net.TCPListener, dispatcher Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ln.SetDeadline(time.Now().Add(time.Second))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		s.mu.Lock()
		s.tcpConn = conn
		s.mu.Unlock()

		s.serveTCPClient(ctx, conn, dispatcher)

		s.mu.Lock()
		s.tcpConn = nil
		s.mu.Unlock()
		conn.Close()
		dispatcher.OnMasterLost()
	}
}

func (s *Server) serveTCPClient(ctx context.Context, conn net.Conn, dispatcher Dispatcher) {
	acc := make([]byte, 0, s.cfg.SegmentSize)
	chunk := make([]byte, s.cfg.SegmentSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		acc = append(acc, chunk[:n]...)

		msgs, remainder, _ := SplitMessages(acc)
		for _, msg := range msgs {
			_, disconnect := dispatcher.Dispatch(msg, false)
			if disconnect {
				return
			}
		}
		if remainder > 0 {
			acc = append(acc[:0], acc[len(acc)-remainder:]...)
		} else {
			acc = acc[:0]
		}
	}
}

func (s *Server) runMulticast(ctx context.Context, dispatcher Dispatcher) {
	group := net.ParseIP(s.cfg.MulticastGroup)
	if group == nil {
		s.logger.Warn("multicast enabled but group address is invalid", "group", s.cfg.MulticastGroup)
		return
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", s.cfg.MulticastPort))
	if err != nil {
		s.logger.Warn("multicast listen failed", "error", err)
		return
	}
	defer conn.Close()

	pconn := ipv4.NewPacketConn(conn)
	ifaces, _ := net.Interfaces()
	joined := false
	for i := range ifaces {
		if err := pconn.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group}); err == nil {
			joined = true
		}
	}
	if !joined {
		if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
			s.logger.Warn("failed to join multicast group", "group", s.cfg.MulticastGroup, "error", err)
			return
		}
	}

	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		msgs, err := SplitMessagesStrict(buf[:n])
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			dispatcher.Dispatch(msg, true)
		}
	}
}

func (s *Server) runTransmit(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushCycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Notify():
			s.drainAll()
		case <-ticker.C:
			s.queue.Flush()
			s.drainAll()
		}
	}
}

func (s *Server) drainAll() {
	for {
		result, err := s.queue.DrainOne(s.send)
		if err != nil {
			s.logger.Warn("segment send failed", "error", err)
		}
		if result != queue.Sent {
			return
		}
	}
}
