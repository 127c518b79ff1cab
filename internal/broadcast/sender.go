package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
)

// ErrClosed is returned when sending on a closed sender.
var ErrClosed = errors.New("sender closed")

// Sender delivers an encoded batch to its destination.
type Sender interface {
	Send(ctx context.Context, b Batch) error
	Close() error
}

// PacketConn is the subset of *net.UDPConn the UDP sender needs.
type PacketConn interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// Target resolves the configured host into a UDP address.
// "<broadcast>" and an empty host mean the limited broadcast address.
func Target(host string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if host == "" || host == "<broadcast>" {
		host = "255.255.255.255"
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	return addr, nil
}

// UDPSender writes one datagram per batch.
type UDPSender struct {
	conn   PacketConn
	target *net.UDPAddr
	mu     sync.Mutex
	closed bool
	sent   int
}

// NewUDPSender wraps an existing connection.
func NewUDPSender(conn PacketConn, target *net.UDPAddr) *UDPSender {
	return &UDPSender{conn: conn, target: target}
}

// Dial opens a broadcast-capable UDP socket on an ephemeral port
// and returns a sender for host:port.
func Dial(ctx context.Context, host string, port int) (*UDPSender, error) {
	target, err := Target(host, port)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open udp socket: %w", err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}

	log.Printf("Broadcasting positions to %s", target)
	return NewUDPSender(conn, target), nil
}

// Send encodes and writes the batch.
func (s *UDPSender) Send(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.conn.WriteToUDP(data, s.target); err != nil {
		return fmt.Errorf("failed to send batch to %s: %w", s.target, err)
	}
	s.sent++
	return nil
}

// Sent returns how many datagrams were written.
func (s *UDPSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Target returns the destination address.
func (s *UDPSender) Target() *net.UDPAddr {
	return s.target
}

// Close closes the underlying socket.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// MultiSender fans one batch out to several senders.
// Every sender is tried; the first error is returned.
type MultiSender []Sender

// Send forwards the batch to every sender.
func (m MultiSender) Send(ctx context.Context, b Batch) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, b); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sender.
func (m MultiSender) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, b Batch) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, b Batch) error {
	return f(ctx, b)
}

// Close is a no-op.
func (f SenderFunc) Close() error {
	return nil
}
