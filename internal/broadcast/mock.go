package broadcast

import (
	"context"
	"net"
	"sync"
	"time"
)

// MockConn records datagrams written to it and replays queued ones on read.
type MockConn struct {
	mu sync.Mutex

	// Written holds every payload passed to WriteToUDP.
	Written [][]byte
	// Addrs holds the destination of each write.
	Addrs []*net.UDPAddr
	// WriteError is returned by WriteToUDP if set.
	WriteError error
	// Inbound is returned by ReadFromUDP in order.
	Inbound [][]byte
	// Closed indicates whether Close was called.
	Closed bool
}

// NewMockConn creates an empty MockConn.
func NewMockConn() *MockConn {
	return &MockConn{}
}

// WriteToUDP records the payload.
func (m *MockConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Written = append(m.Written, append([]byte(nil), b...))
	m.Addrs = append(m.Addrs, addr)
	return len(b), nil
}

// ReadFromUDP returns the next inbound payload, then net.ErrClosed.
func (m *MockConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed || len(m.Inbound) == 0 {
		return 0, nil, net.ErrClosed
	}
	pkt := m.Inbound[0]
	m.Inbound = m.Inbound[1:]
	n := copy(b, pkt)
	return n, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}, nil
}

// SetReadDeadline is a no-op.
func (m *MockConn) SetReadDeadline(t time.Time) error {
	return nil
}

// LocalAddr returns a fixed loopback address.
func (m *MockConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

// Close marks the connection closed.
func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Datagrams returns a copy of the written payloads.
func (m *MockConn) Datagrams() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Written))
	copy(out, m.Written)
	return out
}

// RecordingSender keeps every batch it is asked to send.
type RecordingSender struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

// NewRecordingSender creates a RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// SetError makes subsequent sends fail with err.
func (r *RecordingSender) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Send records a copy of the batch.
func (r *RecordingSender) Send(ctx context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, b.Clone())
	return nil
}

// Batches returns the recorded batches.
func (r *RecordingSender) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

// Close is a no-op.
func (r *RecordingSender) Close() error {
	return nil
}
