package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultReadTimeout bounds each read so Listen notices cancellation.
const DefaultReadTimeout = 500 * time.Millisecond

// maxDatagram is the largest payload Listen will read.
const maxDatagram = 65507

// Received is one decoded datagram.
type Received struct {
	From  *net.UDPAddr
	Batch Batch
}

// ListenConn is the subset of *net.UDPConn the listener needs.
type ListenConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// OpenListener binds a UDP socket on port that shares the port with
// other listeners on the same host.
func OpenListener(ctx context.Context, port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return conn, nil
}

// Listen reads datagrams from conn until ctx is cancelled and calls fn
// for each one that decodes. Undecodable datagrams go to onErr when set.
func Listen(ctx context.Context, conn ListenConn, fn func(Received), onErr func(error)) error {
	buf := make([]byte, maxDatagram)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read datagram: %w", err)
		}

		b, err := Decode(buf[:n])
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			continue
		}
		fn(Received{From: from, Batch: b})
	}
}
