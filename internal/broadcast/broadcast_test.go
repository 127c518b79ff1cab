package broadcast

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/taglog"
)

func TestEncode_Format(t *testing.T) {
	b := NewBatch()
	b.Put(3, Entry{1, 2, 3, 4, 5, 6, 7, 8})

	data, err := Encode(b)
	require.NoError(t, err)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, "{\n   \"3\": [\n      1,"), "unexpected layout:\n%s", s)
}

func TestEncode_Nil(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestEncodeDecode(t *testing.T) {
	b := NewBatch()
	b.Put(1, Entry{1700000000.25, 1.5, 0.1, -0.2, 0.3, 10, -20, 30})
	b.Put(12, Entry{})

	data, err := Encode(b)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Equal(t, []int{1, 12}, got.IDs())
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"1": [1, 2]`))
	assert.Error(t, err)
}

func TestEntryFromRow(t *testing.T) {
	row := taglog.Row{
		Epoch:    100,
		Elapsed:  2,
		Position: r3.Vec{X: 1, Y: 2, Z: 3},
		Rotation: posemath.Euler{Roll: 4, Pitch: 5, Yaw: 6},
	}
	assert.Equal(t, Entry{100, 2, 1, 2, 3, 4, 5, 6}, EntryFromRow(row))
}

func TestBatch_Clone(t *testing.T) {
	b := NewBatch()
	b.Put(1, Entry{1})
	c := b.Clone()
	b.Put(1, Entry{2})

	e, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1.0, e[0])
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{"broadcast keyword", "<broadcast>", 5000, "255.255.255.255:5000", false},
		{"empty host", "", 5000, "255.255.255.255:5000", false},
		{"unicast", "127.0.0.1", 6000, "127.0.0.1:6000", false},
		{"bad port", "127.0.0.1", 0, "", true},
		{"port too large", "127.0.0.1", 70000, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := Target(tt.host, tt.port)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}

func TestUDPSender_Send(t *testing.T) {
	conn := NewMockConn()
	target := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	s := NewUDPSender(conn, target)

	b := NewBatch()
	b.Put(2, Entry{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, s.Send(context.Background(), b))
	require.NoError(t, s.Send(context.Background(), b))

	assert.Equal(t, 2, s.Sent())
	require.Len(t, conn.Datagrams(), 2)
	assert.Equal(t, target, conn.Addrs[0])

	got, err := Decode(conn.Datagrams()[0])
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestUDPSender_Errors(t *testing.T) {
	conn := NewMockConn()
	s := NewUDPSender(conn, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, NewBatch()), context.Canceled)

	conn.WriteError = errors.New("network down")
	assert.Error(t, s.Send(context.Background(), NewBatch()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, conn.Closed)
	assert.ErrorIs(t, s.Send(context.Background(), NewBatch()), ErrClosed)
}

func TestMultiSender(t *testing.T) {
	a := NewRecordingSender()
	b := NewRecordingSender()
	b.SetError(errors.New("boom"))
	c := NewRecordingSender()

	m := MultiSender{a, b, c}
	batch := NewBatch()
	batch.Put(1, Entry{})

	assert.Error(t, m.Send(context.Background(), batch))
	assert.Len(t, a.Batches(), 1)
	assert.Len(t, c.Batches(), 1, "later senders still receive the batch")
	assert.NoError(t, m.Close())
}

func TestListen_DecodesAndSkipsGarbage(t *testing.T) {
	b := NewBatch()
	b.Put(5, Entry{1, 2, 3, 4, 5, 6, 7, 8})
	good, err := Encode(b)
	require.NoError(t, err)

	conn := NewMockConn()
	conn.Inbound = [][]byte{[]byte("not json"), good}

	var got []Received
	var errs []error
	err = Listen(context.Background(), conn,
		func(r Received) { got = append(got, r) },
		func(err error) { errs = append(errs, err) },
	)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, b, got[0].Batch)
	assert.Len(t, errs, 1)
}

func TestListen_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Listen(ctx, NewMockConn(), func(Received) { called = true }, nil)
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestUDPLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping socket test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := OpenListener(ctx, 0)
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	s, err := Dial(ctx, "127.0.0.1", port)
	require.NoError(t, err)
	defer s.Close()

	b := NewBatch()
	b.Put(7, Entry{7, 7, 7, 7, 7, 7, 7, 7})
	require.NoError(t, s.Send(ctx, b))

	received := make(chan Received, 1)
	go func() {
		_ = Listen(ctx, conn, func(r Received) {
			select {
			case received <- r:
			default:
			}
			cancel()
		}, nil)
	}()

	r := <-received
	assert.Equal(t, b, r.Batch)
}
