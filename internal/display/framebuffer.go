package display

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// FrameBuffer keeps the latest decorated image as JPEG for HTTP streaming.
type FrameBuffer struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{})}
}

// Present encodes the image and wakes any waiting readers.
func (b *FrameBuffer) Present(img gocv.Mat) error {
	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return err
	}
	defer buf.Close()

	b.Publish(buf.GetBytes())
	return nil
}

// Publish stores an already encoded JPEG.
func (b *FrameBuffer) Publish(jpeg []byte) {
	data := make([]byte, len(jpeg))
	copy(data, jpeg)

	b.mu.Lock()
	b.jpeg = data
	b.seq++
	close(b.updated)
	b.updated = make(chan struct{})
	b.mu.Unlock()
}

// Latest returns the newest JPEG and its sequence number.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.seq
}

// Next blocks until a frame newer than seq is available.
func (b *FrameBuffer) Next(ctx context.Context, seq uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.seq > seq {
			data, s := b.jpeg, b.seq
			b.mu.Unlock()
			return data, s, nil
		}
		wait := b.updated
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, seq, ctx.Err()
		case <-wait:
		}
	}
}

// Close does nothing; readers return when their context ends.
func (b *FrameBuffer) Close() error {
	return nil
}
