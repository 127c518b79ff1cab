package vision

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
)

// MockProvider is a test implementation of the Provider interface.
// It plays back a scripted sequence of frames.
type MockProvider struct {
	mu     sync.Mutex
	steps  []mockStep
	index  int
	loop   bool
	closed bool
	now    func() time.Time
}

type mockStep struct {
	markers []Marker
	err     error
}

// NewMockProvider creates an empty MockProvider that reports ErrStreamClosed
// once its script is exhausted.
func NewMockProvider() *MockProvider {
	return &MockProvider{now: time.Now}
}

// SetLoop makes the script repeat instead of ending.
func (m *MockProvider) SetLoop(loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = loop
}

// SetClock sets the source of frame timestamps.
func (m *MockProvider) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AddFrame appends a frame containing the given markers.
func (m *MockProvider) AddFrame(markers ...Marker) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{markers: markers})
	return m
}

// AddError appends a step that returns err instead of a frame.
func (m *MockProvider) AddError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// Remaining returns how many scripted steps have not been consumed.
func (m *MockProvider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps) - m.index
}

// NextFrame returns the next scripted frame or error.
func (m *MockProvider) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStreamClosed
	}
	if m.index >= len(m.steps) {
		if !m.loop || len(m.steps) == 0 {
			return nil, ErrStreamClosed
		}
		m.index = 0
	}

	step := m.steps[m.index]
	m.index++

	if step.err != nil {
		return nil, step.err
	}

	markers := make([]Marker, len(step.markers))
	copy(markers, step.markers)
	return &Frame{Markers: markers, Timestamp: m.now()}, nil
}

// Close ends the stream.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MarkerAt returns a marker with the given id at position t with no rotation
// relative to the camera.
func MarkerAt(id int, t r3.Vec) Marker {
	return Marker{ID: id, Pose: posemath.Pose{R: posemath.FromRotationVector(r3.Vec{}), T: t}}
}

// MarkerWithPose returns a marker with the given id and camera-frame pose.
func MarkerWithPose(id int, pose posemath.Pose) Marker {
	return Marker{ID: id, Pose: pose}
}
