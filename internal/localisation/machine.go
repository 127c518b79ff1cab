package localisation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/command"
	"github.com/ayusman/arucoloc/internal/display"
	"github.com/ayusman/arucoloc/internal/metrics"
	"github.com/ayusman/arucoloc/internal/origin"
	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/scheduler"
	"github.com/ayusman/arucoloc/internal/taglog"
	"github.com/ayusman/arucoloc/internal/timeutil"
	"github.com/ayusman/arucoloc/internal/vision"
)

// DefaultShutdownGrace is how long the shutdown warning stays up before the
// loop terminates.
const DefaultShutdownGrace = 10 * time.Second

// frameRetryDelay is the pause after the camera fails to deliver a frame.
const frameRetryDelay = 50 * time.Millisecond

// Config holds the collaborators and settings of a Machine.
type Config struct {
	Registry *command.Registry
	Loggers  *taglog.Registry
	Provider vision.Provider

	// Sender receives one batch per broadcast tick. Nil disables sending.
	Sender broadcast.Sender
	// Display shows the operator view. Nil means headless.
	Display display.Display
	// Recorder, when set, receives every origin.
	Recorder origin.Recorder
	Clock    timeutil.Clock
	Metrics  *metrics.Collector

	Convention    posemath.Convention
	FrequencyHz   float64
	ShutdownGrace time.Duration
}

// Machine drives sessions frame by frame.
type Machine struct {
	config      Config
	interpreter *command.Interpreter
	clock       timeutil.Clock
	display     display.Display
	sender      broadcast.Sender
	snapshot    atomic.Pointer[Snapshot]
}

// New validates the configuration and creates a Machine.
func New(config Config) (*Machine, error) {
	if config.Registry == nil {
		return nil, errors.New("localisation: role registry is required")
	}
	if config.Loggers == nil {
		return nil, errors.New("localisation: tag loggers are required")
	}
	if config.Provider == nil {
		return nil, errors.New("localisation: frame provider is required")
	}
	if _, ok := config.Registry.MarkerFor(command.KindCalibration); !ok {
		return nil, errors.New("localisation: no CALIBRATION marker configured")
	}
	if _, ok := config.Registry.MarkerFor(command.KindOK); !ok {
		return nil, errors.New("localisation: no OK marker configured")
	}

	m := &Machine{
		config:      config,
		interpreter: command.NewInterpreter(config.Registry),
		clock:       config.Clock,
		display:     config.Display,
		sender:      config.Sender,
	}
	if m.clock == nil {
		m.clock = timeutil.RealClock{}
	}
	if m.display == nil {
		m.display = display.Nop{}
	}
	if m.sender == nil {
		m.sender = broadcast.SenderFunc(func(context.Context, broadcast.Batch) error { return nil })
	}
	if m.config.ShutdownGrace <= 0 {
		m.config.ShutdownGrace = DefaultShutdownGrace
	}
	return m, nil
}

// NewSession returns a fresh session in Calibrating.
func (m *Machine) NewSession() *Session {
	now := m.clock.Now()

	tr := origin.New(m.config.Convention)
	if m.config.Recorder != nil {
		tr.SetRecorder(m.config.Recorder)
	}

	s := &Session{
		State:     Calibrating,
		Prompt:    PromptCalibrate,
		Origin:    tr,
		Scheduler: scheduler.New(m.config.FrequencyHz, now),
	}

	m.config.Metrics.SetState(int(s.State))
	m.config.Metrics.SetFrequency(m.config.FrequencyHz)
	m.publish(s, now)
	return s
}

// Snapshot returns the latest published view, or nil before any session exists.
func (m *Machine) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// Run processes frames until the session terminates. It returns nil when the
// loop ends on a shutdown command, the quit key, cancellation or the end of
// the frame stream, and an error only when the provider fails.
func (m *Machine) Run(ctx context.Context, s *Session) error {
	for s.State != Terminated {
		if ctx.Err() != nil {
			m.terminate(s, ReasonCancelled)
			return nil
		}

		frame, err := m.config.Provider.NextFrame(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				m.terminate(s, ReasonCancelled)
				return nil
			case errors.Is(err, vision.ErrFrameUnavailable):
				if !s.unavailable {
					log.Printf("warning: %v", err)
					s.unavailable = true
				}
				s.Skipped++
				m.config.Metrics.IncFramesSkipped()
				if err := m.clock.Sleep(ctx, frameRetryDelay); err != nil {
					m.terminate(s, ReasonCancelled)
					return nil
				}
				continue
			case errors.Is(err, vision.ErrStreamClosed):
				m.terminate(s, ReasonStreamEnded)
				return nil
			default:
				return fmt.Errorf("failed to read frame: %w", err)
			}
		}
		if s.unavailable {
			log.Printf("Frames available again (%d skipped so far)", s.Skipped)
			s.unavailable = false
		}

		ov := m.Step(ctx, s, frame)
		if err := m.display.Show(frame, ov); err != nil {
			log.Printf("warning: display: %v", err)
		}
		frame.Close()

		if s.State == ShuttingDown {
			m.shutdown(ctx, s)
			continue
		}
		if m.display.QuitRequested() {
			log.Println("Quit requested from display")
			m.terminate(s, ReasonQuitKey)
		}
	}
	return nil
}

// Step advances the session by one frame and returns the overlay to draw.
// It never fails: per-frame problems are logged and counted.
func (m *Machine) Step(ctx context.Context, s *Session, frame *vision.Frame) display.Overlay {
	now := m.clock.Now()
	state := s.State

	s.Frames++
	s.Visible = frame.IDs()

	switch s.State {
	case Calibrating:
		m.calibrate(s, frame, now)
	case Running:
		m.track(ctx, s, frame, now)
	}

	m.config.Metrics.ObserveFrame(state.String(), len(frame.Markers), m.clock.Since(now))
	m.publish(s, now)
	return m.overlay(s)
}

func (m *Machine) calibrate(s *Session, frame *vision.Frame, now time.Time) {
	if cal, ok := m.calibrationMarker(frame.Markers); ok {
		s.Origin.Set(cal.Pose)
		s.Prompt = PromptConfirm
		return
	}

	if s.Origin.Initialised() && m.hasOK(frame.Markers) {
		s.State = Running
		s.Prompt = ""
		s.StartedAt = now
		s.Scheduler.Reset(now)
		m.config.Metrics.SetState(int(s.State))
		log.Printf("Calibrated; reporting in %s, broadcast %s", s.Origin.Convention(), describeFrequency(s.Scheduler.FrequencyHz()))
		return
	}

	s.Prompt = PromptCalibrate
}

// calibrationMarker returns the first marker when every visible marker is a
// calibration marker.
func (m *Machine) calibrationMarker(markers []vision.Marker) (vision.Marker, bool) {
	if len(markers) == 0 {
		return vision.Marker{}, false
	}
	for _, mk := range markers {
		role, ok := m.config.Registry.RoleOf(mk.ID)
		if !ok || role.Kind != command.KindCalibration {
			return vision.Marker{}, false
		}
	}
	return markers[0], true
}

func (m *Machine) hasOK(markers []vision.Marker) bool {
	for _, mk := range markers {
		if role, ok := m.config.Registry.RoleOf(mk.ID); ok && role.Kind == command.KindOK {
			return true
		}
	}
	return false
}

func (m *Machine) track(ctx context.Context, s *Session, frame *vision.Frame, now time.Time) {
	due := s.Scheduler.ShouldBroadcast(now)

	if cmd := m.interpreter.Interpret(frame.IDs()); cmd.Type != command.None {
		m.apply(s, cmd, now)
		if s.State == ShuttingDown {
			return
		}
	}

	var batch broadcast.Batch
	if due {
		batch = broadcast.NewBatch()
	}

	epoch := epochSeconds(now)
	elapsed := s.Elapsed(now).Seconds()
	unknown := 0

	for _, mk := range frame.Markers {
		role, ok := m.config.Registry.RoleOf(mk.ID)
		if !ok {
			unknown++
			if s.reportUnknown(mk.ID) {
				log.Printf("warning: marker %d: %v", mk.ID, command.ErrUnknownMarker)
			}
			continue
		}
		if role.Kind != command.KindPlatform {
			continue
		}

		pos, rot, err := s.Origin.RelativePose(mk.Pose)
		if err != nil {
			log.Printf("warning: marker %d: %v", mk.ID, err)
			continue
		}

		row := taglog.Row{
			Epoch:       epoch,
			Elapsed:     elapsed,
			Position:    pos,
			Rotation:    rot,
			Broadcasted: due,
		}
		if err := m.config.Loggers.Log(role.Platform, row); err != nil {
			log.Printf("warning: marker %d: %v", mk.ID, err)
			m.config.Metrics.IncLogError()
			continue
		}
		s.LogRows++
		m.config.Metrics.IncLogRow(strconv.Itoa(role.Platform))

		if due {
			batch.Put(role.Platform, broadcast.EntryFromRow(row))
		}
	}

	if unknown > 0 {
		s.Unknown += unknown
		m.config.Metrics.AddUnknownMarkers(unknown)
	}

	if due && len(batch) > 0 {
		err := m.sender.Send(ctx, batch)
		m.config.Metrics.ObserveBroadcast(err)
		if err != nil {
			log.Printf("warning: broadcast: %v", err)
			return
		}
		s.Broadcasts++
		s.LastBatch = batch
	}
}

func (m *Machine) apply(s *Session, cmd command.Command, now time.Time) {
	changed := false

	switch cmd.Type {
	case command.SetFrequency:
		if s.Scheduler.FrequencyHz() != cmd.FrequencyHz {
			s.Scheduler.SetFrequency(cmd.FrequencyHz)
			m.config.Metrics.SetFrequency(cmd.FrequencyHz)
			log.Printf("Broadcast %s", describeFrequency(cmd.FrequencyHz))
			changed = true
		}
	case command.SetConvention:
		before := s.Origin.Convention()
		if err := s.Origin.SetConventionName(cmd.Convention); err != nil {
			log.Printf("warning: %v", err)
			return
		}
		if s.Origin.Convention() != before {
			log.Printf("Reporting in %s", s.Origin.Convention())
			changed = true
		}
	case command.Shutdown:
		s.State = ShuttingDown
		s.Reason = ReasonShutdownCommand
		s.ShutdownAt = now
		s.Prompt = fmt.Sprintf(PromptShutdown, int(math.Round(m.config.ShutdownGrace.Seconds())))
		m.config.Metrics.SetState(int(s.State))
		log.Printf("Shutdown requested")
		changed = true
	}

	s.LastCommand = cmd
	if changed {
		m.config.Metrics.IncCommand(cmd.Type.String())
	}
}

// shutdown holds the warning for the grace period, then terminates.
func (m *Machine) shutdown(ctx context.Context, s *Session) {
	if err := m.clock.Sleep(ctx, m.config.ShutdownGrace); err != nil {
		log.Printf("warning: shutdown wait interrupted: %v", err)
	}
	m.terminate(s, ReasonShutdownCommand)
}

func (m *Machine) terminate(s *Session, reason Reason) {
	s.State = Terminated
	if s.Reason == ReasonNone {
		s.Reason = reason
	}
	s.Prompt = ""
	m.config.Metrics.SetState(int(s.State))
	m.publish(s, m.clock.Now())
	log.Printf("Localisation terminated (%s)", s.Reason)
}

func (m *Machine) overlay(s *Session) display.Overlay {
	ov := display.Overlay{
		State:  s.State.String(),
		Prompt: s.Prompt,
	}

	switch s.State {
	case Calibrating:
		ov.Level = display.LevelAlert
		if s.Prompt == PromptConfirm {
			ov.Level = display.LevelWaiting
		}
	case Running:
		ov.Level = display.LevelInfo
		ov.Label = s.Origin.Convention().String()
		o := s.Origin.Origin()
		ov.Origin = &o
	default:
		ov.Level = display.LevelAlert
		ov.Dim = true
	}
	return ov
}

func (m *Machine) publish(s *Session, now time.Time) {
	m.snapshot.Store(newSnapshot(s, now))
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func describeFrequency(hz float64) string {
	switch {
	case hz < 0:
		return "always"
	case hz == 0:
		return "never"
	default:
		return fmt.Sprintf("at %g Hz", hz)
	}
}
