// Package app wires the configured collaborators around the localisation
// state machine and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/capture"
	"github.com/ayusman/arucoloc/internal/config"
	"github.com/ayusman/arucoloc/internal/display"
	"github.com/ayusman/arucoloc/internal/hook"
	"github.com/ayusman/arucoloc/internal/localisation"
	"github.com/ayusman/arucoloc/internal/metrics"
	"github.com/ayusman/arucoloc/internal/origin"
	"github.com/ayusman/arucoloc/internal/server"
	"github.com/ayusman/arucoloc/internal/store"
	"github.com/ayusman/arucoloc/internal/taglog"
	"github.com/ayusman/arucoloc/internal/timeutil"
	"github.com/ayusman/arucoloc/internal/vision"
)

// WindowTitle is the title of the operator window.
const WindowTitle = "arucoloc"

// Options configures an App. Settings is required; the remaining fields
// replace the collaborator that would otherwise be built from Settings.
type Options struct {
	Settings *config.Config

	// Headless disables the operator window.
	Headless bool

	Provider   vision.Provider
	Sender     broadcast.Sender
	Display    display.Display
	Clock      timeutil.Clock
	Registerer prometheus.Registerer
}

// App is one localisation run with everything it talks to.
type App struct {
	settings *config.Config
	clock    timeutil.Clock
	runID    string
	runDir   string

	machine *localisation.Machine
	loggers *taglog.Registry
	store   *store.Store
	metrics *metrics.Collector
	hub     *server.PositionHub
	frames  *display.FrameBuffer
	hook    *hook.Hook

	provider vision.Provider
	sender   broadcast.Sender
	display  display.Display
}

// New builds an App. On error everything opened so far is closed again.
func New(ctx context.Context, opts Options) (a *App, err error) {
	if opts.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	settings := opts.Settings

	a = &App{
		settings: settings,
		clock:    opts.Clock,
		runID:    store.NewRunID(),
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()

	roles, err := settings.BuildRegistry()
	if err != nil {
		return nil, err
	}

	intrinsics, err := settings.Intrinsics()
	if err != nil {
		return nil, err
	}

	started := a.clock.Now()
	a.runDir = RunDir(config.ExpandHome(settings.LoggingFolder), started, a.runID)
	a.loggers, err = taglog.NewRegistry(a.runDir, settings.TagPlatforms())
	if err != nil {
		return nil, fmt.Errorf("failed to create tag loggers: %w", err)
	}
	closers = append(closers, a.loggers)
	log.Printf("Logging %d platforms to %s", len(a.loggers.IDs()), a.runDir)

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.metrics, err = metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var recorder origin.Recorder
	if settings.StorePath != "" {
		a.store, err = openStore(config.ExpandHome(settings.StorePath))
		if err != nil {
			return nil, err
		}
		closers = append(closers, a.store)

		run := &store.Run{
			ID:          a.runID,
			StartedAt:   started,
			LogDir:      a.runDir,
			Convention:  settings.Convention().String(),
			FrequencyHz: settings.Defaults.BroadcastFrequency,
		}
		if err := a.store.Runs().Create(run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		recorder = a.store.OriginRecorder(a.runID, a.clock)
		log.Printf("Recording run %s in %s", a.runID, a.store.Path())
	}

	a.provider = opts.Provider
	if a.provider == nil {
		a.provider, err = openCamera(settings, intrinsics)
		if err != nil {
			return nil, err
		}
	}
	closers = append(closers, a.provider)

	serving := settings.HTTP.Addr != ""
	if serving {
		a.hub = server.NewPositionHub()
		a.frames = display.NewFrameBuffer()
	}

	udp := opts.Sender
	if udp == nil {
		udp, err = broadcast.Dial(ctx, settings.UDPServer.IP, settings.UDPServer.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to open broadcast socket: %w", err)
		}
	}
	if a.hub != nil {
		a.sender = broadcast.MultiSender{udp, a.hub}
	} else {
		a.sender = udp
	}
	closers = append(closers, a.sender)

	a.display = opts.Display
	if a.display == nil {
		a.display = buildDisplay(intrinsics, !opts.Headless, a.frames)
	}
	closers = append(closers, a.display)

	a.machine, err = localisation.New(localisation.Config{
		Registry:      roles,
		Loggers:       a.loggers,
		Provider:      a.provider,
		Sender:        a.sender,
		Display:       a.display,
		Recorder:      recorder,
		Clock:         a.clock,
		Metrics:       a.metrics,
		Convention:    settings.Convention(),
		FrequencyHz:   settings.Defaults.BroadcastFrequency,
		ShutdownGrace: settings.Defaults.ShutdownGrace,
	})
	if err != nil {
		return nil, err
	}

	a.hook = hook.New(settings.ShutdownHook.Command, settings.ShutdownHook.Args, settings.ShutdownHook.Timeout)
	return a, nil
}

// RunDir names the log directory of one run: start time then the first
// block of the run id, so directories sort chronologically.
func RunDir(root string, started time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(root, started.Format("2006-01-02_15-04-05")+"_"+short)
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

func openCamera(settings *config.Config, intrinsics vision.Intrinsics) (vision.Provider, error) {
	dict, err := config.DictionaryByName(settings.Camera.Dictionary)
	if err != nil {
		return nil, err
	}

	cam := capture.NewCamera(capture.Options{
		Device: settings.Camera.Device,
		Width:  settings.Camera.Width,
		Height: settings.Camera.Height,
		FPS:    settings.Camera.FPS,
	})

	provider, err := vision.NewArucoProvider(cam, vision.Config{
		MarkerSize: settings.Defaults.MarkerSize,
		Intrinsics: intrinsics,
		Dictionary: dict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", settings.Camera.Device, err)
	}
	log.Printf("Camera %s opened", settings.Camera.Device)
	return provider, nil
}

func buildDisplay(intrinsics vision.Intrinsics, window bool, frames *display.FrameBuffer) display.Display {
	var sinks []display.Sink
	if window {
		sinks = append(sinks, display.NewWindow(WindowTitle))
	}
	if frames != nil {
		sinks = append(sinks, frames)
	}
	if len(sinks) == 0 {
		return display.Nop{}
	}
	return display.NewRenderer(intrinsics, sinks...)
}

// RunID returns the identifier of this run.
func (a *App) RunID() string {
	return a.runID
}

// RunDirPath returns the directory the trajectory logs are written to.
func (a *App) RunDirPath() string {
	return a.runDir
}

// Machine returns the state machine, mainly for its snapshots.
func (a *App) Machine() *localisation.Machine {
	return a.machine
}

// Metrics returns the metrics collector.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// Handler returns the HTTP handler for the status surface.
func (a *App) Handler() *server.Server {
	cfg := server.Config{
		Status:  a.machine,
		Metrics: a.metrics.Handler(),
	}
	if a.frames != nil {
		cfg.Frames = a.frames
	}
	if a.hub != nil {
		cfg.Positions = a.hub
	}
	if a.store != nil {
		cfg.Store = a.store
	}
	return server.New(cfg)
}

// Run starts the status server when configured and processes frames until
// the session terminates. The finished session is returned even on error.
func (a *App) Run(ctx context.Context) (*localisation.Session, error) {
	srvCtx, stopServer := context.WithCancel(ctx)
	srvDone := make(chan error, 1)
	if addr := a.settings.HTTP.Addr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			stopServer()
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		log.Printf("Status server listening on http://%s", ln.Addr())
		go func() {
			srvDone <- a.Handler().Serve(srvCtx, ln)
		}()
	} else {
		srvDone <- nil
	}

	s := a.machine.NewSession()
	runErr := a.machine.Run(ctx, s)

	a.finishRun(s)

	stopServer()
	if err := <-srvDone; err != nil {
		log.Printf("warning: status server: %v", err)
	}

	return s, runErr
}

func (a *App) finishRun(s *localisation.Session) {
	if a.store == nil {
		return
	}
	if err := a.store.Runs().Finish(a.runID, a.clock.Now(), s.Reason.String()); err != nil {
		log.Printf("warning: failed to record end of run: %v", err)
	}
}

// ShutdownRequested reports whether s ended on the operator's shutdown
// command, the only case in which the host hook runs.
func ShutdownRequested(s *localisation.Session) bool {
	return s != nil && s.Reason == localisation.ReasonShutdownCommand
}

// RunHook runs the configured shutdown hook for s. It does nothing unless
// the session ended on a shutdown command and a hook is configured.
func (a *App) RunHook(ctx context.Context, s *localisation.Session) error {
	if !ShutdownRequested(s) || !a.hook.Enabled() {
		return nil
	}

	log.Printf("Running shutdown hook: %s", a.hook)
	out, err := a.hook.Run(ctx, hook.Event{
		RunID:   a.runID,
		Reason:  s.Reason.String(),
		EndedAt: a.clock.Now(),
		LogDir:  a.runDir,
	})
	if out != "" {
		log.Printf("Shutdown hook output: %s", out)
	}
	return err
}

// Close releases every collaborator in reverse order of creation.
func (a *App) Close() error {
	closers := []io.Closer{a.display, a.sender, a.provider}
	if a.store != nil {
		closers = append(closers, a.store)
	}
	closers = append(closers, a.loggers)

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
