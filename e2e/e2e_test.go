package e2e

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/app"
	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/config"
	"github.com/ayusman/arucoloc/internal/display"
	"github.com/ayusman/arucoloc/internal/localisation"
	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/server"
	"github.com/ayusman/arucoloc/internal/store"
	"github.com/ayusman/arucoloc/internal/timeutil"
	"github.com/ayusman/arucoloc/internal/vision"
)

// freeUDPPort returns a port that was free a moment ago.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// writeConfig writes a configuration file the way an operator would edit
// the default one.
func writeConfig(t *testing.T, dir string, port int) string {
	t.Helper()

	text := string(config.DefaultYAML())
	replacements := map[string]string{
		"logging_folder: ~/arucoloc/log":       "logging_folder: " + filepath.Join(dir, "log"),
		"store_path: ~/arucoloc/arucoloc.db":   "store_path: " + filepath.Join(dir, "arucoloc.db"),
		`ip: "<broadcast>"`:                    `ip: "127.0.0.1"`,
		"port: 50000":                          "port: " + strconv.Itoa(port),
		`addr: "127.0.0.1:8080"`:               `addr: ""`,
		"frame: ENU":                           "frame: NED",
		"shutdown_grace: 10s":                  "shutdown_grace: 1s",
		"broadcast_frequency: 1.0 # [Hz], -1 always, 0 never": "broadcast_frequency: 2.0",
	}
	for old, repl := range replacements {
		if !strings.Contains(text, old) {
			t.Fatalf("default configuration no longer contains %q", old)
		}
		text = strings.Replace(text, old, repl, 1)
	}

	path := filepath.Join(dir, "configuration.yaml")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// steppingProvider advances the clock by one frame period before every frame.
type steppingProvider struct {
	*vision.MockProvider
	clock  *timeutil.MockClock
	period time.Duration
}

func (p *steppingProvider) NextFrame(ctx context.Context) (*vision.Frame, error) {
	p.clock.Advance(p.period)
	return p.MockProvider.NextFrame(ctx)
}

func TestE2E_CompleteRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dir := t.TempDir()
	port := freeUDPPort(t)
	settings, err := config.Load(writeConfig(t, dir, port))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := broadcast.OpenListener(ctx, port)
	if err != nil {
		t.Fatalf("OpenListener() error = %v", err)
	}
	defer conn.Close()

	received := make(chan broadcast.Received, 64)
	go broadcast.Listen(ctx, conn, func(r broadcast.Received) { received <- r }, nil)

	// The camera looks straight at the floor; the calibration tag lies two
	// metres away and platform 2 drives along the camera x axis.
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	mock := vision.NewMockProvider().
		AddFrame(vision.MarkerAt(0, r3.Vec{Z: 2})).
		AddFrame(vision.MarkerAt(10, r3.Vec{X: 0.3, Z: 2}))
	for i := 0; i < 20; i++ {
		mock.AddFrame(vision.MarkerAt(2, r3.Vec{X: 0.05 * float64(i), Z: 2}))
	}
	mock.AddFrame(vision.MarkerAt(10, r3.Vec{X: 0.3, Z: 2}), vision.MarkerAt(19, r3.Vec{X: -0.3, Z: 2}))
	provider := &steppingProvider{MockProvider: mock, clock: clock, period: 100 * time.Millisecond}

	a, err := app.New(ctx, app.Options{
		Settings:   settings,
		Provider:   provider,
		Display:    &display.Recorder{},
		Clock:      clock,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	s, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	t.Run("Terminated", func(t *testing.T) {
		if s.State != localisation.Terminated || s.Reason != localisation.ReasonShutdownCommand {
			t.Errorf("session ended %s/%s", s.State, s.Reason)
		}
	})

	t.Run("TrajectoryLog", func(t *testing.T) {
		f, err := os.Open(filepath.Join(a.RunDirPath(), "2_Tag_2.csv"))
		if err != nil {
			t.Fatalf("open log: %v", err)
		}
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if len(records) != 21 {
			t.Fatalf("log has %d lines, want header + 20", len(records))
		}

		// NED swaps x and y and negates z.
		last := records[20]
		y, _ := strconv.ParseFloat(last[3], 64)
		if diff := y - 0.95; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("last y = %v, want 0.95", y)
		}

		broadcasted := 0
		for _, rec := range records[1:] {
			if rec[8] == "1" {
				broadcasted++
			}
		}
		// 2 Hz over 2 s of tracking at 10 fps.
		if broadcasted < 3 || broadcasted > 5 {
			t.Errorf("%d rows broadcast, want about 4", broadcasted)
		}
	})

	t.Run("UDPBroadcast", func(t *testing.T) {
		deadline := time.After(2 * time.Second)
		var got []broadcast.Received
	collect:
		for {
			select {
			case r := <-received:
				got = append(got, r)
				if len(got) == s.Broadcasts {
					break collect
				}
			case <-deadline:
				break collect
			}
		}
		if len(got) == 0 || len(got) != s.Broadcasts {
			t.Fatalf("received %d datagrams, session sent %d", len(got), s.Broadcasts)
		}
		e, ok := got[0].Batch.Get(2)
		if !ok {
			t.Fatalf("datagram without platform 2: %v", got[0].Batch)
		}
		if e[4] != 0 {
			t.Errorf("z = %v, want 0 on the calibration plane", e[4])
		}
	})

	t.Run("RunHistory", func(t *testing.T) {
		st, err := store.New(config.ExpandHome(settings.StorePath))
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}
		defer st.Close()

		ts := httptest.NewServer(server.New(server.Config{Store: st}))
		defer ts.Close()

		resp, err := ts.Client().Get(ts.URL + "/api/runs/" + a.RunID() + "/origins")
		if err != nil {
			t.Fatalf("GET origins: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var body struct {
			Origins []struct {
				Position [3]float64 `json:"position"`
			} `json:"origins"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Origins) != 1 || body.Origins[0].Position != [3]float64{0, 0, 2} {
			t.Errorf("origins = %+v", body.Origins)
		}
	})

	t.Run("Convention", func(t *testing.T) {
		if s.Origin.Convention() != posemath.NED {
			t.Errorf("convention = %s, want NED", s.Origin.Convention())
		}
	})
}
