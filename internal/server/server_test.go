package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/coolmuscle-steer/internal/coolmuscle"
)

type fakeActuator struct {
	sample coolmuscle.Sample
	err    error
	calls  int
}

func (f *fakeActuator) Snapshot() (coolmuscle.Sample, error) {
	f.calls++
	return f.sample, f.err
}

func newTestServer(act Actuator) *Server {
	cfg := DefaultConfig()
	cfg.Trace.Enabled = false
	return New(cfg, act, &sync.Mutex{}, nil)
}

func TestStateBeforeFirstPoll(t *testing.T) {
	s := newTestServer(&fakeActuator{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestPollPublishesState(t *testing.T) {
	act := &fakeActuator{sample: coolmuscle.Sample{State: "enabled", Valid: true, Pulse: 500, Rad: math.Pi / 4}}
	s := newTestServer(act)
	s.poll()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got coolmuscle.Sample
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pulse != 500 || got.State != "enabled" || !got.Valid {
		t.Errorf("state = %+v", got)
	}
}

func TestPollKeepsStateOnQueryError(t *testing.T) {
	act := &fakeActuator{
		sample: coolmuscle.Sample{State: "enabled"},
		err:    coolmuscle.ErrProtocolTimeout,
	}
	s := newTestServer(act)
	s.poll()

	last := s.Last()
	if last == nil || last.Valid || last.State != "enabled" {
		t.Errorf("Last() = %+v", last)
	}
}

func TestConfigEndpoint(t *testing.T) {
	s := newTestServer(&fakeActuator{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"actuator"`) {
		t.Errorf("GET /api/config = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader("{}")))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/config = %d, want 405", rec.Code)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	act := &fakeActuator{sample: coolmuscle.Sample{State: "disabled", Halted: true}}
	s := newTestServer(act)
	s.poll()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first coolmuscle.Sample
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial sample: %v", err)
	}
	if !first.Halted || first.State != "disabled" {
		t.Errorf("initial sample = %+v", first)
	}

	act.sample = coolmuscle.Sample{State: "enabled", Valid: true, Pulse: -250}
	s.poll()

	var next coolmuscle.Sample
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if next.Pulse != -250 || !next.Valid {
		t.Errorf("broadcast sample = %+v", next)
	}
}

func TestPollWithSimulatedActuator(t *testing.T) {
	sim := coolmuscle.NewSimulator()
	cfg := DefaultConfig()
	ctlCfg, err := cfg.ControllerConfig()
	if err != nil {
		t.Fatalf("ControllerConfig: %v", err)
	}
	ctlCfg.Dial = sim.Dial
	ctl, err := coolmuscle.New(ctlCfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctl.Close()
	for _, step := range []func() error{ctl.Connect, ctl.Init, ctl.On} {
		if err := step(); err != nil {
			t.Fatalf("startup: %v", err)
		}
	}
	if err := ctl.Set(0.5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s := New(cfg, ctl, &sync.Mutex{}, nil)
	s.poll()
	last := s.Last()
	if last == nil || !last.Valid {
		t.Fatalf("Last() = %+v", last)
	}
	if math.Abs(last.Rad-0.5) > ctl.Converter().Resolution(0.5) {
		t.Errorf("rad = %v, want 0.5", last.Rad)
	}

	if err := ctl.Emergency(); err != nil {
		t.Fatalf("Emergency: %v", err)
	}
	queries := 0
	for _, l := range sim.Written() {
		if l == "?96.1" {
			queries++
		}
	}
	s.poll()
	for _, l := range sim.Written() {
		if l == "?96.1" {
			queries--
		}
	}
	if queries != 0 {
		t.Error("halted actuator was queried")
	}
	if last := s.Last(); last.Valid || !last.Halted {
		t.Errorf("halted sample = %+v", last)
	}
}

func TestToggleTrace(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(dir, "config.yaml")
	cfg.Trace.Path = filepath.Join(dir, "trace")
	act := &fakeActuator{sample: coolmuscle.Sample{Stamp: time.Now(), State: "enabled"}}
	s := New(cfg, act, &sync.Mutex{}, nil)

	on, err := s.ToggleTrace()
	if err != nil || !on {
		t.Fatalf("ToggleTrace() = %v, %v; want true", on, err)
	}
	s.poll()
	files, _ := filepath.Glob(filepath.Join(cfg.Trace.Path, "steer_*.csv"))
	if len(files) != 1 {
		t.Errorf("trace files = %v, want one", files)
	}
	if !LoadConfig(cfg.path).Trace.Enabled {
		t.Error("enabled trace not saved")
	}

	if on, err := s.ToggleTrace(); err != nil || on {
		t.Fatalf("second ToggleTrace() = %v, %v; want false", on, err)
	}
	if LoadConfig(cfg.path).Trace.Enabled {
		t.Error("disabled trace not saved")
	}
}

func TestToggleTraceSaveError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "missing", "config.yaml")
	s := New(cfg, &fakeActuator{}, &sync.Mutex{}, nil)

	on, err := s.ToggleTrace()
	if err == nil {
		t.Error("expected save error for missing directory")
	}
	if !on || !s.logger.IsEnabled() {
		t.Error("trace should be switched even when saving fails")
	}
	s.logger.SetEnabled(false)
}
