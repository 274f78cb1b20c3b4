package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/config"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/logging"
	"github.com/nerrad567/virtfoo-core/internal/sim"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv     *Server
	dev     *device.Device
	plat    *sim.Platform
	journal *fakeJournal
	handler http.Handler
}

type envOptions struct {
	secret        string
	noJournal     bool
	noInterrupter bool
	checks        map[string]HealthChecker
	origins       []string
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// newTestEnv attaches a device to quiet simulated hardware and builds a server around it.
func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	plat := sim.NewPlatform(sim.Config{IRQ: 37, Hardware: sim.HardwareConfig{QuietInit: true}})
	dev, err := device.Attach(context.Background(), plat, device.Options{ID: "vf-test", MonitorInterval: time.Hour})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() {
		dev.Detach()
		plat.Close()
	})

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:     config.CORSConfig{AllowedOrigins: opts.origins},
		},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: opts.secret, Issuer: "virtfoo", AccessTokenTTL: 15}},
		Logger:   testLogger(),
		Device:   dev,
		Checks:   opts.checks,
		Version:  "test",
	}
	env := &testEnv{dev: dev, plat: plat}
	if !opts.noJournal {
		env.journal = &fakeJournal{}
		deps.Journal = env.journal
	}
	if !opts.noInterrupter {
		deps.Interrupter = plat.Hardware()
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type fakeJournal struct {
	mu        sync.Mutex
	entries   []device.JournalEntry
	err       error
	lastLimit int
	lastID    string
}

func (j *fakeJournal) Record(_ context.Context, deviceID string, m device.Mutation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append([]device.JournalEntry{{
		DeviceID: deviceID, Seq: m.Seq, Kind: m.Kind, Source: m.Source, Value: m.Value, CreatedAt: m.At,
	}}, j.entries...)
	return nil
}

func (j *fakeJournal) History(_ context.Context, deviceID string, limit int) ([]device.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastLimit, j.lastID = limit, deviceID
	if j.err != nil {
		return nil, j.err
	}
	return append([]device.JournalEntry(nil), j.entries...), nil
}

type fakeCheck struct{ err error }

func (c fakeCheck) HealthCheck(context.Context) error { return c.err }
