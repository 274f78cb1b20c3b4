package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/device"
)

func TestShowEndpoints(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/device/id", "Chip ID: 0xf001\n"},
		{"/api/v1/device/cmd", "Command buffer: 0x0\n"},
		{"/api/v1/device/count", "Interrupt count: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("Content-Type = %q", ct)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestStoreCmd(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPut, "/api/v1/device/cmd", "0x2a\n", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Command != 42 {
		t.Errorf("Command = %d, want 42", resp.Command)
	}

	if got := env.do(t, http.MethodGet, "/api/v1/device/cmd", "", nil).Body.String(); got != "Command buffer: 0x2a\n" {
		t.Errorf("cmd after store = %q", got)
	}

	// the simulated hardware signals the dequeue
	if !eventually(t, 2*time.Second, func() bool { return env.dev.Count() == 1 }) {
		t.Errorf("Count() = %d after command, want 1", env.dev.Count())
	}
}

func TestStoreCmdInvalid(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, body := range []string{"", "zz", "0x100000000", "-1", "0b101"} {
		t.Run(body, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/v1/device/cmd", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var e Error
			if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
				t.Fatal(err)
			}
			if e.Code != ErrCodeBadRequest {
				t.Errorf("code = %q", e.Code)
			}
		})
	}

	if got := env.do(t, http.MethodGet, "/api/v1/device/cmd", "", nil).Body.String(); got != "Command buffer: 0x0\n" {
		t.Errorf("cmd after rejected writes = %q", got)
	}
}

func TestStoreCmdAfterDetach(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.dev.Detach()

	rec := env.do(t, http.MethodPut, "/api/v1/device/cmd", "1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestInterrupt(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/v1/device/interrupt", "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp InterruptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Delivered || resp.Status != 2 {
		t.Errorf("response = %+v", resp)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/device/interrupt", `{"status":1}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	if !eventually(t, 2*time.Second, func() bool { return env.dev.Count() == 2 }) {
		t.Fatalf("Count() = %d, want 2", env.dev.Count())
	}
	if got := env.do(t, http.MethodGet, "/api/v1/device/count", "", nil).Body.String(); got != "Interrupt count: 2\n" {
		t.Errorf("count = %q", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/device/interrupt", "{", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rec.Code)
	}
}

func TestInterruptWithoutSimulation(t *testing.T) {
	env := newTestEnv(t, envOptions{noInterrupter: true})

	rec := env.do(t, http.MethodPost, "/api/v1/device/interrupt", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.dev.AddObserver(device.NewJournalObserver(env.journal, env.dev.ID(), nil))

	env.do(t, http.MethodPost, "/api/v1/device/interrupt", "", nil)
	if !eventually(t, 2*time.Second, func() bool {
		h, _ := env.journal.History(t.Context(), "", 0)
		return len(h) == 1
	}) {
		t.Fatal("mutation never journaled")
	}

	rec := env.do(t, http.MethodGet, "/api/v1/device/history?limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.DeviceID != "vf-test" || len(resp.Entries) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if e := resp.Entries[0]; e.Kind != device.JobIncrement || e.Source != device.SourceIRQ || e.Value != 1 {
		t.Errorf("entry = %+v", e)
	}
	if env.journal.lastLimit != 10 || env.journal.lastID != "vf-test" {
		t.Errorf("History called with (%q, %d)", env.journal.lastID, env.journal.lastLimit)
	}
}

func TestHistoryErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, q := range []string{"abc", "-1"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/device/history?limit="+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/device/history", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Errorf("empty history = %d %s", rec.Code, rec.Body)
	}

	env.journal.err = errors.New("disk on fire")
	if rec := env.do(t, http.MethodGet, "/api/v1/device/history", "", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("journal error status = %d, want 500", rec.Code)
	}

	noJournal := newTestEnv(t, envOptions{noJournal: true})
	if rec := noJournal.do(t, http.MethodGet, "/api/v1/device/history", "", nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("no journal status = %d, want 501", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodGet, "/api/v1/device/stats", "", nil)
	var stats device.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.ID != "vf-test" || !stats.Attached || stats.Threshold != device.Threshold || !stats.HasIRQ {
		t.Errorf("stats = %+v", stats)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	var m SystemMetrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.Version != "test" || m.Device.ID != "vf-test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{checks: map[string]HealthChecker{"database": fakeCheck{}}})

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	var h HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || h.Status != "ok" || h.Checks["database"] != "ok" {
		t.Errorf("health = %d %+v", rec.Code, h)
	}

	failing := newTestEnv(t, envOptions{checks: map[string]HealthChecker{"mqtt": fakeCheck{err: errors.New("not connected")}}})
	rec = failing.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "not connected") {
		t.Errorf("failing check = %d %s", rec.Code, rec.Body)
	}

	env.dev.Detach()
	if rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("detached health = %d, want 503", rec.Code)
	}
}
