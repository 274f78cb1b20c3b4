package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/config"
)

// fakeInflux answers pings and records write bodies.
type fakeInflux struct {
	mu      sync.Mutex
	writes  []string
	healthy bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/api/v2/write") {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !f.healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "virtfoo",
		Bucket:        "virtfoo",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	c, err := Connect(context.Background(), cfg, nil)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() error = %v, want ErrDisabled", err)
	}
	if c != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnectUnhealthy(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{healthy: false})
	defer srv.Close()

	_, err := Connect(context.Background(), testConfig(srv.URL), nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCounterRecorderWritesPoints(t *testing.T) {
	fake := &fakeInflux{healthy: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := Connect(context.Background(), testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	rec := NewCounterRecorder(c, "vf0")
	rec.ObserveMutation(device.Mutation{Seq: 3, Kind: device.JobIncrement, Source: device.SourceIRQ, Value: 2, At: time.Now()})
	c.Flush()

	deadline := time.Now().Add(3 * time.Second)
	for fake.body() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	body := fake.body()
	for _, want := range []string{"device_counter,", "device_id=vf0", "kind=increment", "source=irq", "value=2i", "seq=3i"} {
		if !strings.Contains(body, want) {
			t.Errorf("write body %q missing %q", body, want)
		}
	}
}

func TestClosedClient(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{healthy: true})
	defer srv.Close()

	c, err := Connect(context.Background(), testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	// Must not panic.
	c.WriteMutation("vf0", device.Mutation{Kind: device.JobReset})
	c.Flush()

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
}

func TestCounterPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := counterPoint("vf0", device.Mutation{Seq: 9, Kind: device.JobReset, Source: device.SourceMonitor, Value: 0, At: at})

	if p.Name() != MeasurementCounter {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "vf0" || tags["kind"] != "reset" || tags["source"] != "monitor" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["value"] != int64(0) || fields["seq"] != int64(9) {
		t.Errorf("fields = %v", fields)
	}

	if zero := counterPoint("vf0", device.Mutation{Kind: device.JobIncrement}); zero.Time().IsZero() {
		t.Error("zero mutation time not replaced")
	}
}
