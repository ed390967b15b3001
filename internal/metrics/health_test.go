package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startEmbeddedNATS(t *testing.T) (*server.Server, string) {
	t.Helper()
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create nats-server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server failed to start")
	}

	t.Cleanup(func() { ns.Shutdown() })
	return ns, ns.ClientURL()
}

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type fakeRemote struct{ err error }

func (f fakeRemote) Ping(context.Context) error { return f.err }

type fakeCodec bool

func (f fakeCodec) Available() bool { return bool(f) }

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, nil)
	status := checker.Liveness()
	if !status.OK {
		t.Fatal("liveness should always return OK=true")
	}
}

func TestHealthChecker_Readiness_AllOK(t *testing.T) {
	_, url := startEmbeddedNATS(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	checker := NewHealthChecker(nc, fakePinger{}, fakeRemote{}, fakeCodec(true))
	status := checker.Readiness()
	if !status.OK {
		t.Fatalf("expected readiness OK=true, got checks: %+v", status.Checks)
	}

	want := map[string]string{"nats": "connected", "catalog": "ok", "s3": "ok", "codec": "configured"}
	for _, c := range status.Checks {
		if want[c.Name] != c.Status {
			t.Errorf("check %s = %s, want %s", c.Name, c.Status, want[c.Name])
		}
		delete(want, c.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing checks: %v", want)
	}
}

func TestHealthChecker_Readiness_NATSDown(t *testing.T) {
	ns, url := startEmbeddedNATS(t)
	nc, err := nats.Connect(url, nats.NoReconnect())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	ns.Shutdown()
	time.Sleep(100 * time.Millisecond)

	checker := NewHealthChecker(nc, nil, nil, nil)
	status := checker.Readiness()
	if status.OK {
		t.Fatal("expected readiness OK=false when NATS is down")
	}
	for _, c := range status.Checks {
		if c.Name == "nats" && c.Status != "disconnected" {
			t.Fatalf("expected nats disconnected, got %s", c.Status)
		}
	}
}

func TestHealthChecker_Readiness_CatalogError(t *testing.T) {
	checker := NewHealthChecker(nil, fakePinger{err: errors.New("database not open")}, nil, nil)
	status := checker.Readiness()
	if status.OK {
		t.Fatal("expected readiness OK=false when catalog ping fails")
	}
	if len(status.Checks) != 1 || status.Checks[0].Status != "error" || status.Checks[0].Error == "" {
		t.Fatalf("unexpected checks: %+v", status.Checks)
	}
}

func TestHealthChecker_Readiness_S3Error(t *testing.T) {
	checker := NewHealthChecker(nil, nil, fakeRemote{err: errors.New("no such bucket")}, nil)
	if checker.Readiness().OK {
		t.Fatal("expected readiness OK=false when s3 ping fails")
	}
}

func TestHealthChecker_Readiness_CodecNotConfigured(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, fakeCodec(false))
	status := checker.Readiness()
	if !status.OK {
		t.Fatal("a missing decoder must not fail readiness")
	}
	if status.Checks[0].Status != "not_configured" {
		t.Fatalf("codec status = %s", status.Checks[0].Status)
	}
}

func TestHealthChecker_Readiness_NilDeps(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, nil)
	status := checker.Readiness()
	if !status.OK {
		t.Fatal("expected readiness OK=true with nil dependencies (no checks fail)")
	}
}

func TestHealthServer_Endpoints(t *testing.T) {
	checker := NewHealthChecker(nil, fakePinger{}, nil, nil)
	mux := HealthMux(config.HealthConfig{LivenessPath: "/healthz", ReadinessPath: "/readyz"}, checker)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", w.Code)
	}
	var liveResp HealthStatus
	json.Unmarshal(w.Body.Bytes(), &liveResp)
	if !liveResp.OK {
		t.Fatal("liveness response should have OK=true")
	}

	req = httptest.NewRequest("GET", "/readyz", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("readiness: expected 200, got %d", w.Code)
	}

	failing := HealthMux(config.HealthConfig{}, NewHealthChecker(nil, fakePinger{err: errors.New("closed")}, nil, nil))
	req = httptest.NewRequest("GET", "/readyz", nil)
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing readiness: expected 503, got %d", w.Code)
	}
}
