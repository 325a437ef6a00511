package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncLaunch("openai")
	IncLaunchFailure()
	IncExit("killed")
	SetRunning(2)
	IncURLDetected()
	IncLogEntry("stdout")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"tars_launcher_agent_launches_total":        false,
		"tars_launcher_agent_launch_failures_total": false,
		"tars_launcher_agent_exits_total":           false,
		"tars_launcher_agent_running":               false,
		"tars_launcher_agent_urls_detected_total":   false,
		"tars_launcher_agent_log_entries_total":     false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", mf.GetName())
			}
		}
	}
	for n, ok := range want {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestRegisterIntoSeveralRegistries(t *testing.T) {
	first, second := prometheus.NewRegistry(), prometheus.NewRegistry()
	if err := Register(first); err != nil {
		t.Fatalf("first registry: %v", err)
	}
	if err := Register(second); err != nil {
		t.Fatalf("second registry: %v", err)
	}
	IncLaunch("azure")
	for i, reg := range []*prometheus.Registry{first, second} {
		mfs, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather %d: %v", i, err)
		}
		found := false
		for _, mf := range mfs {
			if mf.GetName() == "tars_launcher_agent_launches_total" {
				found = true
			}
		}
		if !found {
			t.Fatalf("registry %d is missing the launches counter", i)
		}
	}
}

func TestHandlerForServesMetrics(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	IncLaunch("volcengine")

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `tars_launcher_agent_launches_total{provider="volcengine"}`) {
		t.Fatalf("metrics output missing launches: %s", b)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncLaunch("c")
			IncExit("exited")
			IncLogEntry("stderr")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops, must not panic
	IncLaunch("x")
	IncLaunchFailure()
	IncExit("error")
	SetRunning(1)
	IncURLDetected()
	IncLogEntry("info")
}

type errorRegisterer struct{}

func (errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (errorRegisterer) MustRegister(...prometheus.Collector) {}
func (errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(errorRegisterer{})
	if err == nil || err.Error() != "test registration error" {
		t.Fatalf("expected registration error, got %v", err)
	}
}
