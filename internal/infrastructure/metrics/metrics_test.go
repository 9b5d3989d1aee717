package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersDefaults(t *testing.T) {
	r := New("1.2.3", "site-001")

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"go_goroutines", "graylogic_build_info"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestRegistry_ComponentCollectors(t *testing.T) {
	r := New("dev", "s")

	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "test_total", Help: "test"})
	if err := r.Registerer().Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Add(3)

	if got := testutil.ToFloat64(c); got != 3 {
		t.Errorf("counter = %v, want 3", got)
	}
	if n, err := testutil.GatherAndCount(r.Gatherer(), "graylogic_test_total"); err != nil || n != 1 {
		t.Errorf("GatherAndCount() = %d, %v; want 1, nil", n, err)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := New("1.2.3", "site-001")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), `graylogic_build_info{goversion=`) {
		t.Errorf("body missing graylogic_build_info series")
	}
	if !strings.Contains(string(body), `version="1.2.3"`) {
		t.Errorf("body missing version label")
	}
}
