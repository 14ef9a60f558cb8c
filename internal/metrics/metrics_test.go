package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()

	a.ObserveBatch()

	if got := testutil.ToFloat64(a.BatchesTotal); got != 1 {
		t.Errorf("a.BatchesTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.BatchesTotal); got != 0 {
		t.Errorf("b.BatchesTotal = %v, want 0", got)
	}
}

func TestObserveLine(t *testing.T) {
	m := New()

	m.ObserveLine(LineInserted)
	m.ObserveLine(LineInserted)
	m.ObserveLine(LineParseError)

	if got := testutil.ToFloat64(m.LinesTotal.WithLabelValues(LineInserted)); got != 2 {
		t.Errorf("inserted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LinesTotal.WithLabelValues(LineParseError)); got != 1 {
		t.Errorf("parse_error = %v, want 1", got)
	}
}

func TestObservePublish(t *testing.T) {
	m := New()

	m.ObservePublish("commands", PublishOK, 10)
	m.ObservePublish("commands", PublishFailed, 99)

	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("commands", PublishOK)); got != 1 {
		t.Errorf("ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublishBytes.WithLabelValues("commands")); got != 10 {
		t.Errorf("bytes = %v, want 10 (failed publishes are not counted)", got)
	}
}

func TestGauges(t *testing.T) {
	m := New()

	m.SetQueueDepth(3)
	m.SetMQTTConnected(true)
	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("QueueDepth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.MQTTConnected); got != 1 {
		t.Errorf("MQTTConnected = %v, want 1", got)
	}

	m.SetMQTTConnected(false)
	if got := testutil.ToFloat64(m.MQTTConnected); got != 0 {
		t.Errorf("MQTTConnected = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveLine(LineDuplicate)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `doorgate_ingest_lines_total{result="duplicate"} 1`) {
		t.Errorf("metrics output missing line counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go runtime collector")
	}
}
