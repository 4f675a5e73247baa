package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeQueue struct{}

func (fakeQueue) Pending() int     { return 3 }
func (fakeQueue) Completed() int64 { return 7 }
func (fakeQueue) Failed() int64    { return 1 }

func TestCollector(t *testing.T) {
	c := NewCollector(nil, fakeQueue{})
	if n := testutil.CollectAndCount(c); n != 5 {
		t.Errorf("collected %d metrics, want 5", n)
	}

	expected := `
# HELP speechloop_queue_pending Transcription jobs waiting in the queue.
# TYPE speechloop_queue_pending gauge
speechloop_queue_pending 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "speechloop_queue_pending"); err != nil {
		t.Error(err)
	}
}

func TestCollector_NilSources(t *testing.T) {
	c := NewCollector(nil, nil)
	if n := testutil.CollectAndCount(c); n != 5 {
		t.Errorf("collected %d metrics, want 5", n)
	}
}

func TestInstrumentHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/items/42", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestPush(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	SynthesisBytesTotal.Add(10)
	if err := Push(context.Background(), srv.URL, "synthesize"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/synthesize" {
		t.Errorf("path = %s", path)
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != "ok" {
		t.Error("nil error should be ok")
	}
	if Status(context.Canceled) != "error" {
		t.Error("non-nil error should be error")
	}
}
