package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/syntheses", nil)
		RequestID(okHandler).ServeHTTP(rec, req)
		id := rec.Header().Get("X-Request-ID")
		if len(id) != 16 {
			t.Errorf("id = %q, want 16 hex chars", id)
		}
		if req.Header.Get("X-Request-ID") != id {
			t.Error("generated id not set on the request")
		}
	})

	t.Run("client_supplied", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/transcriptions", nil)
		req.Header.Set("X-Request-ID", "batch-42")
		RequestID(okHandler).ServeHTTP(rec, req)
		if id := rec.Header().Get("X-Request-ID"); id != "batch-42" {
			t.Errorf("id = %q, want batch-42", id)
		}
	})
}

// logLines decodes the JSON log lines written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(Logger(zerolog.New(&buf))(okHandler))

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %s", len(lines), buf.String())
	}
	l := lines[0]
	if l["request_id"] != "abc123" || l["path"] != "/api/v1/health" || l["method"] != "GET" {
		t.Errorf("access log = %v", l)
	}
	if l["status"] != float64(200) || l["level"] != "info" {
		t.Errorf("status/level = %v/%v", l["status"], l["level"])
	}
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("decoder exploded")
	})
	h := RequestID(Logger(zerolog.New(&buf))(Recoverer(panicker)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/transcriptions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != "internal server error" {
		t.Errorf("resp = %+v", resp)
	}

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want panic + access: %s", len(lines), buf.String())
	}
	if lines[0]["panic"] != "decoder exploded" || lines[0]["request_id"] == nil {
		t.Errorf("panic log = %v", lines[0])
	}
	if lines[1]["status"] != float64(500) || lines[1]["level"] != "warn" {
		t.Errorf("access log = %v", lines[1])
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		method     string
		wantCode   int
		wantCalled bool
	}{
		{"POST", http.StatusOK, true},
		{"OPTIONS", http.StatusNoContent, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			called := false
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			rec := httptest.NewRecorder()
			CORS(inner).ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/syntheses", nil))
			if rec.Code != tt.wantCode || called != tt.wantCalled {
				t.Errorf("code = %d called = %v, want %d %v", rec.Code, called, tt.wantCode, tt.wantCalled)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("missing Access-Control-Allow-Origin")
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-Request-ID") {
				t.Errorf("Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		target   string
		header   string
		wantCode int
	}{
		{"disabled", "", "/", "", http.StatusOK},
		{"header", "s3cret", "/", "Bearer s3cret", http.StatusOK},
		{"header_wrong", "s3cret", "/", "Bearer nope", http.StatusUnauthorized},
		{"missing", "s3cret", "/", "", http.StatusUnauthorized},
		{"query", "s3cret", "/?token=s3cret", "", http.StatusOK},
		{"query_wrong", "s3cret", "/?token=nope", "", http.StatusUnauthorized},
		{"basic_scheme", "s3cret", "/", "Basic czNjcmV0", http.StatusUnauthorized},
		{"token_prefix_only", "s3cret", "/", "Bearer s3c", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerAuth(tt.token)(okHandler).ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized {
				var resp ErrorResponse
				decodeBody(t, rec, &resp)
				if resp.Error != "unauthorized" {
					t.Errorf("resp = %+v", resp)
				}
			}
		})
	}
}
