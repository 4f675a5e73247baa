package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", 50, 0, false},
		{"valid_custom", "limit=25&offset=10", 25, 10, false},
		{"limit_clamped", "limit=2000", maxLimit, 0, false},
		{"limit_zero", "limit=0", 0, 0, true},
		{"negative_offset", "offset=-5", 0, 0, true},
		{"non_numeric", "limit=abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePagination(httptest.NewRequest("GET", "/?"+tt.query, nil))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got %+v, want limit=%d offset=%d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusBadGateway, "synthesis failed", "upstream 500")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != "synthesis failed" || resp.Detail != "upstream 500" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDecodeJSON(t *testing.T) {
	var req SynthesisRequest
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"hi","repeat":2}`))
	if err := DecodeJSON(r, &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "hi" || req.Repeat != 2 {
		t.Errorf("req = %+v", req)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"hi","voice":"x"}`))
	if err := DecodeJSON(r, &req); err == nil {
		t.Error("expected error for unknown field")
	}
}
