package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testVerifier(attempts int) *Verifier {
	return NewVerifier(attempts, time.Millisecond, zerolog.Nop())
}

func TestVerifyFirstProbeSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := testVerifier(3).Verify(context.Background(), srv.URL); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifySucceedsWithinBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := testVerifier(5).Verify(context.Background(), srv.URL); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("probes = %d, want 3", got)
	}
}

func TestVerifyBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testVerifier(4).Verify(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after budget exhaustion")
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Errorf("error %q does not report the budget", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("probes = %d, want 4", got)
	}
}

func TestVerifyRejectsWrongBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong status value", `{"status":"degraded"}`},
		{"missing field", `{"healthy":true}`},
		{"non-JSON", `OK`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if err := testVerifier(1).Verify(context.Background(), srv.URL); err == nil {
				t.Error("expected 200 with non-conforming body to fail")
			}
		})
	}
}

func TestVerifyHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewVerifier(10, time.Minute, zerolog.Nop())
	err := v.Verify(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate([]byte("short"), 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate([]byte("abcdefghij"), 4); got != "abcd..." {
		t.Errorf("truncate = %q", got)
	}
}
