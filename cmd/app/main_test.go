package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func testMux() http.Handler {
	return newHandler(zerolog.Nop())
}

func TestHealthContract(t *testing.T) {
	srv := httptest.NewServer(testMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("body %q is not JSON: %v", body, err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status field = %q, want %q", payload["status"], "ok")
	}
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	srv := httptest.NewServer(testMux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("POST /health should not be served")
	}
}
