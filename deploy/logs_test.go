package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boskiv/terra-rails-aws/awsc"
	"github.com/boskiv/terra-rails-aws/config"
)

// fakeLogsServer speaks just enough of the CloudWatch Logs JSON protocol for
// FollowLogs: two streams whose events become visible on a given per-stream
// poll, so ingestion delay is reproducible.
type fakeLogsServer struct {
	mu      sync.Mutex
	calls   map[string]int
	streams map[string][]fakeLogEvent
}

type fakeLogEvent struct {
	ts       int64
	msg      string
	fromPoll int
}

func newFakeLogsServer(streams map[string][]fakeLogEvent) *fakeLogsServer {
	return &fakeLogsServer{calls: make(map[string]int), streams: streams}
}

func (f *fakeLogsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	switch r.Header.Get("X-Amz-Target") {
	case "Logs_20140328.DescribeLogStreams":
		var names []map[string]any
		f.mu.Lock()
		for name := range f.streams {
			names = append(names, map[string]any{"logStreamName": name})
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"logStreams": names})
	case "Logs_20140328.GetLogEvents":
		f.getLogEvents(w, r)
	default:
		http.Error(w, "unexpected target", http.StatusBadRequest)
	}
}

func (f *fakeLogsServer) getLogEvents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogStreamName string  `json:"logStreamName"`
		NextToken     *string `json:"nextToken"`
		StartTime     *int64  `json:"startTime"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.calls[req.LogStreamName]++
	poll := f.calls[req.LogStreamName]
	all := f.streams[req.LogStreamName]
	f.mu.Unlock()

	var visible []fakeLogEvent
	for _, e := range all {
		if e.fromPoll <= poll {
			visible = append(visible, e)
		}
	}

	// The cursor is an index into the stream's event list, like the real
	// API's forward token it only ever moves forward.
	from := 0
	if req.NextToken != nil {
		fmt.Sscanf(*req.NextToken, "idx:%d", &from)
	}

	var events []map[string]any
	for _, e := range visible[min(from, len(visible)):] {
		if req.NextToken == nil && req.StartTime != nil && e.ts < *req.StartTime {
			continue
		}
		events = append(events, map[string]any{"timestamp": e.ts, "message": e.msg})
	}
	token := fmt.Sprintf("idx:%d", len(visible))
	json.NewEncoder(w).Encode(map[string]any{
		"events":            events,
		"nextForwardToken":  token,
		"nextBackwardToken": token,
	})
}

func testDeployer(t *testing.T, endpoint string) *Deployer {
	t.Helper()
	clients, err := awsc.New(context.Background(), "us-east-1", endpoint)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{App: "rails", Env: "test", Region: "us-east-1", DesiredCount: 2}
	return New(clients, cfg, zerolog.Nop())
}

// An event that lands late on one stream, with a timestamp older than
// another stream's newest, must still come through on a later poll.
func TestFollowLogsEmitsLateStreamEvents(t *testing.T) {
	base := time.Now().UnixMilli()
	fake := newFakeLogsServer(map[string][]fakeLogEvent{
		"web/a": {
			{ts: base + 1000, msg: "A1", fromPoll: 1},
		},
		"web/b": {
			{ts: base + 900, msg: "B1", fromPoll: 1},
			{ts: base + 950, msg: "B2", fromPoll: 2},
		},
	})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	oldInterval := followPollInterval
	followPollInterval = 5 * time.Millisecond
	defer func() { followPollInterval = oldInterval }()

	d := testDeployer(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]bool)
	err := d.FollowLogs(ctx, func(l LogLine) {
		mu.Lock()
		seen[l.Message] = true
		done := seen["A1"] && seen["B1"] && seen["B2"]
		mu.Unlock()
		if done {
			cancel()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("FollowLogs: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []string{"A1", "B1", "B2"} {
		if !seen[want] {
			t.Errorf("event %s was never emitted", want)
		}
	}
}

func TestWaitStableSurfacesPersistentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"__type":"AccessDeniedException","message":"not authorized"}`))
	}))
	defer srv.Close()

	oldInterval := stablePollInterval
	stablePollInterval = 5 * time.Millisecond
	defer func() { stablePollInterval = oldInterval }()

	d := testDeployer(t, srv.URL)

	start := time.Now()
	err := d.WaitStable(context.Background())
	if err == nil {
		t.Fatal("expected error when every describe fails")
	}
	if !strings.Contains(err.Error(), "describing service") {
		t.Errorf("error %q should carry the describe failure", err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Second {
		t.Errorf("gave up after %v, should bail well before the stability timeout", elapsed)
	}
}
