package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// expectedStatus is the body contract of the health endpoint. The ALB health
// check only asserts the 200; the verifier asserts the body too.
const expectedStatus = "ok"

// Verifier polls the health endpoint through the public entry point on a
// fixed interval with a fixed attempt budget. One conforming response within
// the budget is success; an exhausted budget is failure.
type Verifier struct {
	Client   *http.Client
	Attempts int
	Interval time.Duration
	log      zerolog.Logger
}

// NewVerifier creates a Verifier with the given budget.
func NewVerifier(attempts int, interval time.Duration, log zerolog.Logger) *Verifier {
	return &Verifier{
		Client:   &http.Client{Timeout: 5 * time.Second},
		Attempts: attempts,
		Interval: interval,
		log:      log,
	}
}

// Verify probes url until a probe conforms or the budget is exhausted. The
// first probe fires immediately, the rest on the interval.
func (v *Verifier) Verify(ctx context.Context, url string) error {
	ticker := time.NewTicker(v.Interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= v.Attempts; attempt++ {
		if err := v.probe(ctx, url); err != nil {
			lastErr = err
			v.log.Warn().Err(err).Int("attempt", attempt).Int("budget", v.Attempts).Msg("health probe failed")
		} else {
			v.log.Info().Int("attempt", attempt).Str("url", url).Msg("health probe succeeded")
			return nil
		}

		if attempt == v.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return fmt.Errorf("health check failed after %d attempts: %w", v.Attempts, lastErr)
}

// probe issues one request and checks the full contract: HTTP 200 with a
// JSON body whose status field is "ok".
func (v *Verifier) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("non-JSON body %q", truncate(body, 64))
	}
	if payload.Status != expectedStatus {
		return fmt.Errorf("status field %q, want %q", payload.Status, expectedStatus)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
