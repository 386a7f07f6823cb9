package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/signature"
)

const maxResponseBody = 1024 // 1KB cap on captured response bodies

// Protocol headers. Endpoint custom headers never override these.
const (
	HeaderEvent     = "X-Herald-Event"
	HeaderEventID   = "X-Herald-Event-ID"
	HeaderSignature = "X-Herald-Signature"
	UserAgent       = "Herald/1.0"
)

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	EventID     id.ID     `json:"event_id"`
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Response    string    `json:"response,omitempty"`
	LatencyMs   int       `json:"latency_ms"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Executor performs signed HTTP deliveries.
type Executor struct {
	client *http.Client
	now    func() time.Time
}

// NewExecutor creates an executor whose client enforces timeout per request.
func NewExecutor(timeout time.Duration) *Executor {
	return NewExecutorWithClient(&http.Client{Timeout: timeout})
}

// NewExecutorWithClient uses the given client as is.
func NewExecutorWithClient(client *http.Client) *Executor {
	return &Executor{
		client: client,
		now:    time.Now,
	}
}

// Attempt delivers one event to ep exactly once. Any 2xx response is a
// success; everything else, including transport errors and timeouts, is a
// failure. Attempt never retries.
func (x *Executor) Attempt(ctx context.Context, ep *endpoint.Endpoint, eventType string, payload json.RawMessage) Outcome {
	now := x.now()
	out := Outcome{
		EventID:     id.NewEventID(),
		AttemptedAt: now.UTC(),
	}

	body, err := NewEnvelope(out.EventID, eventType, now, payload).Body()
	if err != nil {
		out.Error = fmt.Sprintf("marshal envelope: %v", err)
		return out
	}

	ts := now.UnixMilli()
	sig := signature.Sign(ep.Secret, ts, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		out.Error = fmt.Sprintf("create request: %v", err)
		return out
	}

	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderEventID, out.EventID.String())
	req.Header.Set(HeaderSignature, signature.Header(ts, sig))

	start := time.Now()
	resp, err := x.client.Do(req) //nolint:gosec // destination is the tenant-registered webhook URL
	out.LatencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	out.Response = string(respBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return out
	}
	if readErr != nil {
		// The receiver accepted the event; a truncated body does not change that.
		out.Response = ""
	}
	out.Success = true
	return out
}
