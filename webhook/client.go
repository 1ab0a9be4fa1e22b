// Package webhook makes signed, time-bounded calls to provider URLs.
//
// A call is made once. Retrying is left to the caller: the orchestrators
// report the failure and the purge sweep picks the work up on its next run.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/common"
	"github.com/ruteri/appinstance-provisioning-backend/metrics"
)

// DefaultTimeout bounds a provider call when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// maxResponseBody caps how much of a provider response is kept.
const maxResponseBody = 64 << 10

// Outcome classifies a call.
type Outcome string

const (
	// Delivered means the provider answered, with any status.
	Delivered      Outcome = "delivered"
	TimedOut       Outcome = "timed_out"
	TransportError Outcome = "transport_error"
)

// Kind labels calls in logs and metrics.
type Kind string

const (
	KindInstantiation Kind = "instantiation"
	KindDestruction   Kind = "destruction"
)

// Request describes one provider call.
type Request struct {
	Kind    Kind
	URL     string
	Secret  string
	Payload any
}

// Result is the typed outcome of a call.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
}

// Succeeded reports a delivered call answered with a 2xx status.
func (r Result) Succeeded() bool {
	return r.Outcome == Delivered && r.StatusCode >= 200 && r.StatusCode < 300
}

// Caller is implemented by Client, DryRunCaller and MockCaller.
type Caller interface {
	Call(ctx context.Context, req Request) Result
}

type Config struct {
	Timeout time.Duration
	Log     *slog.Logger
}

type Client struct {
	timeout    time.Duration
	log        *slog.Logger
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		timeout:    timeout,
		log:        cfg.Log,
		httpClient: &http.Client{},
	}
}

// Call POSTs the JSON payload to req.URL. Cancellation of ctx is not
// propagated; the call is bounded by the client timeout only.
func (c *Client) Call(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.call(ctx, req)
	metrics.WebhookCalls.WithLabelValues(string(req.Kind), string(res.Outcome)).Inc()
	metrics.WebhookDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())

	log := c.log.With("kind", req.Kind, "url", req.URL, "outcome", res.Outcome, "duration", time.Since(start))
	switch {
	case res.Succeeded():
		log.Info("Provider call succeeded", "status", res.StatusCode)
	case res.Outcome == Delivered:
		log.Warn("Provider call rejected", "status", res.StatusCode)
	default:
		log.Warn("Provider call failed", "err", res.Err)
	}
	return res
}

func (c *Client) call(ctx context.Context, req Request) Result {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: TransportError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", common.PackageName+"/"+common.Version)
	httpReq.Header.Set(SignatureHeader, Sign(req.Secret, body))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Outcome: TimedOut, Err: err}
		}
		return Result{Outcome: TransportError, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Outcome: TimedOut, StatusCode: resp.StatusCode, Err: err}
		}
		return Result{Outcome: TransportError, StatusCode: resp.StatusCode, Err: err}
	}
	return Result{Outcome: Delivered, StatusCode: resp.StatusCode, Body: respBody}
}

// DryRunCaller logs the call it would have made and reports success.
type DryRunCaller struct {
	Log *slog.Logger
}

func (d *DryRunCaller) Call(_ context.Context, req Request) Result {
	d.Log.Info("Would call provider", "kind", req.Kind, "url", req.URL, "dryRun", true)
	return Result{Outcome: Delivered, StatusCode: http.StatusNoContent}
}
