package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"toolbroker/internal/model"
)

// DiscoveryHeader marks redemption requests sent by another broker's discovery.
const DiscoveryHeader = "X-Broker-Discovery"

// RedeemRequest is the body of PUT /api/auth-codes.
type RedeemRequest struct {
	Code    string `json:"code"`
	Service string `json:"service"`
}

// RedeemResponse is the reply of PUT /api/auth-codes.
type RedeemResponse struct {
	OK    bool         `json:"ok"`
	Grant *model.Grant `json:"grant,omitempty"`
	Error string       `json:"error,omitempty"`
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Discovery redeems a code against an ordered list of candidate backend origins. It exists
// because an out-of-band client cannot always tell which deployment issued its code; it is a
// lookup fallback, not a retry of a failed redemption. Each origin gets one attempt.
type Discovery struct {
	origins []string
	timeout time.Duration
	client  HTTPClient
	logger  *slog.Logger
}

// NewDiscovery creates a Discovery. A nil client means http.DefaultClient.
func NewDiscovery(origins []string, timeout time.Duration, client HTTPClient, logger *slog.Logger) *Discovery {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Discovery{
		origins: origins,
		timeout: timeout,
		client:  client,
		logger:  logger.With("component", "discovery"),
	}
}

// Redeem returns the grant from the first origin answering ok. When none does, the first
// definitive refusal (expired, already consumed, mismatch) is returned. Failing that, if any
// origin could not answer (down, timed out, throttled) ErrUpstreamUnreachable is returned, since
// the code may live there. Only when every origin reports the code unknown is it ErrInvalid.
func (d *Discovery) Redeem(ctx context.Context, code string, service model.Service) (*model.Grant, error) {
	var refusal, unreachable error
	for _, origin := range d.origins {
		grant, err := d.try(ctx, origin, code, service)
		if err == nil {
			d.logger.Info("Code redeemed via discovery origin", "origin", origin, "service", service)
			return grant, nil
		}
		d.logger.Debug("Discovery origin declined", "origin", origin, "error", err)
		switch {
		case refusal == nil && isRefusal(err):
			refusal = err
		case unreachable == nil && errors.Is(err, ErrUpstreamUnreachable):
			unreachable = err
		}
	}
	if refusal != nil {
		return nil, refusal
	}
	if unreachable != nil {
		return nil, unreachable
	}
	return nil, ErrInvalid
}

func isRefusal(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrAlreadyConsumed) ||
		errors.Is(err, ErrServiceMismatch) || errors.Is(err, ErrNoCredential)
}

func (d *Discovery) try(ctx context.Context, origin, code string, service model.Service) (*model.Grant, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	body, err := json.Marshal(RedeemRequest{Code: code, Service: string(service)})
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(origin, "/") + "/api/auth-codes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DiscoveryHeader, "1")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s is rate limiting", ErrUpstreamUnreachable, origin)
	}

	var out RedeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad response from %s (status %d)", ErrUpstreamUnreachable, origin, resp.StatusCode)
	}
	if !out.OK || out.Grant == nil {
		return nil, FromCode(out.Error)
	}
	return out.Grant, nil
}
