package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationAdapter = (*HTTPAdapter)(nil)

// HTTPAdapter talks to a generation provider with an async job API:
// POST /v1/generations returns a task id, GET /v1/generations/{id} reports
// progress. The per-call client timeout is independent of the worker's
// aggregate poll budget.
type HTTPAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string, callTimeout time.Duration) (*HTTPAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("generation backend base url empty")
	}
	return &HTTPAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: callTimeout},
	}, nil
}

type generationParams struct {
	Prompt string `json:"prompt"`
}

func (a *HTTPAdapter) ValidateParams(params json.RawMessage) error {
	var p generationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidParams)
	}
	return nil
}

func (a *HTTPAdapter) Submit(ctx context.Context, params json.RawMessage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v1/generations", bytes.NewReader(params))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveBackendCall("submit", latency, false)
		return "", fmt.Errorf("%w: %v", domain.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		metrics.ObserveBackendCall("submit", latency, false)
		return "", fmt.Errorf("%w: http %d", domain.ErrAdapterUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		metrics.ObserveBackendCall("submit", latency, false)
		return "", fmt.Errorf("%w: http %d", domain.ErrInvalidParams, resp.StatusCode)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.ObserveBackendCall("submit", latency, false)
		return "", fmt.Errorf("%w: decode: %v", domain.ErrAdapterUnavailable, err)
	}
	if payload.ID == "" {
		metrics.ObserveBackendCall("submit", latency, false)
		return "", fmt.Errorf("%w: empty task id", domain.ErrAdapterUnavailable)
	}
	metrics.ObserveBackendCall("submit", latency, true)
	return payload.ID, nil
}

func (a *HTTPAdapter) Poll(ctx context.Context, externalRef string) (adapter.PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/v1/generations/"+externalRef, nil)
	if err != nil {
		return adapter.PollResult{}, err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveBackendCall("poll", latency, false)
		return adapter.PollResult{}, fmt.Errorf("%w: %v", domain.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.ObserveBackendCall("poll", latency, false)
		return adapter.PollResult{}, fmt.Errorf("%w: http %d", domain.ErrAdapterUnavailable, resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Output string `json:"output"` // base64 artifact bytes
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.ObserveBackendCall("poll", latency, false)
		return adapter.PollResult{}, fmt.Errorf("%w: decode: %v", domain.ErrAdapterUnavailable, err)
	}
	metrics.ObserveBackendCall("poll", latency, true)

	switch strings.ToLower(payload.Status) {
	case "succeeded", "completed", "success":
		raw, err := base64.StdEncoding.DecodeString(payload.Output)
		if err != nil {
			return adapter.PollResult{}, fmt.Errorf("%w: bad output encoding: %v", domain.ErrAdapterUnavailable, err)
		}
		return adapter.PollResult{State: adapter.PollSucceeded, Payload: raw}, nil
	case "failed", "error":
		reason := payload.Error
		if reason == "" {
			reason = "backend reported failure"
		}
		return adapter.PollResult{State: adapter.PollFailed, Reason: reason}, nil
	default:
		// queued / processing / anything unrecognized keeps the loop going
		return adapter.PollResult{State: adapter.PollRunning}, nil
	}
}
