// Package client provides the Go SDK for the aegis mitigation service:
// submitting threats, querying mitigation history and effectiveness,
// computing risk scores, and inspecting defense state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to an aegis server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for the server at baseURL. token may be empty
// when the server runs without authentication.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ThreatRequest is the payload for Mitigate.
type ThreatRequest struct {
	ID        string            `json:"id,omitempty"`
	Type      string            `json:"type"`
	RiskScore float64           `json:"risk_score"`
	Details   map[string]string `json:"details,omitempty"`
}

// ActionResult mirrors one executed action's outcome.
type ActionResult struct {
	Action struct {
		Kind        string         `json:"kind"`
		Description string         `json:"description"`
		Params      map[string]any `json:"params,omitempty"`
	} `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MitigationRecord mirrors the server's audit record of one run.
type MitigationRecord struct {
	ThreatID   string         `json:"threat_id"`
	ThreatType string         `json:"threat_type"`
	RiskScore  float64        `json:"risk_score"`
	Severity   string         `json:"severity"`
	Results    []ActionResult `json:"results"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     string         `json:"status"`
}

// HistoryOptions narrows a History query. Zero values are omitted.
type HistoryOptions struct {
	Limit      int
	ThreatType string
	Severity   string
}

// Stats is the per-action-kind effectiveness summary.
type Stats struct {
	Effectiveness float64 `json:"effectiveness"`
	Count         int     `json:"count"`
}

// ScoreResult is the response of Score.
type ScoreResult struct {
	RiskScore float64 `json:"risk_score"`
	Severity  string  `json:"severity"`
}

// Mitigate submits a threat for automated mitigation.
func (c *Client) Mitigate(ctx context.Context, req ThreatRequest) (*MitigationRecord, error) {
	var resp struct {
		Success          bool              `json:"success"`
		MitigationRecord *MitigationRecord `json:"mitigation_record"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/threats/mitigate", req, &resp); err != nil {
		return nil, err
	}
	return resp.MitigationRecord, nil
}

// History returns recorded mitigation runs, newest first.
func (c *Client) History(ctx context.Context, opts HistoryOptions) ([]MitigationRecord, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.ThreatType != "" {
		q.Set("threat_type", opts.ThreatType)
	}
	if opts.Severity != "" {
		q.Set("severity", opts.Severity)
	}

	path := "/api/v1/mitigations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Count   int                `json:"count"`
		Records []MitigationRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Effectiveness returns the per-action-kind effectiveness summary.
func (c *Client) Effectiveness(ctx context.Context) (map[string]Stats, error) {
	var resp map[string]Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/mitigations/effectiveness", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Score computes a time-decayed risk score server-side.
func (c *Client) Score(ctx context.Context, likelihood, impact float64, lastSeen time.Time) (*ScoreResult, error) {
	req := map[string]any{
		"likelihood": likelihood,
		"impact":     impact,
		"last_seen":  lastSeen.Format(time.RFC3339),
	}
	var resp ScoreResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/risk/score", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlockedIPs returns the server's confirmed-blocked IP set.
func (c *Client) BlockedIPs(ctx context.Context) ([]string, error) {
	var resp struct {
		Count      int      `json:"count"`
		BlockedIPs []string `json:"blocked_ips"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/defense/blocked-ips", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BlockedIPs, nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError extracts the server's error message from a non-2xx response.
func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
