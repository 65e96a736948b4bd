// Package hydraulic is a thin HTTP client for the hydraulic modeling
// service, which converts a desired canal flow rate into a gate level.
package hydraulic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls POST /hydraulic/gate-level with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a hydraulic client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type gateLevelRequest struct {
	StationCode    string  `json:"stationCode"`
	TargetFlowRate float64 `json:"targetFlowRate"`
}

type gateLevelResponse struct {
	GateLevel int `json:"gateLevel"`
}

// GateLevelForFlow asks the hydraulic model which gate level produces the
// target flow rate at a station. Any failure is returned as an error so the
// caller can fall back to the static flow table.
func (c *Client) GateLevelForFlow(ctx context.Context, stationCode string, targetFlowRateM3S float64) (int, error) {
	body, err := json.Marshal(gateLevelRequest{
		StationCode:    stationCode,
		TargetFlowRate: targetFlowRateM3S,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal gate level request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/hydraulic/gate-level", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build gate level request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call hydraulic service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hydraulic service returned %d", resp.StatusCode)
	}

	var out gateLevelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode gate level response: %w", err)
	}
	return out.GateLevel, nil
}
