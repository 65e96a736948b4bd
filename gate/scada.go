package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paddyops/awd/awd"
)

// SCADAClient is the HTTP implementation of Actuator against the external
// gate command API.
type SCADAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSCADAClient creates a SCADA actuator client.
func NewSCADAClient(baseURL, apiKey string) *SCADAClient {
	return &SCADAClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendCommandRequest struct {
	StationCode    string  `json:"station_code"`
	GateLevel      int     `json:"gate_level"`
	StartTime      string  `json:"start_time"`
	FieldID        string  `json:"field_id,omitempty"`
	TargetFlowRate float64 `json:"target_flow_rate,omitempty"`
}

type sendCommandResponse struct {
	CommandID string `json:"command_id"`
}

// SendCommand forwards a gate command. The actuator deduplicates on
// (station_code, start_time), so retries are safe.
func (c *SCADAClient) SendCommand(ctx context.Context, cmd awd.GateCommand) (string, error) {
	body, err := json.Marshal(sendCommandRequest{
		StationCode:    cmd.StationCode,
		GateLevel:      cmd.GateLevel,
		StartTime:      cmd.StartTime.UTC().Format(time.RFC3339),
		FieldID:        cmd.FieldID,
		TargetFlowRate: cmd.TargetFlowRateM3S,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gate command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/gates/command", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gate command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gate actuator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gate actuator returned %d", resp.StatusCode)
	}

	var out sendCommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gate command response: %w", err)
	}
	return out.CommandID, nil
}

type commandStatusResponse struct {
	Complete  bool      `json:"complete"`
	GateLevel int       `json:"gate_level"`
	StartTime time.Time `json:"start_time"`
}

// CommandStatus polls a previously sent command.
func (c *SCADAClient) CommandStatus(ctx context.Context, commandID string) (awd.CommandStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/gates/command/"+commandID, nil)
	if err != nil {
		return awd.CommandStatus{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return awd.CommandStatus{}, fmt.Errorf("poll gate actuator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return awd.CommandStatus{}, fmt.Errorf("gate actuator returned %d", resp.StatusCode)
	}

	var out commandStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return awd.CommandStatus{}, fmt.Errorf("decode status response: %w", err)
	}
	return awd.CommandStatus{
		Complete:  out.Complete,
		GateLevel: out.GateLevel,
		StartTime: out.StartTime,
	}, nil
}

// Health checks the actuator's health endpoint.
func (c *SCADAClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call gate actuator health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gate actuator health returned %d", resp.StatusCode)
	}
	return nil
}
