package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/pkg/model"
)

// Client is an HTTP client for the tdist API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a tdist API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: config.DefaultCLIConfig().Timeout},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Get performs a GET request and returns the parsed envelope.
func (c *Client) Get(path string) (*apiResponse, error) {
	url := c.BaseURL + path

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.Logger.Debug("HTTP request", "method", "GET", "url", url)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "body", string(respBody))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// RunStatus fetches the current run with its nodes.
func (c *Client) RunStatus() (*model.RunSummary, error) {
	resp, err := c.Get("/api/v1/run")
	if err != nil {
		return nil, err
	}
	var summary model.RunSummary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		return nil, fmt.Errorf("parse run status: %w", err)
	}
	return &summary, nil
}

// Results fetches the per-item results of the current run.
func (c *Client) Results() ([]model.ItemResult, error) {
	resp, err := c.Get("/api/v1/run/results")
	if err != nil {
		return nil, err
	}
	var results []model.ItemResult
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return results, nil
}

// Runs fetches run history, newest first.
func (c *Client) Runs(limit, offset int) ([]model.Run, *model.Pagination, error) {
	resp, err := c.Get(fmt.Sprintf("/api/v1/runs?limit=%d&offset=%d", limit, offset))
	if err != nil {
		return nil, nil, err
	}
	var runs []model.Run
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		return nil, nil, fmt.Errorf("parse runs: %w", err)
	}
	return runs, resp.Pagination, nil
}

// GetRun fetches one stored run with its results.
func (c *Client) GetRun(id string) (*model.RunSummary, error) {
	resp, err := c.Get("/api/v1/runs/" + id)
	if err != nil {
		return nil, err
	}
	var summary model.RunSummary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	return &summary, nil
}

// Nodes fetches the registered worker nodes.
func (c *Client) Nodes() ([]model.NodeInfo, error) {
	resp, err := c.Get("/api/v1/nodes")
	if err != nil {
		return nil, err
	}
	var nodes []model.NodeInfo
	if err := json.Unmarshal(resp.Data, &nodes); err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	return nodes, nil
}
