package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/me/tdist/pkg/model"
)

// Client communicates with the tdist server API on behalf of a worker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nodeID     string
}

// NewClient creates a new worker API client with connection pooling.
func NewClient(baseURL string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// NodeID returns the registered node ID.
func (c *Client) NodeID() string {
	return c.nodeID
}

// Register joins the run and stores the assigned node ID.
func (c *Client) Register(ctx context.Context, name, hostname string) (*model.NodeInfo, error) {
	body, err := json.Marshal(model.RegisterRequest{Name: name, Hostname: hostname})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/nodes", body)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	var info model.NodeInfo
	if err := decodeResponseData(resp, &info); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	c.nodeID = info.ID
	return &info, nil
}

// ReportCollection sends the ordered test IDs this node discovered.
func (c *Client) ReportCollection(ctx context.Context, testIDs []string) error {
	body, err := json.Marshal(model.CollectionReport{TestIDs: testIDs})
	if err != nil {
		return err
	}

	_, err = c.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/nodes/%s/collection", c.nodeID), body)
	if err != nil {
		return fmt.Errorf("report collection: %w", err)
	}
	return nil
}

// Poll asks the server for work. Returns nil if there is neither work nor
// a shutdown signal (204).
func (c *Client) Poll(ctx context.Context) (*model.WorkOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+fmt.Sprintf("/api/v1/nodes/%s/work", c.nodeID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll: HTTP %d: %s", resp.StatusCode, body)
	}

	var order model.WorkOrder
	if err := decodeResponseData(resp, &order); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return &order, nil
}

// ReportComplete sends the result of one executed item.
func (c *Client) ReportComplete(ctx context.Context, report model.CompletionReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	_, err = c.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/nodes/%s/complete", c.nodeID), body)
	if err != nil {
		return fmt.Errorf("report complete: %w", err)
	}
	return nil
}

// RunStatus fetches the current run state.
func (c *Client) RunStatus(ctx context.Context) (*model.RunSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/run", nil)
	if err != nil {
		return nil, fmt.Errorf("run status: %w", err)
	}

	var summary model.RunSummary
	if err := decodeResponseData(resp, &summary); err != nil {
		return nil, fmt.Errorf("run status: %w", err)
	}
	return &summary, nil
}

// doRequest executes an HTTP request and returns the response.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}

	return resp, nil
}

// decodeResponseData extracts the data field from the API response envelope.
func decodeResponseData(resp *http.Response, dest any) error {
	defer resp.Body.Close()

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *model.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	return json.Unmarshal(envelope.Data, dest)
}
