package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client wraps calls to the agentlink API made by trusted backends
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// GetAgent fetches the view of an agent credential
func (c *Client) GetAgent(ctx context.Context, id string) (*AgentView, error) {
	path := fmt.Sprintf("/api/agents/%s", url.PathEscape(id))

	var out ApiResponse[AgentView]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// Query asks the agent behind id and returns its answer
func (c *Client) Query(ctx context.Context, id, input string) (string, error) {
	path := fmt.Sprintf("/api/agents/%s/query", url.PathEscape(id))

	var out ApiResponse[QueryResponse]
	if err := c.doJSON(ctx, http.MethodPost, path, &QueryRequest{Input: input}, &out); err != nil {
		return "", err
	}

	return out.Data.Output, nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Surface the envelope message when there is one
		b, _ := io.ReadAll(resp.Body)
		var failed ApiResponse[any]
		if json.Unmarshal(b, &failed) == nil && failed.Message != "" {
			return fmt.Errorf("[SDK]: '%s %s' failed: %d: %s", method, path, resp.StatusCode, failed.Message)
		}
		return fmt.Errorf("[SDK]: '%s %s' failed: %d: %s", method, path, resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
