package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tokengate/tokengate/internal/client"
	"github.com/tokengate/tokengate/internal/model"
)

// PurchaseResult reports what a bounded quota purchase actually bought.
type PurchaseResult struct {
	Purchased int64   `json:"purchased"`
	CostUSD   float64 `json:"cost"`
}

// Provider is the upstream model-token vendor.
type Provider interface {
	// GetPricing returns per-1k-token USD pricing for one model.
	GetPricing(ctx context.Context, modelID string) (model.UpstreamPrice, error)
	// PurchaseQuota buys up to amount tokens of modelID without exceeding
	// budgetUSD.
	PurchaseQuota(ctx context.Context, modelID string, amount int64, budgetUSD float64) (PurchaseResult, error)
	// ChatCompletion forwards a raw inference request body and returns the
	// upstream status and body verbatim.
	ChatCompletion(ctx context.Context, body []byte) (int, []byte, error)
}

// Client talks to the provider's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
}

func New(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey}
}

var _ Provider = (*Client)(nil)

func (c *Client) GetPricing(ctx context.Context, modelID string) (model.UpstreamPrice, error) {
	var price model.UpstreamPrice
	if err := c.getJSON(ctx, "/v1/pricing/"+modelID, &price); err != nil {
		return model.UpstreamPrice{}, err
	}
	if price.Model == "" {
		price.Model = modelID
	}
	if price.InputPer1K <= 0 && price.OutputPer1K <= 0 {
		return model.UpstreamPrice{}, fmt.Errorf("no pricing for model %s", modelID)
	}
	return price, nil
}

func (c *Client) PurchaseQuota(ctx context.Context, modelID string, amount int64, budgetUSD float64) (PurchaseResult, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  modelID,
		"amount": amount,
		"budget": budgetUSD,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/quota/purchase", payload)
	if err != nil {
		return PurchaseResult{}, err
	}
	if status != http.StatusOK {
		return PurchaseResult{}, fmt.Errorf("quota purchase failed: status %d: %s", status, truncate(body, 256))
	}
	var result PurchaseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to parse purchase response: %w", err)
	}
	if result.Purchased <= 0 {
		return PurchaseResult{}, fmt.Errorf("provider purchased no quota for model %s", modelID)
	}
	return result, nil
}

func (c *Client) ChatCompletion(ctx context.Context, body []byte) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, "/v1/chat/completions", body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upstream request failed: status %d: %s", status, truncate(body, 256))
	}
	return json.Unmarshal(body, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		return 0, nil, err
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
