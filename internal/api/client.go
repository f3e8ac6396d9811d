// internal/api/client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coldchain/trucksim/pkg/core"
)

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// Client handles communication with the dispatch server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the dispatch server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

type customerDTO struct {
	Name string  `json:"name"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
}

// Customers fetches the dispatch table. The order of the response is the
// customer numbering.
func (c *Client) Customers(ctx context.Context) ([]core.Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/customers", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("customers request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("customers returned status %d", resp.StatusCode)
	}

	var dtos []customerDTO
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("failed to decode customers: %w", err)
	}

	customers := make([]core.Customer, 0, len(dtos))
	for _, d := range dtos {
		customers = append(customers, core.Customer{
			Name:     d.Name,
			Location: core.Location{Lon: d.Lon, Lat: d.Lat},
		})
	}
	return customers, nil
}
