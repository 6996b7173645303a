// Package routeraccess talks to the router agent that manages hotspot sessions on MikroTik
// routers.
package routeraccess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netpesa/hotspot-billing/domains/access/be/service"
)

// Config configures the router agent client.
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client revokes hotspot sessions through the router agent.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type revokeBody struct {
	Identity      string `json:"identity"`
	MACAddress    string `json:"mac_address,omitempty"`
	RouterAddress string `json:"router_address"`
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		panic("router agent base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
	}
}

// Revoke drops the session for req.Identity on req.Router. An empty MAC address asks the
// agent to drop every session of the identity.
func (c *Client) Revoke(ctx context.Context, req service.RevokeRequest) service.CallResult {
	payload, err := json.Marshal(revokeBody{
		Identity:      req.Identity,
		MACAddress:    req.MACAddress,
		RouterAddress: req.Router.Address,
	})
	if err != nil {
		return service.Failed(fmt.Sprintf("encode revoke request: %v", err))
	}

	url := fmt.Sprintf("%s/v1/routers/%s/revoke", c.baseURL, req.Router.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return service.Failed(fmt.Sprintf("build revoke request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return service.Failed(fmt.Sprintf("router %s unreachable: %v", req.Router.Name, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return service.Failed(fmt.Sprintf("router %s: status %d: %s", req.Router.Name, resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return service.Succeeded(fmt.Sprintf("router %s: revoked", req.Router.Name))
}

var _ service.RouterClient = (*Client)(nil)
