// Package sms sends text messages through an HTTP SMS gateway.
package sms

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

// DefaultExpiryMessage is sent when no template is configured.
const DefaultExpiryMessage = "Your hotspot access has expired. Buy a new package to reconnect."

// Config configures the gateway client.
type Config struct {
	BaseURL  string
	APIKey   string
	SenderID string
	// ExpiryMessage may contain {phone}, replaced with the recipient number.
	ExpiryMessage string
	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL  string
	apiKey   string
	senderID string
	template string
	http     *http.Client
}

type message struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		panic("sms gateway base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	template := cfg.ExpiryMessage
	if strings.TrimSpace(template) == "" {
		template = DefaultExpiryMessage
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		template: template,
		http:     httpClient,
	}
}

// SendExpiryNotice tells phone that its access has ended.
func (c *Client) SendExpiryNotice(ctx context.Context, phone string) service.CallResult {
	if strings.TrimSpace(phone) == "" {
		return service.Failed("recipient phone is empty")
	}
	return c.Send(ctx, phone, strings.ReplaceAll(c.template, "{phone}", phone))
}

// Send delivers text to phone.
func (c *Client) Send(ctx context.Context, phone, text string) service.CallResult {
	payload, err := json.Marshal(message{To: phone, From: c.senderID, Message: text})
	if err != nil {
		return service.Failed(fmt.Sprintf("encode sms: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return service.Failed(fmt.Sprintf("build sms request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return service.Failed(fmt.Sprintf("sms gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return service.Failed(fmt.Sprintf("sms gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return service.Succeeded("sms accepted")
}

var _ service.Notifier = (*Client)(nil)

// Disabled is used when no gateway is configured; every notice fails without a network call.
type Disabled struct{}

func (Disabled) SendExpiryNotice(context.Context, string) service.CallResult {
	return service.Failed("sms gateway not configured")
}

var _ service.Notifier = Disabled{}
