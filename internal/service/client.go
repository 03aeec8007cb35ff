// Package service talks to the markdown extraction service over HTTP.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

const maxErrorBody = 512

// ErrEmptyMarkdown is returned when the service answers without content.
var ErrEmptyMarkdown = errors.New("no markdown content returned from /md endpoint")

// StatusError is a non-2xx answer from the service. Body holds a bounded
// prefix of the response so crash traces stay visible to classification.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Config controls the client.
type Config struct {
	BaseURL        string
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
	FilterMode     string
	CacheBust      string
}

// Client is the extraction service client. It satisfies harvest.HealthProber.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client. A nil httpClient uses a fresh http.Client.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 60 * time.Second
	}
	if cfg.FilterMode == "" {
		cfg.FilterMode = "fit"
	}
	if cfg.CacheBust == "" {
		cfg.CacheBust = "0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// Probe asks /health once. Only a 200 counts as responsive.
func (c *Client) Probe(ctx context.Context) harvest.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return harvest.Unresponsive
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return harvest.Unresponsive
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return harvest.Unresponsive
	}
	return harvest.Responsive
}

type extractRequest struct {
	URL       string  `json:"url"`
	Filter    string  `json:"f"`
	Query     *string `json:"q"`
	CacheBust string  `json:"c"`
}

type extractResponse struct {
	Markdown string `json:"markdown"`
}

// Extract asks /md for the filtered markdown of pageURL.
func (c *Client) Extract(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ExtractTimeout)
	defer cancel()

	payload, err := json.Marshal(extractRequest{URL: pageURL, Filter: c.cfg.FilterMode, CacheBust: c.cfg.CacheBust})
	if err != nil {
		return "", fmt.Errorf("encode extract request: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/md"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call /md: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{Endpoint: "/md", Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode /md response: %w", err)
	}
	if strings.TrimSpace(out.Markdown) == "" {
		return "", ErrEmptyMarkdown
	}
	return out.Markdown, nil
}
