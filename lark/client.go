// Package lark is a thin client for the Lark Open Platform list APIs used by
// the sync and proxy paths.
package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"hubtask/config"
	"hubtask/metrics"
	"hubtask/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Response is the envelope every Lark Open API reply uses.
type Response[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// Page is the data payload of a paginated list endpoint.
type Page[T any] struct {
	Items     []T    `json:"items"`
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	maxPages   int
}

func NewClient(cfg *config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Client{
		baseURL:    cfg.LarkBaseURL,
		httpClient: httpClient,
		pageSize:   pageSize,
		maxPages:   cfg.MaxPages,
	}
}

// WithTokenSource returns a copy of the client that authorizes every request
// with a bearer from ts.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c
	clone.httpClient = &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
	return &clone
}

// WithAccessToken is WithTokenSource for a fixed bearer.
func (c *Client) WithAccessToken(token string) *Client {
	return c.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &models.UpstreamError{Status: resp.StatusCode, Msg: "invalid JSON response", Body: raw}
	}
	return nil
}

// FetchAll follows page_token cursors until has_more is false. A non-zero
// upstream code or a transport failure stops the loop; the items gathered so
// far are returned together with the error.
func FetchAll[T any](ctx context.Context, c *Client, label, path string, query url.Values) ([]T, error) {
	logger := logrus.WithFields(logrus.Fields{"endpoint": label})

	var (
		items     []T
		pageToken string
	)
	for pages := 1; ; pages++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page_size", fmt.Sprint(c.pageSize))
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		var resp Response[Page[T]]
		if err := c.getJSON(ctx, path, q, &resp); err != nil {
			return items, err
		}
		if resp.Code != 0 {
			body, _ := json.Marshal(resp)
			return items, &models.UpstreamError{Code: resp.Code, Msg: resp.Msg, Body: body}
		}

		metrics.UpstreamPages.WithLabelValues(label).Inc()
		items = append(items, resp.Data.Items...)

		if !resp.Data.HasMore {
			return items, nil
		}
		if resp.Data.PageToken == "" {
			logger.Warn("has_more set without a page_token, stopping")
			return items, nil
		}
		if c.maxPages > 0 && pages >= c.maxPages {
			logger.WithField("max_pages", c.maxPages).Warn("Page cap reached, stopping")
			return items, nil
		}
		pageToken = resp.Data.PageToken
	}
}
