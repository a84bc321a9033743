// Package custody talks to an external custody service over HTTP. The service
// holds the keys and broadcasts transfers; this client only asks.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxBody = 1 << 20

var ErrRejected = errors.New("transfer rejected by custody service")

type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid custody base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// BalanceOf fetches GET /v1/accounts/{account}/balance.
func (c *Client) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(account)+"/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}

	raw := gjson.GetBytes(body, "balance")
	if !raw.Exists() {
		return decimal.Zero, fmt.Errorf("balance missing in custody response")
	}
	bal, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", raw.String(), err)
	}
	return bal, nil
}

type transferRequest struct {
	Reference string `json:"reference"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

// Transfer posts to /v1/transfers and succeeds only on a confirmed status.
// An empty reference gets a random one.
func (c *Client) Transfer(ctx context.Context, reference, from, to string, amount decimal.Decimal) error {
	if reference == "" {
		reference = uuid.NewString()
	}
	payload, err := json.Marshal(transferRequest{
		Reference: reference,
		From:      from,
		To:        to,
		Amount:    amount.String(),
	})
	if err != nil {
		return err
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/transfers", payload)
	if err != nil {
		return err
	}

	status := gjson.GetBytes(body, "status").String()
	if status != "confirmed" {
		return fmt.Errorf("%w: status %q, reason %q", ErrRejected, status, gjson.GetBytes(body, "reason").String())
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("custody %s %s: %d %s", method, path, resp.StatusCode, msg)
	}
	return body, nil
}

var _ interfaces.AssetGateway = (*Client)(nil)
