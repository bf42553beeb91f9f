// Package cloudflare updates a single DNS record through the Cloudflare
// v4 API.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"go.ntppool.org/cdnopt/config"
)

const (
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	maxTries = 3
)

var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: otelhttp.NewTransport(&http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}),
}

// Client manages one DNS record. The zero values of BaseURL and
// HTTPClient select the public API and an instrumented default client.
type Client struct {
	Token    string
	ZoneID   string
	RecordID string
	Name     string
	TTL      int
	Proxied  bool

	BaseURL    string
	HTTPClient *http.Client

	// first retry delay
	retryWait time.Duration
}

// New returns a client for the record described by cfg.
func New(cfg config.Cloudflare) *Client {
	proxied := true
	if cfg.Proxied != nil {
		proxied = *cfg.Proxied
	}
	return &Client{
		Token:    cfg.APIToken,
		ZoneID:   cfg.ZoneID,
		RecordID: cfg.RecordID,
		Name:     cfg.Domain,
		TTL:      cfg.TTL,
		Proxied:  proxied,
	}
}

type Record struct {
	ID         string    `json:"id,omitempty"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	TTL        int       `json:"ttl"`
	Proxied    bool      `json:"proxied"`
	ModifiedOn time.Time `json:"modified_on,omitzero"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success  bool            `json:"success"`
	Errors   []ResponseError `json:"errors"`
	Messages []ResponseError `json:"messages"`
	Result   json.RawMessage `json:"result"`
}

// APIError is returned when the API rejects a request, either with a
// non-2xx status or with success set to false.
type APIError struct {
	StatusCode int
	Errors     []ResponseError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("cloudflare: http status %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, re := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%d: %s", re.Code, re.Message))
	}
	return fmt.Sprintf("cloudflare: http status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Publish points the record at addr.
func (c *Client) Publish(ctx context.Context, addr netip.Addr) error {
	_, err := c.UpdateRecord(ctx, addr)
	return err
}

// UpdateRecord replaces the record content with addr, using an A
// record for IPv4 and AAAA for IPv6.
func (c *Client) UpdateRecord(ctx context.Context, addr netip.Addr) (Record, error) {
	ctx, span := tracing.Start(ctx, "cloudflare.UpdateRecord")
	defer span.End()
	log := logger.FromContext(ctx)

	addr = addr.Unmap()
	rec := Record{
		Type:    "A",
		Name:    c.Name,
		Content: addr.String(),
		TTL:     c.TTL,
		Proxied: c.Proxied,
	}
	if addr.Is6() {
		rec.Type = "AAAA"
	}
	span.SetAttributes(
		attribute.String("dns.name", rec.Name),
		attribute.String("dns.type", rec.Type),
		attribute.String("dns.content", rec.Content),
	)

	body, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}

	updated := Record{}
	err = c.do(ctx, http.MethodPut, c.recordPath(), body, &updated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, fmt.Errorf("updating record %s: %w", c.RecordID, err)
	}

	log.InfoContext(ctx, "dns record updated", "name", updated.Name, "type", updated.Type, "content", updated.Content)
	return updated, nil
}

// GetRecord fetches the current record.
func (c *Client) GetRecord(ctx context.Context) (Record, error) {
	ctx, span := tracing.Start(ctx, "cloudflare.GetRecord")
	defer span.End()

	rec := Record{}
	if err := c.do(ctx, http.MethodGet, c.recordPath(), nil, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, fmt.Errorf("fetching record %s: %w", c.RecordID, err)
	}
	return rec, nil
}

func (c *Client) recordPath() string {
	return fmt.Sprintf("/zones/%s/dns_records/%s", c.ZoneID, c.RecordID)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	log := logger.FromContext(ctx)

	baseURL := c.BaseURL
	if len(baseURL) == 0 {
		baseURL = DefaultBaseURL
	}
	url := strings.TrimSuffix(baseURL, "/") + path

	hc := c.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient
	}

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 500 * time.Millisecond
	if c.retryWait > 0 {
		boff.InitialInterval = c.retryWait
	}
	boff.MaxInterval = 10 * time.Second

	attempt := 0
	op := func() (envelope, error) {
		attempt++

		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return envelope{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return envelope{}, backoff.Permanent(err)
			}
			log.DebugContext(ctx, "cloudflare request failed", "attempt", attempt, "err", err)
			return envelope{}, err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				log.WarnContext(ctx, "failed to close response body", "err", err)
			}
		}()

		env := envelope{}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return envelope{}, err
		}
		// error pages from proxies in front of the API aren't JSON
		_ = json.Unmarshal(b, &env)

		if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
			apiErr := &APIError{StatusCode: resp.StatusCode, Errors: env.Errors}
			if apiErr.Temporary() {
				log.DebugContext(ctx, "cloudflare request failed", "attempt", attempt, "err", apiErr)
				return envelope{}, apiErr
			}
			return envelope{}, backoff.Permanent(apiErr)
		}

		return env, nil
	}

	env, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(boff),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		return err
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

// IsAuthError reports whether err was caused by a rejected token.
func IsAuthError(err error) bool {
	apiErr := &APIError{}
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
