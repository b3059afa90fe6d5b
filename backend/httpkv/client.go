package httpkv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/storage"
)

// Client implements storage.Backend against a Server over HTTP. Every
// request carries an X-Request-Id header for cross-service correlation,
// the way the rest of the retrieved corpus tags outbound calls with
// github.com/google/uuid.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://cache:8080").
// If httpClient is nil, http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

var (
	_ storage.Backend              = (*Client)(nil)
	_ storage.VerificationReporter = (*Client)(nil)
)

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpkv: encode request: %w", err)
		}
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("httpkv: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpkv: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// Get implements storage.Backend.
func (c *Client) Get(ctx context.Context, key string) (entry.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/entries/"+url.PathEscape(key), nil)
	if err != nil {
		return entry.Entry{}, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return entry.Entry{}, storage.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return entry.Entry{}, fmt.Errorf("httpkv: get %s: unexpected status %d", key, resp.StatusCode)
	}
	var wire wireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return entry.Entry{}, fmt.Errorf("httpkv: decode get %s: %w", key, err)
	}
	return decodeEntry(wire)
}

// Set implements storage.Backend.
func (c *Client) Set(ctx context.Context, key string, e entry.Entry) error {
	wire, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("httpkv: encode set %s: %w", key, err)
	}
	resp, err := c.do(ctx, http.MethodPut, "/v1/entries/"+url.PathEscape(key), wire)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpkv: set %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

// Delete implements storage.Backend.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/entries/"+url.PathEscape(key), nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpkv: delete %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

// GetTagInvalidation implements storage.Backend.
func (c *Client) GetTagInvalidation(ctx context.Context, serializedTag string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/tags/"+url.PathEscape(serializedTag), nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return 0, storage.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("httpkv: get tag %s: unexpected status %d", serializedTag, resp.StatusCode)
	}
	var body tagTimestamp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("httpkv: decode tag %s: %w", serializedTag, err)
	}
	return body.Timestamp, nil
}

// SetTagInvalidation implements storage.Backend.
func (c *Client) SetTagInvalidation(ctx context.Context, serializedTag string, ms int64) error {
	resp, err := c.do(ctx, http.MethodPut, "/v1/tags/"+url.PathEscape(serializedTag), tagTimestamp{Timestamp: ms})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpkv: set tag %s: unexpected status %d", serializedTag, resp.StatusCode)
	}
	return nil
}

// Clear implements storage.Backend.
func (c *Client) Clear(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/clear", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpkv: clear: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Disconnect implements storage.Backend. The client holds no persistent
// connection of its own beyond the pooled http.Client, so this is a
// no-op; idle connections are reclaimed by the transport on its own
// schedule.
func (c *Client) Disconnect(_ context.Context) error {
	return nil
}

// ReportVerification implements storage.VerificationReporter by POSTing
// the report to the server, which forwards it to whatever backend it
// wraps (if that backend itself supports verification reporting).
func (c *Client) ReportVerification(ctx context.Context, report storage.VerificationReport) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/verify", verificationBody{
		Key:        report.Key,
		IsStale:    report.IsStale,
		CachedHash: report.CachedHash,
		FreshHash:  report.FreshHash,
		Timestamp:  report.Timestamp,
	})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpkv: report verification: unexpected status %d", resp.StatusCode)
	}
	return nil
}
