package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// FilterGreaterThanEqual is the operator used for cursor filters
	FilterGreaterThanEqual = "GREATER_THAN_EQUAL"

	maxResponseBytes = 32 << 20
)

// Options configures the API client
type Options struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	Insecure        bool
	CAFile          string
	CacheTTL        time.Duration
	CacheMaxEntries int
	Logger          *zap.Logger
}

// Client talks to the test-management REST API
type Client struct {
	baseURL string
	http    *http.Client
	cache   *detailCache
	log     *zap.Logger
}

// New creates an API client
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient, err := buildHTTPClient(opts)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		cache:   newDetailCache(opts.CacheTTL, opts.CacheMaxEntries),
		log:     opts.Logger.Named("client"),
	}, nil
}

// buildHTTPClient creates an HTTP client with TLS and bearer token settings
func buildHTTPClient(opts Options) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}

	if opts.Insecure || opts.CAFile != "" {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: opts.Insecure,
		}

		// Load CA certificate if provided (for server verification)
		if opts.CAFile != "" {
			caCert, err := os.ReadFile(opts.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caCertPool
		}

		transport.TLSClientConfig = tlsCfg
	}

	var rt http.RoundTripper = transport
	if opts.Token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}, nil
}

// Filter is one condition of a paginated query
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type pageRequest struct {
	PageNo   int      `json:"pageNo"`
	PageSize int      `json:"pageSize"`
	Filters  []Filter `json:"filters,omitempty"`
}

func newPageRequest(q types.PageQuery) pageRequest {
	req := pageRequest{PageNo: q.PageNo, PageSize: q.PageSize}
	if req.PageNo <= 0 {
		req.PageNo = 1
	}
	if q.Cursor != "" {
		req.Filters = []Filter{{Field: "timestamp", Operator: FilterGreaterThanEqual, Value: q.Cursor}}
	}
	return req
}

// Execution fetches the execution detail, bypassing the cache
func (c *Client) Execution(ctx context.Context, execID string) (*types.ExecutionDetail, error) {
	var detail types.ExecutionDetail
	if err := c.getJSON(ctx, c.execPath(execID, ""), &detail); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = execID
	}
	c.cache.put(execID, &detail)
	return &detail, nil
}

// CachedExecution returns a recently fetched detail when available
func (c *Client) CachedExecution(ctx context.Context, execID string) (*types.ExecutionDetail, error) {
	if detail, ok := c.cache.get(execID); ok {
		return detail, nil
	}
	return c.Execution(ctx, execID)
}

// Samples fetches one page of throughput sample rows
func (c *Client) Samples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.SampleRow], error) {
	var page types.Page[types.SampleRow]
	if err := c.postJSON(ctx, c.execPath(execID, "/sample/throughput"), newPageRequest(q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LatestSummary fetches the latest cumulative sample rows per target
func (c *Client) LatestSummary(ctx context.Context, execID string) ([]types.SampleRow, error) {
	var rows []types.SampleRow
	if err := c.getJSON(ctx, c.execPath(execID, "/sample/summary/latest"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ErrorCounters fetches the latest cumulative error counters in document order
func (c *Client) ErrorCounters(ctx context.Context, execID string) ([]types.ErrorCounter, error) {
	data, err := c.get(ctx, c.execPath(execID, "/sample/error/count/latest"))
	if err != nil {
		return nil, err
	}
	return parseErrorCounters(data), nil
}

// ErrorSamples fetches one page of failing samples
func (c *Client) ErrorSamples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.ErrorSample], error) {
	var page types.Page[types.ErrorSample]
	if err := c.postJSON(ctx, c.execPath(execID, "/sample/error/content"), newPageRequest(q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// StatusCodes fetches the latest status code counters in document order
func (c *Client) StatusCodes(ctx context.Context, execID string) ([]types.StatusCodeCounter, error) {
	data, err := c.get(ctx, c.execPath(execID, "/sample/status/count/latest"))
	if err != nil {
		return nil, err
	}
	return parseStatusCodes(data)
}

func (c *Client) execPath(execID, suffix string) string {
	return c.baseURL + "/exec/" + url.PathEscape(execID) + suffix
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	data, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	return decodeData(endpoint, data, v)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}
	return decodeData(endpoint, data, v)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// do sends a request and returns the unwrapped envelope data
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return unwrapEnvelope(resp.StatusCode, raw)
}
