package woocommerce

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/wooconduit/conduit/pkg/httpclient"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/ratelimit"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const (
	// DefaultPageLength is the default page size for list calls
	DefaultPageLength = 100

	// maxRateLimitWait bounds how long one request waits on the throttle
	maxRateLimitWait = 2 * time.Minute
)

// RequestRecorder receives one entry per remote request for the request log.
// Implementations must not block the calling goroutine for long.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, log *models.RequestLog)
}

// Client talks to one WooCommerce store's REST API
type Client struct {
	server     *models.WooCommerceServer
	httpClient *httpclient.Client
	limiter    *ratelimit.Manager
	recorder   RequestRecorder
	logger     ectologger.Logger

	baseURL    string
	authHeader string
	pageLength int
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithPageLength overrides the default list page size
func WithPageLength(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageLength = n
		}
	}
}

// WithRequestRecorder wires a request log sink
func WithRequestRecorder(r RequestRecorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithRateLimiter wires the per-server throttle
func WithRateLimiter(m *ratelimit.Manager) ClientOption {
	return func(c *Client) {
		c.limiter = m
	}
}

// NewClient creates a client for one store
func NewClient(server *models.WooCommerceServer, httpClient *httpclient.Client, logger ectologger.Logger, opts ...ClientOption) (*Client, error) {
	if server.ConsumerKey == "" || server.ConsumerSecret == "" {
		return nil, fmt.Errorf("server %s is missing API credentials", server.ID)
	}

	credentials := server.ConsumerKey + ":" + server.ConsumerSecret

	c := &Client{
		server:     server,
		httpClient: httpClient,
		logger:     logger,
		baseURL:    server.APIBase(),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
		pageLength: DefaultPageLength,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Server returns the store this client talks to
func (c *Client) Server() *models.WooCommerceServer {
	return c.server
}

// Domain returns the store domain used in composite identities
func (c *Client) Domain() string {
	return c.server.Domain
}

// PageLength returns the configured list page size
func (c *Client) PageLength() int {
	return c.pageLength
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body interface{}) (*httpclient.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "WooCommerce."+method+" "+endpoint)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.server.ID.String(), maxRateLimitWait); err != nil {
			return nil, &RemoteError{Endpoint: endpoint, Message: "rate limit wait exceeded", Err: err}
		}
	}

	reqURL := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader *bytes.Reader
	var req *http.Request
	var err error
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", endpoint, merr)
		}
		bodyReader = bytes.NewReader(payload)
		req, err = http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(ctx, req)
	c.record(ctx, method, endpoint, resp, err)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
		c.limiter.HandleRetryAfter(ctx, c.server.ID.String(), resp.Headers["Retry-After"])
	}

	if err := c.checkStatus(endpoint, resp); err != nil {
		return nil, err
	}

	if err := httpclient.ParseResponse(resp); err != nil {
		return nil, &MalformedResponseError{Endpoint: endpoint, Err: err}
	}

	return resp, nil
}

func (c *Client) record(ctx context.Context, method, endpoint string, resp *httpclient.Response, err error) {
	if c.recorder == nil {
		return
	}

	entry := &models.RequestLog{
		ServerID: c.server.ID,
		Method:   method,
		Endpoint: endpoint,
	}
	if resp != nil {
		entry.StatusCode = resp.StatusCode
		entry.DurationMs = resp.Duration.Milliseconds()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	c.recorder.RecordRequest(ctx, entry)
}

func (c *Client) checkStatus(endpoint string, resp *httpclient.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message := remoteMessage(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NotFoundError{Resource: endpoint, ID: ""}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Resource: endpoint, Message: message}
	default:
		return &RemoteError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: message}
	}
}

// remoteMessage extracts the human-readable message from a WooCommerce error body
func remoteMessage(body []byte) string {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != "" {
			return parsed.Code + ": " + parsed.Message
		}
		return parsed.Message
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return string(body)
}

// Get fetches one full record
func (c *Client) Get(ctx context.Context, resource string, id int64) (*Record, error) {
	endpoint := fmt.Sprintf("%s/%d", resource, id)

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		if nf, ok := err.(*NotFoundError); ok {
			nf.Resource = resource
			nf.ID = strconv.FormatInt(id, 10)
		}
		return nil, err
	}

	data, ok := resp.BodyJSON.(map[string]interface{})
	if !ok {
		return nil, &MalformedResponseError{Endpoint: endpoint, Err: fmt.Errorf("expected object, got %T", resp.BodyJSON)}
	}

	return ParseRecord(resource, RecordFull, data)
}

// List fetches a page of records. The returned total comes from the
// X-WP-Total header, falling back to the page length when the store omits it.
func (c *Client) List(ctx context.Context, resource string, opts ListOptions) ([]*Record, int, error) {
	if opts.PerPage == 0 {
		opts.PerPage = c.pageLength
	}

	resp, err := c.do(ctx, http.MethodGet, resource, opts.Values(), nil)
	if err != nil {
		return nil, 0, err
	}

	records, err := c.parseList(resource, opts, resp)
	if err != nil {
		return nil, 0, err
	}

	total := len(records)
	if raw, ok := resp.Headers["X-Wp-Total"]; ok {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			total = parsed
		}
	}

	return records, total, nil
}

func (c *Client) parseList(resource string, opts ListOptions, resp *httpclient.Response) ([]*Record, error) {
	items, ok := resp.BodyJSON.([]interface{})
	if !ok {
		return nil, &MalformedResponseError{Endpoint: resource, Err: fmt.Errorf("expected array, got %T", resp.BodyJSON)}
	}

	level := RecordFull
	if opts.IsProjected() {
		level = RecordSummary
	}

	records := make([]*Record, 0, len(items))
	for _, item := range items {
		data, ok := item.(map[string]interface{})
		if !ok {
			return nil, &MalformedResponseError{Endpoint: resource, Err: fmt.Errorf("expected object element, got %T", item)}
		}
		rec, err := ParseRecord(resource, level, data)
		if err != nil {
			return nil, &MalformedResponseError{Endpoint: resource, Err: err}
		}
		records = append(records, rec)
	}

	return records, nil
}

// Count returns the remote total for a resource without fetching records
func (c *Client) Count(ctx context.Context, resource string, opts ListOptions) (int, error) {
	opts.PerPage = 1
	opts.Fields = []string{"id"}
	_, total, err := c.List(ctx, resource, opts)
	return total, err
}

// Create posts a new record
func (c *Client) Create(ctx context.Context, resource string, payload map[string]interface{}) (*Record, error) {
	resp, err := c.do(ctx, http.MethodPost, resource, nil, payload)
	if err != nil {
		return nil, err
	}

	data, ok := resp.BodyJSON.(map[string]interface{})
	if !ok {
		return nil, &MalformedResponseError{Endpoint: resource, Err: fmt.Errorf("expected object, got %T", resp.BodyJSON)}
	}

	return ParseRecord(resource, RecordFull, data)
}

// Update puts changed fields onto an existing record
func (c *Client) Update(ctx context.Context, resource string, id int64, payload map[string]interface{}) (*Record, error) {
	endpoint := fmt.Sprintf("%s/%d", resource, id)

	resp, err := c.do(ctx, http.MethodPut, endpoint, nil, payload)
	if err != nil {
		if nf, ok := err.(*NotFoundError); ok {
			nf.Resource = resource
			nf.ID = strconv.FormatInt(id, 10)
		}
		return nil, err
	}

	data, ok := resp.BodyJSON.(map[string]interface{})
	if !ok {
		return nil, &MalformedResponseError{Endpoint: endpoint, Err: fmt.Errorf("expected object, got %T", resp.BodyJSON)}
	}

	return ParseRecord(resource, RecordFull, data)
}

// Delete removes a record. force skips the trash.
func (c *Client) Delete(ctx context.Context, resource string, id int64, force bool) error {
	endpoint := fmt.Sprintf("%s/%d", resource, id)
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}

	_, err := c.do(ctx, http.MethodDelete, endpoint, query, nil)
	return err
}

// ListVariations lists the variations under a variable product
func (c *Client) ListVariations(ctx context.Context, parentID int64, opts ListOptions) ([]*Record, int, error) {
	return c.List(ctx, fmt.Sprintf("products/%d/variations", parentID), opts)
}

// GetVariation fetches one variation of a variable product
func (c *Client) GetVariation(ctx context.Context, parentID, variationID int64) (*Record, error) {
	return c.Get(ctx, fmt.Sprintf("products/%d/variations", parentID), variationID)
}

// CreateVariation adds a variation under a variable product
func (c *Client) CreateVariation(ctx context.Context, parentID int64, payload map[string]interface{}) (*Record, error) {
	return c.Create(ctx, fmt.Sprintf("products/%d/variations", parentID), payload)
}

// UpdateVariation updates a variation under a variable product
func (c *Client) UpdateVariation(ctx context.Context, parentID, variationID int64, payload map[string]interface{}) (*Record, error) {
	return c.Update(ctx, fmt.Sprintf("products/%d/variations", parentID), variationID, payload)
}

// CheckCredentials verifies the key pair by hitting system_status, which
// requires authentication but is read-only.
func (c *Client) CheckCredentials(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "system_status", nil, nil)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && (re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden) {
			return &ValidationError{Resource: "system_status", Message: "store rejected the API credentials"}
		}
		return err
	}
	return nil
}
