// Package notion reads and writes balance rows of a Notion database.
package notion

import (
	"context"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/coinbook/internal/clients"
	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/errs"
)

const (
	// DefaultBaseURL of the Notion API.
	DefaultBaseURL = "https://api.notion.com"
	// DefaultVersion is the Notion-Version header value.
	DefaultVersion = "2022-06-28"
	// DefaultRequestsPerSecond matches the average rate Notion allows per integration.
	DefaultRequestsPerSecond = 3.0
)

// Client is the remote record store.
type Client struct {
	baseURL    string
	token      string
	databaseID string
	version    string
	doer       clients.Doer
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(d clients.Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles calls to rps with the given burst. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithVersion overrides the Notion-Version header.
func WithVersion(v string) Option {
	return func(c *Client) {
		if v = strings.TrimSpace(v); v != "" {
			c.version = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a store client for databaseID.
func NewClient(token, databaseID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.Configuration("notion client", errs.WithMessage("token is empty"))
	}
	if strings.TrimSpace(databaseID) == "" {
		return nil, errs.Configuration("notion client", errs.WithMessage("database id is empty"))
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		databaseID: databaseID,
		version:    DefaultVersion,
		timeout:    clients.DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = clients.NewHTTPClient(c.timeout)
	}
	return c, nil
}

// FindRecord looks up the row matching all three key properties.
func (c *Client) FindRecord(ctx context.Context, key domain.RecordKey) (string, bool, error) {
	op := "notion query " + key.String()
	resp, err := c.call(ctx, op, http.MethodPost, "/v1/databases/"+c.databaseID+"/query", keyQuery(key))
	if err != nil {
		return "", false, err
	}

	if !gjson.ValidBytes(resp) {
		return "", false, errs.DataIntegrity(op, errs.WithMessage("response is not valid JSON"))
	}
	results := gjson.GetBytes(resp, "results")
	if !results.IsArray() {
		return "", false, errs.DataIntegrity(op, errs.WithMessage("results is not an array"))
	}
	first := results.Get("0")
	if !first.Exists() {
		return "", false, nil
	}
	id := first.Get("id")
	if id.Type != gjson.String || id.String() == "" {
		return "", false, errs.DataIntegrity(op, errs.WithMessage("result has no id"))
	}
	return id.String(), true, nil
}

type createRequest struct {
	Parent     parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type updateRequest struct {
	Properties map[string]any `json:"properties"`
}

// CreateRecord creates a row carrying the key triple and the holding values.
func (c *Client) CreateRecord(ctx context.Context, h domain.Holding) (domain.RecordRef, error) {
	op := "notion create " + h.Key.String()
	resp, err := c.call(ctx, op, http.MethodPost, "/v1/pages", createRequest{
		Parent:     parent{DatabaseID: c.databaseID},
		Properties: properties(h),
	})
	if err != nil {
		return domain.RecordRef{}, err
	}
	return parsePageRef(op, resp)
}

// UpdateRecord replaces the numeric fields of row id.
func (c *Client) UpdateRecord(ctx context.Context, id string, h domain.Holding) (domain.RecordRef, error) {
	op := "notion update " + h.Key.String()
	if strings.TrimSpace(id) == "" {
		return domain.RecordRef{}, errs.InvalidArgument(op, errs.WithMessage("record id is empty"))
	}
	resp, err := c.call(ctx, op, http.MethodPatch, "/v1/pages/"+id, updateRequest{Properties: properties(h)})
	if err != nil {
		return domain.RecordRef{}, err
	}
	return parsePageRef(op, resp)
}

func (c *Client) call(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.DataIntegrity(op, errs.WithCause(errors.Wrap(err, "marshal request")))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errs.Transient(op, errs.WithCause(errors.Wrap(err, "rate limiter")))
		}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.token)
	headers.Set("Notion-Version", c.version)
	headers.Set("Content-Type", "application/json")

	resp, err := clients.Send(ctx, c.doer, c.timeout, clients.Request{
		Op:      op,
		Method:  method,
		URL:     c.baseURL + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("notion call", zap.String("op", op), zap.Int("status", resp.Status))
	return resp.Body, nil
}

func parsePageRef(op string, body []byte) (domain.RecordRef, error) {
	if !gjson.ValidBytes(body) {
		return domain.RecordRef{}, errs.DataIntegrity(op, errs.WithMessage("response is not valid JSON"))
	}
	res := gjson.GetManyBytes(body, "id", "url")
	if res[0].Type != gjson.String || res[0].String() == "" {
		return domain.RecordRef{}, errs.DataIntegrity(op, errs.WithMessage("page has no id"))
	}
	return domain.RecordRef{ID: res[0].String(), URL: res[1].String()}, nil
}
