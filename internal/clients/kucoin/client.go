// Package kucoin fetches account balances from the KuCoin REST API.
package kucoin

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinbook/internal/clients"
	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/errs"
)

const (
	// DefaultBaseURL of the KuCoin spot API.
	DefaultBaseURL = "https://api.kucoin.com"

	accountsPath = "/api/v1/accounts"
	successCode  = "200000"
)

var deviationTolerance = decimal.New(1, -8)

// Client is the balance fetcher.
type Client struct {
	baseURL    string
	signer     *Signer
	doer       clients.Doer
	timeout    time.Duration
	partitions []domain.Partition
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

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

// WithPartitions sets the partitions queried by FetchAll, in order.
func WithPartitions(partitions ...domain.Partition) Option {
	return func(c *Client) {
		if len(partitions) > 0 {
			c.partitions = append([]domain.Partition(nil), partitions...)
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

// NewClient creates a balance fetcher signing every call with signer.
func NewClient(baseURL string, signer *Signer, opts ...Option) (*Client, error) {
	if signer == nil {
		return nil, errs.Configuration("kucoin client", errs.WithMessage("signer is required"))
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errs.Configuration("kucoin client", errs.WithCause(errors.Wrap(err, "invalid base url")))
	}

	c := &Client{
		baseURL:    baseURL,
		signer:     signer,
		timeout:    clients.DefaultTimeout,
		partitions: append([]domain.Partition(nil), domain.DefaultPartitions...),
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

// Partitions returns the partitions queried by FetchAll.
func (c *Client) Partitions() []domain.Partition {
	return append([]domain.Partition(nil), c.partitions...)
}

// FetchAll concatenates every configured partition in order. The first failure aborts.
func (c *Client) FetchAll(ctx context.Context) ([]domain.BalanceRecord, error) {
	var out []domain.BalanceRecord
	for _, p := range c.partitions {
		records, err := c.FetchPartition(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// FetchPartition returns the balances of one partition in API response order.
func (c *Client) FetchPartition(ctx context.Context, partition domain.Partition) ([]domain.BalanceRecord, error) {
	op := "kucoin fetch " + partition.String()
	query := "?type=" + url.QueryEscape(partition.String())
	signed := c.signer.Sign(http.MethodGet, accountsPath, query, nil)

	resp, err := clients.Send(ctx, c.doer, c.timeout, clients.Request{
		Op:      op,
		Method:  http.MethodGet,
		URL:     c.baseURL + accountsPath + query,
		Headers: signed.Headers(),
	})
	if err != nil {
		return nil, err
	}

	records, err := parseAccounts(op, resp.Body)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if !r.Consistent(deviationTolerance) {
			c.logger.Warn("balance differs from available + holds",
				zap.String("asset", r.Asset),
				zap.String("account", r.Partition.String()),
				zap.String("deviation", r.Deviation().String()))
		}
	}

	c.logger.Debug("fetched partition",
		zap.String("account", partition.String()),
		zap.Int("records", len(records)))

	return records, nil
}

type accountsResponse struct {
	Code string        `json:"code"`
	Msg  string        `json:"msg"`
	Data []accountItem `json:"data"`
}

type accountItem struct {
	ID        string   `json:"id"`
	Currency  string   `json:"currency"`
	Type      string   `json:"type"`
	Balance   quantity `json:"balance"`
	Available quantity `json:"available"`
	Holds     quantity `json:"holds"`
}

// quantity accepts both quoted and bare JSON numbers.
type quantity string

func (q *quantity) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*q = quantity(s)
		return nil
	}
	*q = quantity(b)
	return nil
}

var (
	stringFields  = []string{"currency", "type"}
	numericFields = []string{"available", "holds", "balance"}
)

// validateAccounts checks the response shape before anything is decoded.
func validateAccounts(op string, body []byte) error {
	if !gjson.ValidBytes(body) {
		return errs.DataIntegrity(op, errs.WithMessage("response is not valid JSON"))
	}
	root := gjson.ParseBytes(body)
	if code := root.Get("code"); code.String() != successCode {
		return errs.DataIntegrity(op, errs.WithMessage("unexpected response code %q: %s", code.String(), root.Get("msg").String()))
	}
	data := root.Get("data")
	if !data.IsArray() {
		return errs.DataIntegrity(op, errs.WithMessage("data is not an array"))
	}

	var shapeErr error
	data.ForEach(func(idx, item gjson.Result) bool {
		if !item.IsObject() {
			shapeErr = errs.DataIntegrity(op, errs.WithMessage("item #%d is not an object", idx.Int()))
			return false
		}
		for _, f := range stringFields {
			v := item.Get(f)
			if v.Type != gjson.String || strings.TrimSpace(v.String()) == "" {
				shapeErr = errs.DataIntegrity(op, errs.WithMessage("item #%d: %s missing or not a string", idx.Int(), f))
				return false
			}
		}
		for _, f := range numericFields {
			v := item.Get(f)
			if v.Type != gjson.String && v.Type != gjson.Number {
				shapeErr = errs.DataIntegrity(op, errs.WithMessage("item #%d (%s): %s missing", idx.Int(), item.Get("currency").String(), f))
				return false
			}
		}
		return true
	})
	return shapeErr
}

func parseAccounts(op string, body []byte) ([]domain.BalanceRecord, error) {
	if err := validateAccounts(op, body); err != nil {
		return nil, err
	}

	var payload accountsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.DataIntegrity(op, errs.WithCause(errors.Wrap(err, "decode accounts")))
	}

	records := make([]domain.BalanceRecord, 0, len(payload.Data))
	for _, item := range payload.Data {
		available, err := parseQuantity(op, item.Currency, "available", item.Available)
		if err != nil {
			return nil, err
		}
		holds, err := parseQuantity(op, item.Currency, "holds", item.Holds)
		if err != nil {
			return nil, err
		}
		total, err := parseQuantity(op, item.Currency, "balance", item.Balance)
		if err != nil {
			return nil, err
		}

		record, err := domain.NewBalanceRecord(item.Currency, available, holds, total, domain.Partition(item.Type))
		if err != nil {
			return nil, errs.DataIntegrity(op, errs.WithCause(err))
		}
		records = append(records, record)
	}
	return records, nil
}

func parseQuantity(op, currency, field string, raw quantity) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
	if err != nil {
		return decimal.Zero, errs.DataIntegrity(op,
			errs.WithMessage("%s %s is not numeric: %q", currency, field, string(raw)),
			errs.WithCause(err))
	}
	return d, nil
}
