// Package portfolio exposes the four tool operations: health, getBalances,
// upsertHoldings and portfolioReport.
package portfolio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinbook/config"
	"github.com/vadiminshakov/coinbook/internal/clients"
	"github.com/vadiminshakov/coinbook/internal/clients/kucoin"
	"github.com/vadiminshakov/coinbook/internal/clients/notion"
	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/errs"
	"github.com/vadiminshakov/coinbook/internal/services/aggregator"
	"github.com/vadiminshakov/coinbook/internal/services/reconciler"
	"github.com/vadiminshakov/coinbook/internal/services/report"
	"github.com/vadiminshakov/coinbook/internal/storage/journal"
)

// Version is reported by Health.
const Version = "0.4.0"

// AsOfLayout is ISO-8601 UTC with seconds precision.
const AsOfLayout = "2006-01-02T15:04:05Z"

type HealthOut struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

type BalancesOut struct {
	AsOf     string                 `json:"as_of"`
	Balances []domain.BalanceRecord `json:"balances"`
}

type UpsertIn struct {
	DateISO string `json:"date_iso"`
	Note    string `json:"note,omitempty"`
}

type UpsertOut struct {
	Upserted int `json:"upserted"`
}

type ReportOut struct {
	AsOf        string   `json:"as_of"`
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
	NotionURLs  []string `json:"notion_urls"`
}

// Service runs tool operations. Every call builds its own remote clients from the
// immutable configuration. The only state shared between calls is the upsert lock
// table, so concurrent upserts of one key never both create a row.
type Service struct {
	cfg      config.Config
	logger   *zap.Logger
	recorder reconciler.Recorder
	doer     clients.Doer
	now      func() time.Time
	locks    *reconciler.KeyLocks
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the base logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder journals every successful upsert.
func WithRecorder(r reconciler.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithHTTPClient overrides the transport of the remote clients.
func WithHTTPClient(d clients.Doer) Option {
	return func(s *Service) {
		s.doer = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service over cfg.
func New(cfg config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		locks:  reconciler.NewKeyLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health reports liveness without touching any remote.
func (s *Service) Health() HealthOut {
	return HealthOut{OK: true, Version: Version}
}

// GetBalances returns the raw records of every configured partition.
func (s *Service) GetBalances(ctx context.Context) (BalancesOut, error) {
	ctx, logger := s.begin(ctx, "get_balances")

	records, err := s.fetch(ctx, logger)
	if err != nil {
		return BalancesOut{}, err
	}
	if records == nil {
		records = []domain.BalanceRecord{}
	}

	logger.Info("balances fetched", zap.Int("records", len(records)))
	return BalancesOut{AsOf: s.asOf(), Balances: records}, nil
}

// UpsertHoldings writes one row per (asset, account) for in.DateISO.
func (s *Service) UpsertHoldings(ctx context.Context, in UpsertIn) (UpsertOut, error) {
	ctx, logger := s.begin(ctx, "upsert_holdings")

	if err := s.cfg.Validate(); err != nil {
		return UpsertOut{}, err
	}
	if err := domain.ValidateDate(in.DateISO); err != nil {
		return UpsertOut{}, errs.InvalidArgument("upsert holdings", errs.WithCause(err))
	}

	store, err := s.store(logger)
	if err != nil {
		return UpsertOut{}, err
	}

	records, err := s.fetch(ctx, logger)
	if err != nil {
		return UpsertOut{}, err
	}

	opts := []reconciler.Option{reconciler.WithLogger(logger), reconciler.WithKeyLocks(s.locks)}
	if s.recorder != nil {
		opts = append(opts, reconciler.WithRecorder(s.recorder))
	}
	n, err := reconciler.New(store, opts...).UpsertAll(ctx, records, in.DateISO, domain.OptionalString(in.Note))
	if err != nil {
		return UpsertOut{Upserted: n}, err
	}

	logger.Info("holdings upserted", zap.String("date", in.DateISO), zap.Int("upserted", n))
	return UpsertOut{Upserted: n}, nil
}

// BuildReport fetches, aggregates and runs the heuristics.
func (s *Service) BuildReport(ctx context.Context) (report.Report, error) {
	ctx, logger := s.begin(ctx, "portfolio_report")

	records, err := s.fetch(ctx, logger)
	if err != nil {
		return report.Report{}, err
	}
	positions := aggregator.Aggregate(records)
	r := report.Build(positions, s.now().UTC().Truncate(time.Second))

	logger.Info("report built", zap.Int("positions", len(positions)), zap.Int("suggestions", len(r.Suggestions)))
	return r, nil
}

// PortfolioReport is BuildReport in tool output form.
func (s *Service) PortfolioReport(ctx context.Context) (ReportOut, error) {
	r, err := s.BuildReport(ctx)
	if err != nil {
		return ReportOut{}, err
	}
	return ReportOut{
		AsOf:        r.AsOf.Format(AsOfLayout),
		Summary:     r.Summary,
		Suggestions: r.Suggestions,
		NotionURLs:  []string{},
	}, nil
}

func (s *Service) begin(ctx context.Context, tool string) (context.Context, *zap.Logger) {
	id := uuid.NewString()
	return journal.ContextWithRequestID(ctx, id), s.logger.With(zap.String("tool", tool), zap.String("request_id", id))
}

func (s *Service) asOf() string {
	return s.now().UTC().Format(AsOfLayout)
}

func (s *Service) fetch(ctx context.Context, logger *zap.Logger) ([]domain.BalanceRecord, error) {
	if err := s.cfg.ValidateKuCoin(); err != nil {
		return nil, err
	}

	signer, err := kucoin.NewSigner(kucoin.Credentials{
		KeyID:      s.cfg.KuCoin.APIKey,
		Secret:     s.cfg.KuCoin.APISecret,
		Passphrase: s.cfg.KuCoin.APIPassphrase,
	}, kucoin.WithKeyVersion(s.cfg.KuCoin.KeyVersion))
	if err != nil {
		return nil, err
	}

	partitions := make([]domain.Partition, 0, len(s.cfg.KuCoin.Partitions))
	for _, p := range s.cfg.KuCoin.Partitions {
		partitions = append(partitions, domain.Partition(p))
	}

	client, err := kucoin.NewClient(s.cfg.KuCoin.BaseURL, signer,
		kucoin.WithHTTPClient(s.doer),
		kucoin.WithTimeout(s.cfg.HTTP.Timeout),
		kucoin.WithPartitions(partitions...),
		kucoin.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	records, err := client.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch balances")
	}
	return records, nil
}

func (s *Service) store(logger *zap.Logger) (*notion.Client, error) {
	return notion.NewClient(s.cfg.Notion.Token, s.cfg.Notion.DatabaseID,
		notion.WithBaseURL(s.cfg.Notion.BaseURL),
		notion.WithVersion(s.cfg.Notion.Version),
		notion.WithHTTPClient(s.doer),
		notion.WithTimeout(s.cfg.HTTP.Timeout),
		notion.WithRateLimit(s.cfg.Notion.RequestsPerSecond, 1),
		notion.WithLogger(logger))
}
