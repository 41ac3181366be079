// Command coinbook syncs KuCoin balances into a Notion database and reports on the portfolio.
//
// Usage:
//
//	coinbook [-config config.yaml] health
//	coinbook [-config config.yaml] balances
//	coinbook [-config config.yaml] upsert -date 2025-09-25 [-note "weekly sync"]
//	coinbook [-config config.yaml] report [-json]
//	coinbook [-config config.yaml] serve
//	coinbook setup
//
// Required environment variables (or the matching yaml keys):
//
//	KUCOIN_API_KEY, KUCOIN_API_SECRET, KUCOIN_API_PASSPHRASE
//	NOTION_TOKEN, NOTION_DATABASE_ID
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/coinbook/config"
	"github.com/vadiminshakov/coinbook/internal/domain"
	"github.com/vadiminshakov/coinbook/internal/errs"
	"github.com/vadiminshakov/coinbook/internal/services/portfolio"
	"github.com/vadiminshakov/coinbook/internal/setup"
	"github.com/vadiminshakov/coinbook/internal/storage/journal"
	"github.com/vadiminshakov/coinbook/internal/web"
	"github.com/vadiminshakov/coinbook/pkg/retrier"
)

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("error (%s): %v", errs.KindOf(err), err)))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("coinbook", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to yaml config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("command required: health, balances, upsert, report, serve or setup")
	}
	command, rest := fs.Arg(0), fs.Args()[1:]

	if command == "setup" {
		return setup.RunTUI()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errs.Configuration("load config", errs.WithCause(err))
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "health":
		return writeJSON(out, portfolio.New(cfg, portfolio.WithLogger(logger)).Health())
	case "balances":
		return runBalances(ctx, cfg, logger, out)
	case "upsert":
		return runUpsert(ctx, cfg, logger, out, rest)
	case "report":
		return runReport(ctx, cfg, logger, out, rest)
	case "serve":
		return runServe(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errs.Configuration("log level", errs.WithCause(err))
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// newRetrier retries transient failures only.
func newRetrier(cfg config.Config, logger *zap.Logger) *retrier.Retrier {
	return retrier.New(
		retrier.WithMaxRetries(cfg.Retry.MaxRetries),
		retrier.WithInitialInterval(cfg.Retry.InitialInterval),
		retrier.WithMaxInterval(cfg.Retry.MaxInterval),
		retrier.WithRetryIf(errs.IsTransient),
		retrier.WithOnRetry(func(attempt int, err error) {
			logger.Warn("retrying after transient failure", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
}

func runBalances(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) error {
	svc := portfolio.New(cfg, portfolio.WithLogger(logger))
	res, err := retrier.DoWithData(newRetrier(cfg, logger), ctx, svc.GetBalances)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runUpsert(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("upsert", flag.ContinueOnError)
	date := fs.String("date", time.Now().UTC().Format(domain.DateLayout), "snapshot date, YYYY-MM-DD")
	note := fs.String("note", "", "note written to every row")
	if err := fs.Parse(args); err != nil {
		return errs.InvalidArgument("upsert", errs.WithCause(err))
	}

	opts := []portfolio.Option{portfolio.WithLogger(logger)}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if j != nil {
		defer func() { _ = j.Close() }()
		opts = append(opts, portfolio.WithRecorder(j))
	}

	svc := portfolio.New(cfg, opts...)
	in := portfolio.UpsertIn{DateISO: *date, Note: *note}
	res, err := retrier.DoWithData(newRetrier(cfg, logger), ctx, func(ctx context.Context) (portfolio.UpsertOut, error) {
		return svc.UpsertHoldings(ctx, in)
	})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runReport(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the tool output as JSON")
	if err := fs.Parse(args); err != nil {
		return errs.InvalidArgument("report", errs.WithCause(err))
	}

	svc := portfolio.New(cfg, portfolio.WithLogger(logger))
	r := newRetrier(cfg, logger)

	if *asJSON {
		res, err := retrier.DoWithData(r, ctx, svc.PortfolioReport)
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	}

	rep, err := retrier.DoWithData(r, ctx, svc.BuildReport)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return errors.Wrap(err, "init markdown renderer")
	}
	rendered, err := renderer.Render(rep.Markdown())
	if err != nil {
		return errors.Wrap(err, "render report")
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}

	var server *web.Server
	if j != nil {
		defer func() { _ = j.Close() }()
		svc := portfolio.New(cfg, portfolio.WithLogger(logger), portfolio.WithRecorder(j))
		server = web.NewServer(cfg.Server.Addr, svc, j, logger)
	} else {
		server = web.NewServer(cfg.Server.Addr, portfolio.New(cfg, portfolio.WithLogger(logger)), nil, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(cfg.Server.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.Server.TLSDomains, cfg.Server.CertCacheDir)
		}
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down tool server")
		return nil
	})
	return g.Wait()
}

func openJournal(cfg config.Config) (*journal.WALStore, error) {
	if cfg.Journal.Disabled {
		return nil, nil
	}
	j, err := journal.NewWALStore(cfg.Journal.Dir)
	if err != nil {
		return nil, errs.Configuration("open journal", errs.WithCause(err))
	}
	return j, nil
}

func writeJSON(out io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
