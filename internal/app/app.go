// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/config"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/execution"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/messaging"
	"github.com/rovshanmuradov/solana-testlab/internal/monitor"
	"github.com/rovshanmuradov/solana-testlab/internal/plan"
	"github.com/rovshanmuradov/solana-testlab/internal/publish"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
	"github.com/rovshanmuradov/solana-testlab/internal/storage/memory"
	"github.com/rovshanmuradov/solana-testlab/internal/storage/postgres"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
	"github.com/rovshanmuradov/solana-testlab/internal/wallet"
)

const (
	eventBufferSize   = 256
	csvFlushInterval  = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
	defaultWalletName = "main"
)

// App is the assembled engine: feed, dispatcher, journal, monitor and the
// optional outer services named in the configuration.
type App struct {
	Monitor *monitor.Monitor
	Journal *journal.Journal
	Bus     *events.Bus
	Metrics *metrics.Collector
	Wallets *wallet.Registry
	Trader  *execution.PaperTrader

	cfg        *config.Config
	logger     *zap.Logger
	plans      *plan.Loader
	metricsSrv *http.Server
	shutdown   *ShutdownHandler
	restored   int
	fired      atomic.Uint64
	failed     atomic.Uint64
}

// New builds every component from cfg. On error, whatever was already
// started is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		plans:    plan.NewLoader(logger),
		Metrics:  metrics.NewCollector(),
		shutdown: NewShutdownHandler(logger, shutdownTimeout),
	}
	if err := a.build(ctx, logger); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.shutdown.Shutdown(closeCtx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, logger *zap.Logger) error {
	cfg := a.cfg

	a.Bus = events.NewBus(logger, eventBufferSize)
	a.shutdown.AddFunc("event bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.Bus.Shutdown(ctx)
	})

	a.Bus.Subscribe(events.AlertFired, events.Typed(func(_ context.Context, e events.AlertFiredEvent) error {
		a.fired.Add(1)
		for _, o := range e.Outcomes {
			if !o.Succeeded() {
				a.failed.Add(1)
			}
		}
		return nil
	}))

	store, err := a.openStore(ctx, logger)
	if err != nil {
		return err
	}
	a.shutdown.Add("store", store)

	a.Journal = journal.New(cfg.JournalCapacity, logger, storage.RecordSink{Store: store})
	if cfg.JournalCSVDir != "" {
		csvSink, err := journal.NewCSVSink(cfg.JournalCSVDir, csvFlushInterval, logger)
		if err != nil {
			return fmt.Errorf("failed to open journal archive: %w", err)
		}
		a.Journal.AddSink(csvSink)
		a.shutdown.Add("journal archive", csvSink)
		a.logger.Info("Journal archive enabled", zap.String("path", csvSink.Path()))
	}

	quoter := feed.NewHTTPQuoter(feed.HTTPQuoterConfig{
		BaseURL: cfg.Feed.QuoteURL,
		Metrics: a.Metrics,
		Logger:  logger,
	})
	priceFeed, err := a.openFeed(ctx, quoter, logger)
	if err != nil {
		return err
	}

	if a.Wallets, err = a.loadWallets(); err != nil {
		return err
	}
	a.Trader = execution.NewPaperTrader(execution.Config{
		Wallets:        a.Wallets,
		Quoter:         quoter,
		PlatformFeeBps: cfg.Paper.PlatformFeeBps,
		ImpactBps:      cfg.Paper.ImpactBps,
		InitialSOL:     cfg.Paper.InitialSOL,
		Logger:         logger,
	})

	senders, err := a.senders(logger)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(dispatch.Config{
		Orders:     a.Trader,
		Senders:    senders,
		Concurrent: cfg.ConcurrentActions,
		Logger:     logger,
		Metrics:    a.Metrics,
	})

	if cfg.NATSURL != "" {
		pub, err := publish.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		sub := pub.Attach(a.Bus)
		a.shutdown.AddFunc("nats", func() error {
			sub.Unsubscribe()
			return pub.Close()
		})
	}

	if cfg.Redis.Addr != "" {
		stream := publish.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Stream, cfg.Redis.StreamMaxLen, logger)
		sub := stream.Attach(a.Bus)
		a.shutdown.AddFunc("redis stream", func() error {
			sub.Unsubscribe()
			return stream.Close()
		})
	}

	updateInterval := cfg.UpdateInterval()
	if updateInterval == 0 {
		updateInterval = -1
	}
	a.Monitor = monitor.New(monitor.Config{
		Feed:            priceFeed,
		Executor:        dispatcher,
		Orders:          a.Trader,
		Journal:         a.Journal,
		Events:          a.Bus,
		Store:           store,
		Metrics:         a.Metrics,
		Logger:          logger,
		DispatchTimeout: cfg.DispatchTimeout(),
		UpdateInterval:  updateInterval,
	})
	a.shutdown.AddFunc("monitor", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Monitor.Shutdown(ctx)
	})
	if err := a.Monitor.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	a.restored = len(a.Monitor.Campaigns())

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		a.metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return nil
}

func (a *App) openStore(ctx context.Context, logger *zap.Logger) (storage.Store, error) {
	if a.cfg.PostgresURL == "" {
		a.logger.Info("Using in-memory storage")
		return memory.New(), nil
	}
	store, err := postgres.New(a.cfg.PostgresURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.logger.Info("Using PostgreSQL storage")
	return store, nil
}

func (a *App) openFeed(ctx context.Context, quoter *feed.HTTPQuoter, logger *zap.Logger) (feed.Feed, error) {
	switch a.cfg.Feed.Mode {
	case config.FeedModeWebSocket:
		wsCfg := feed.DefaultWSConfig(a.cfg.Feed.WebSocketURL, quoter)
		wsCfg.Metrics = a.Metrics
		wsCfg.Logger = logger
		ws := feed.NewWSFeed(wsCfg)
		if err := ws.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect price stream: %w", err)
		}
		a.shutdown.Add("price stream", ws)
		return ws, nil
	default:
		poll := feed.NewPollingFeed(quoter, a.cfg.PollInterval(), a.Metrics, logger)
		a.shutdown.AddFunc("price poller", func() error {
			poll.Close()
			return nil
		})
		return poll, nil
	}
}

// loadWallets reads the wallet file. Without one, a fresh paper wallet
// named "main" is generated for the session.
func (a *App) loadWallets() (*wallet.Registry, error) {
	if a.cfg.WalletsFile != "" {
		reg, err := wallet.LoadRegistry(a.cfg.WalletsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load wallets: %w", err)
		}
		a.logger.Info("Wallets loaded", zap.Strings("wallets", reg.Names()))
		return reg, nil
	}

	w, err := wallet.Generate(defaultWalletName)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Generated session wallet", zap.String("wallet", w.String()))
	return wallet.NewRegistry(w), nil
}

func (a *App) senders(logger *zap.Logger) (map[alert.Channel]dispatch.Sender, error) {
	senders := make(map[alert.Channel]dispatch.Sender)
	if a.cfg.Telegram.AppID != 0 {
		tg, err := messaging.NewTelegramAccount(messaging.TelegramConfig{
			AppID:       a.cfg.Telegram.AppID,
			AppHash:     a.cfg.Telegram.AppHash,
			SessionFile: a.cfg.Telegram.SessionFile,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		// Closed by the shutdown handler after the monitor has drained.
		tg.Start(context.Background())
		a.shutdown.Add("telegram", tg)
		senders[alert.ChannelTelegram] = tg
	}
	if a.cfg.Discord.Enabled {
		senders[alert.ChannelDiscord] = messaging.NewDiscord(a.cfg.Discord.Username, 0, logger)
	}
	return senders, nil
}

// ApplyPlan starts the campaigns of the configured plan file. It is skipped
// when state was restored, since the plan already ran in an earlier session.
func (a *App) ApplyPlan(ctx context.Context) error {
	if a.cfg.PlanFile == "" {
		return nil
	}
	if a.restored > 0 {
		a.logger.Info("Skipping campaign plan, state was restored",
			zap.Int("campaigns", a.restored))
		return nil
	}
	p, err := a.plans.Load(a.cfg.PlanFile)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	_, err = a.plans.Apply(ctx, a.Monitor, p)
	return err
}

// Run applies the plan, serves metrics and blocks until ctx is cancelled.
// The engine is shut down before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.metricsSrv != nil {
		srv := a.metricsSrv
		g.Go(func() error {
			a.logger.Info("Serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	g.Go(func() error {
		if err := a.ApplyPlan(gctx); err != nil {
			a.logger.Error("Campaign plan not applied", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	a.logger.Info("✅ Engine running",
		zap.String("feed", a.cfg.Feed.Mode),
		zap.Int("journal_capacity", a.Journal.Capacity()))

	runErr := g.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(ctx))
}

// Fired returns how many alerts fired this session and how many of their
// actions failed, as seen on the event bus.
func (a *App) Fired() (alerts, failedActions uint64) {
	return a.fired.Load(), a.failed.Load()
}

// Shutdown closes every component. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	alerts, failed := a.Fired()
	a.logger.Info("👋 Engine shutting down",
		zap.Uint64("alerts_fired", alerts),
		zap.Uint64("failed_actions", failed),
		zap.Uint64("journaled", a.Journal.Appended()))
	return a.shutdown.Shutdown(ctx)
}
