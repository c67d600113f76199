package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"oddsboard/internal/cache"
	"oddsboard/internal/config"
	"oddsboard/internal/dedup"
	"oddsboard/internal/lifecycle"
	"oddsboard/internal/poller"
	"oddsboard/internal/provider"
	"oddsboard/internal/snapshot"
	"oddsboard/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider() *provider.Client {
	return provider.NewClient(provider.Options{
		BaseURL:    a.Config.Provider.BaseURL,
		APIKey:     a.Config.Provider.APIKey,
		Bookmakers: a.Config.Provider.Bookmakers,
		Markets:    a.Config.Provider.Markets,
		OddsFormat: a.Config.Provider.OddsFormat,
		Timeout:    a.Config.Provider.RequestTimeout,
		MaxRetries: a.Config.Provider.MaxRetries,
		BaseDelay:  a.Config.Provider.BaseDelay,
		UserAgent:  a.Config.Provider.UserAgent,
	}, a.Logger)
}

func (a *App) newCache() *cache.Cache {
	return cache.New(cache.Options{
		StaleAfter: a.Config.Cache.StaleAfter,
		TTL:        a.Config.Cache.TTL,
		MaxKeys:    a.Config.Cache.MaxKeys,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running polling service until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the poller needs persistence")
	}
	defer closeStore()

	fetcher := a.newProvider()
	oddsCache := a.newCache()
	coalescer := dedup.New(a.Logger)
	tracker := lifecycle.New(store, a.Logger)
	snapshots := snapshot.NewStore(store, tracker, a.Logger)

	pol := poller.New(poller.Options{
		Sports:        a.Config.Poller.Sports,
		EvaluateEvery: a.Config.Poller.EvaluateEvery,
	}, fetcher, coalescer, snapshots, oddsCache, tracker, a.Logger)

	a.Logger.Info().Msg("starting odds polling service")
	if err := pol.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	pol.Stop()

	a.Logger.Info().Msg("odds polling service stopped")
	return nil
}

// BoardOptions configure the board command.
type BoardOptions struct {
	Sport  string
	Market string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Sport string
}

// ExportOptions hold parameters for exporting a game's odds history.
type ExportOptions struct {
	GameID    string
	Bookmaker string
	Market    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
	From      *time.Time
	To        *time.Time
}
