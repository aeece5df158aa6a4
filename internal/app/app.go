// Package app builds the client from configuration and manages its
// lifecycle: restoring the session and cache at start, saving them at exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"feedsync/internal/api"
	"feedsync/internal/auth"
	"feedsync/internal/cache"
	"feedsync/internal/compose"
	"feedsync/internal/config"
	"feedsync/internal/feed"
	"feedsync/internal/optimistic"
	"feedsync/internal/refetch"
	"feedsync/internal/store"

	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    store.Store
	Auth     *auth.Provider
	API      *api.Client
	Cache    *cache.Store
	Feeds    *feed.Feeds
	Writes   *optimistic.Coordinator
	Composer *compose.Composer

	worker *refetch.Worker
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the persistence layer named by cfg and builds the client.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.NewHybridStore(cfg.RedisAddr, cfg.BadgerPath)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, st, logger), nil
}

// NewWithStore builds the client on an existing store.
func NewWithStore(cfg *config.Config, st store.Store, logger *zap.Logger, options ...api.Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := auth.NewProvider(st, logger.Named("auth"))
	clientOptions := append([]api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithHTTPClient(&http.Client{Timeout: cfg.GetRequestTimeout()}),
	}, options...)
	client := api.NewClient(cfg.APIURL, provider, clientOptions...)

	cacheStore := cache.New(
		cache.WithLogger(logger.Named("cache")),
		cache.WithRetention(cfg.GetRetention()),
	)
	feeds := feed.New(cacheStore, client)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Auth:     provider,
		API:      client,
		Cache:    cacheStore,
		Feeds:    feeds,
		Writes:   optimistic.New(feeds, client, provider, logger.Named("optimistic")),
		Composer: compose.New(logger.Named("compose")),
		worker:   refetch.NewWorker(cacheStore, logger.Named("refetch")),
	}
}

// Start restores the session and the cache snapshot and starts the refetch
// worker.
func (a *App) Start(ctx context.Context) error {
	if err := a.Auth.Load(ctx); err != nil {
		return err
	}
	a.restore(ctx)

	workerCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.worker.Start(workerCtx)
	}()
	return nil
}

func (a *App) restore(ctx context.Context) {
	if !a.Store.HasSnapshots() {
		return
	}
	records, err := a.Store.LoadSnapshot(ctx, feed.DecodeValue)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		a.Logger.Warn("cache snapshot not restored", zap.Error(err))
		return
	}
	a.Cache.Restore(records)
	a.Logger.Debug("cache snapshot restored", zap.Int("entries", len(records)))
}

// Close stops the worker, saves the cache snapshot and closes the store.
func (a *App) Close(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
		a.wg.Wait()
	}
	defer a.Store.Close()

	if !a.Store.HasSnapshots() {
		return nil
	}
	if err := a.Store.SaveSnapshot(ctx, a.Cache.Snapshot()); err != nil {
		return fmt.Errorf("save cache snapshot: %w", err)
	}
	return nil
}

// SignIn exchanges credentials for a token and stores the session.
func (a *App) SignIn(ctx context.Context, creds api.Credentials) error {
	res, err := a.API.SignIn(ctx, creds)
	if err != nil {
		return err
	}
	return a.Auth.Login(ctx, res.Token, identity{a.API})
}

// SignUp registers an account and stores its session.
func (a *App) SignUp(ctx context.Context, params api.SignUpParams) error {
	res, err := a.API.SignUp(ctx, params)
	if err != nil {
		return err
	}
	return a.Auth.Login(ctx, res.Token, identity{a.API})
}

// SignOut forgets the session and every cached entry that belonged to it.
func (a *App) SignOut(ctx context.Context) error {
	for _, r := range a.Cache.Snapshot() {
		a.Cache.Evict(r.Key)
	}
	return a.Auth.Logout(ctx)
}

// identity asks the API who the current token belongs to.
type identity struct {
	client *api.Client
}

func (i identity) Me(ctx context.Context) (string, error) {
	me, err := i.client.Me(ctx)
	if err != nil {
		return "", err
	}
	return me.UserID, nil
}
