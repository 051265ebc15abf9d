package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger   *zap.Logger
	config   *Config
	server   *http.Server
	cleanups []func()
	workers  []func(context.Context) error
}

// stores groups what the selected storage engine provides.
type stores struct {
	books    BookStorage
	ledger   ReservationStorage
	tx       ReservationTransactor
	queue    Queuer
	notifier Notifier
	cleanups []func()
	workers  []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}
	clock := NewClock(config.IsProduction)

	// ensure the logs folder exists and Setup the logging module.
	err = os.MkdirAll(config.LogFolder, 0o700)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)
	closer := func() {
		if err := flusher(); err != nil {
			fmt.Println("error during flushing of logs: ", err)
		}
		if err := logWriter.Close(); err != nil {
			fmt.Println("error during closing of log file: ", err)
		}
	}

	s, err := setupStores(context.Background(), logger, config)
	if err != nil {
		closer()
		return nil, err
	}

	// Every successful row write is published to the changes feed.
	books := NewNotifyingBookStorage(logger, clock, s.notifier, s.books)
	ledger := NewNotifyingReservationStorage(logger, clock, s.notifier, s.ledger)
	tx := NewNotifyingTransactor(logger, clock, s.notifier, s.tx)

	metrics := NewMetrics()
	idsHandler := NewIDsHandler()
	bookService := NewBookService(logger, config, clock, books, s.queue)
	coordinator := NewReservationCoordinator(logger, config.Reservation, clock, idsHandler, books, ledger, tx, s.queue, metrics)
	cache := NewViewCache(logger, clock, config.Cache.TTL, metrics, books, ledger)

	stats := &Statistics{
		version:   config.GitTag,
		container: IsAppRunningInDocker(),
		started:   clock.Now(),
		runtime:   runtime.Version(),
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		stats.version = config.GitCommit
	}
	apiService := NewAPIHandler(logger, config, stats, clock, idsHandler, bookService, coordinator, cache, s.notifier, metrics)

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps, middlewaresStream := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
			stream: middlewaresStream.Chain,
		},
	)
	// Wrap the router with the default http timeout handler. The
	// changes stream is long lived and needs the raw connection.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/changes" {
			router.ServeHTTP(w, r)
			return
		}
		routerWithTimeout.ServeHTTP(w, r)
	})

	// Build the api server definition.
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        handler,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
		ConnContext:    SaveConnInContext,
	}

	workers := append(s.workers, func(ctx context.Context) error {
		return cache.Watch(ctx, s.notifier)
	})

	return &App{
		logger:   logger,
		config:   config,
		server:   srv,
		cleanups: append(s.cleanups, closer),
		workers:  workers,
	}, nil
}

// setupStores connects the configured storage engine and the optional bolt archive.
func setupStores(ctx context.Context, logger *zap.Logger, config *Config) (*stores, error) {
	s := &stores{queue: NewNoopQueue()}
	switch config.Storage.Engine {
	case EngineRedis:
		redisClient, err := GetRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis server: %s", err)
		}
		rs := NewRedisStorage(logger, redisClient, config.Redis.TxMaxRetries)
		s.books, s.ledger, s.tx = rs, rs, rs
		s.notifier = NewRedisNotifier(logger, redisClient, config.Notifier)
		s.cleanups = append(s.cleanups, func() { _ = redisClient.Close() })

		if config.Storage.ArchiveEnable {
			boltDBClient, err := GetBoltDBClient(config)
			if err != nil {
				_ = redisClient.Close()
				return nil, fmt.Errorf("failed to open the boltdb archive: %s", err)
			}
			archive := NewBoltStorage(logger, &config.BoltDB, boltDBClient)
			s.queue = NewRedisQueue(redisClient)
			consumer := NewArchiveConsumer(logger, s.queue, archive)
			s.workers = append(s.workers, func(ctx context.Context) error {
				return consumer.Consume(ctx, CreateQueue, UpdateQueue, DeleteQueue, LedgerQueue)
			})
			// the archive is closed before redis.
			s.cleanups = append([]func(){func() { _ = archive.Shutdown() }}, s.cleanups...)
		}

	case EngineBolt:
		boltDBClient, err := GetBoltDBClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to open the boltdb database: %s", err)
		}
		bs := NewBoltStorage(logger, &config.BoltDB, boltDBClient)
		s.books, s.ledger, s.tx = bs, bs, bs
		s.notifier = NewMemoryNotifier(logger, config.Notifier.BufferSize)
		s.cleanups = append(s.cleanups, func() { _ = bs.Shutdown() })

	case EnginePostgres:
		pool, err := GetPostgresPool(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres server: %s", err)
		}
		ps := NewPostgresStorage(logger, pool)
		if config.Postgres.MigrateOnStart {
			if err = ps.EnsureSchema(ctx); err != nil {
				ps.Shutdown()
				return nil, fmt.Errorf("failed to setup postgres schema: %s", err)
			}
		}
		s.books, s.ledger, s.tx = ps, ps, ps
		s.notifier = NewMemoryNotifier(logger, config.Notifier.BufferSize)
		s.cleanups = append(s.cleanups, ps.Shutdown)

	default:
		return nil, fmt.Errorf("unknown storage engine %q", config.Storage.Engine)
	}

	logger.Info("storage ready",
		zap.String("storage.engine", config.Storage.Engine),
		zap.Bool("storage.archive", config.Storage.ArchiveEnable && config.Storage.Engine == EngineRedis),
		zap.String("reservation.mode", config.Reservation.Mode),
	)
	return s, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.RunWorkers(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch err {
		case nil, http.ErrServerClosed:
			app.logger.Info("api server graceful shutdown succeeded")
		case context.DeadlineExceeded:
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// RunWorkers runs the queue consumers and the cache watcher into separate controlled goroutines.
func (app *App) RunWorkers(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, work := range app.workers {
			work := work
			g.Go(func() error {
				return work(gCtx)
			})
		}
		return nil
	}
}
