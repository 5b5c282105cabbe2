package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func() error
	stoppers       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(DefaultConfigFile, DefaultEnvFile, GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %w", err)
	}

	// ensure the logs folder exists and setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %w", err)
	}
	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, NewTickClock(clock))

	app := &App{
		logger:   logger,
		config:   config,
		cleanups: []func() error{flusher, logWriter.Close},
	}

	storage, err := app.setupStorage()
	if err != nil {
		app.Clean()
		return nil, err
	}

	queue, err := app.setupMirror()
	if err != nil {
		app.Clean()
		return nil, err
	}

	bookService := NewBookService(logger, config, storage, queue)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		bookService,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        apiService.Handler(),
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}
	return app, nil
}

// setupStorage connects to the configured backend and registers its cleanup.
func (app *App) setupStorage() (BookStorage, error) {
	app.logger.Info("storage setup", zap.String("storage.driver", app.config.Storage.Driver))
	switch app.config.Storage.Driver {
	case PostgresDriver:
		db, err := GetPostgresClient(app.config, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres server: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access postgres connection pool: %w", err)
		}
		app.cleanups = append(app.cleanups, sqlDB.Close)
		return NewPostgresBookStorage(app.logger, db), nil

	case RedisDriver:
		client, err := GetRedisClient(app.config)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis server: %w", err)
		}
		app.cleanups = append(app.cleanups, client.Close)
		return NewRedisBookStorage(app.logger, client), nil

	case BoltDriver:
		client, err := GetBoltDBClient(app.config)
		if err != nil {
			return nil, fmt.Errorf("failed to open boltdb database: %w", err)
		}
		storage := NewBoltBookStorage(app.logger, &app.config.BoltDB, client)
		app.cleanups = append(app.cleanups, storage.Close)
		return storage, nil

	default:
		return NewMemoryBookStorage(), nil
	}
}

// setupMirror builds the redis queue the service publishes changes to and
// the consumer replaying them into the boltdb replica. It returns a nil
// queue when mirroring is disabled.
func (app *App) setupMirror() (Queuer, error) {
	if !app.config.Mirror.Enable {
		return nil, nil
	}
	redisClient, err := GetRedisClient(app.config)
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis server: %w", err)
	}
	app.cleanups = append(app.cleanups, func() error {
		if app.stoppers == nil {
			return nil
		}
		return redisClient.Close()
	})
	// closing the client releases the consumer blocked on the queue.
	app.stoppers = append(app.stoppers, redisClient.Close)

	boltDBClient, err := GetBoltDBClient(app.config)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb replica: %w", err)
	}
	replica := NewBoltBookStorage(app.logger, &app.config.BoltDB, boltDBClient)
	app.cleanups = append(app.cleanups, replica.Close)

	queue := NewRedisQueue(redisClient, MirrorQueue)
	consumer := NewMirrorConsumer(app.logger.Named("mirror"), queue, replica)
	app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
		return consumer.Consume(ctx)
	})
	app.logger.Info("mirror setup", zap.String("boltdb.file", app.config.BoltDB.FilePath))
	return queue, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
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

// Clean calls all registered cleanups functions in reverse order
// so the log writer is the last one to be closed.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		if err := app.cleanups[i](); err != nil {
			fmt.Fprintln(os.Stderr, "cleanup failed:", err)
		}
	}
	app.cleanups = nil
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
		if errors.Is(err, http.ErrServerClosed) {
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
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}

		for _, stop := range app.stoppers {
			if err := stop(); err != nil {
				app.logger.Error("failed to stop queue client", zap.Error(err))
			}
		}
		app.stoppers = nil
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
