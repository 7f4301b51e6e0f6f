package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"taskflow/internal/auth"
	"taskflow/internal/config"
	"taskflow/internal/events"
	"taskflow/internal/handlers"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"
	"taskflow/internal/repository/task/inmemory"
	"taskflow/internal/repository/task/postgres"
	"taskflow/internal/service"
	"taskflow/internal/worker"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.TaskRepository
	publisher  events.Publisher
	tasks      *service.TaskService
	users      *service.AuthService
	worker     *worker.OverdueWorker
	shutdowns  []func()
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("Shutting down logger")
		logger.Sync()
	})

	if err := a.initRepository(ctx); err != nil {
		return err
	}
	if err := a.initPublisher(); err != nil {
		return err
	}

	policy, err := a.config.TimelinePolicy()
	if err != nil {
		return err
	}
	a.tasks = service.NewTaskService(a.repository, a.publisher, policy)

	provider, err := a.authProvider()
	if err != nil {
		return err
	}
	a.users = service.NewAuthService(provider, service.AuthRedirects{
		Confirm: a.config.CallbackURL("/auth/callback"),
		Reset:   a.config.CallbackURL("/auth/reset-password/callback"),
	})

	if a.config.Worker.Enabled {
		interval, batch := a.config.Worker.Interval, a.config.Worker.BatchSize
		a.worker = worker.NewOverdueWorker(a.repository, a.publisher, &interval, &batch)
	}

	a.initRouter()
	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      otelhttp.NewHandler(a.router, "taskflow-api"),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
	return nil
}

func (a *App) initRepository(ctx context.Context) error {
	switch a.config.Repository.Type {
	case "postgres":
		if a.config.Database.Migrate {
			if err := postgres.Migrate(a.config.Database.URL); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		storage, err := postgres.New(ctx, a.config.Database.URL, postgres.PoolConfig{
			MaxConns:        int32(a.config.Database.MaxConnections),
			MinConns:        int32(a.config.Database.MinConnections),
			MaxConnIdleTime: a.config.Database.IdleTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.repository = storage
		a.shutdowns = append(a.shutdowns, storage.Close)
	case "inmemory":
		a.repository = inmemory.NewTaskStorage()
		logger.Warn("Repository: Using in-memory storage, tasks are lost on restart")
	default:
		return fmt.Errorf("unknown repository type %q", a.config.Repository.Type)
	}
	return nil
}

func (a *App) initPublisher() error {
	if !a.config.Events.Enabled {
		a.publisher = events.Nop{}
		return nil
	}
	pub, err := events.NewNATSPublisher(a.config.Events.NATSURL, a.config.Events.SubjectPrefix)
	if err != nil {
		return err
	}
	a.publisher = pub
	a.shutdowns = append(a.shutdowns, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("Events: Failed to close publisher", zap.Error(err))
		}
	})
	return nil
}

func (a *App) authProvider() (auth.Provider, error) {
	cfg := a.config.Auth
	switch cfg.Provider {
	case "remote":
		p, err := auth.NewRemoteProvider(auth.RemoteConfig{
			BaseURL:      cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			APIKey:       cfg.APIKey,
			JWTSecret:    cfg.JWTSecret,
			Timeout:      cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote auth provider: %w", err)
		}
		return p, nil
	case "local":
		var opts []auth.LocalOption
		if cfg.AutoConfirm {
			opts = append(opts, auth.WithAutoConfirm())
		}
		return auth.NewLocalProvider(auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), opts...), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

func (a *App) initRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))
	if a.config.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(a.config.Server.RateLimit))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	pages := handlers.DefaultAuthPages()
	taskHandler := handlers.NewTaskHandler(a.tasks)
	authHandler := handlers.NewAuthHandler(a.users, pages, a.config.Auth.CookieSecure)
	handlers.Mount(r, &taskHandler, &authHandler, a.users)

	a.router = r
}

// Handler is the instrumented HTTP handler the server runs.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP and runs the overdue worker until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP: Server started", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if a.worker != nil {
		g.Go(func() error {
			a.worker.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		start := time.Now()
		logger.Info("HTTP: Shutting down server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("HTTP: Server stopped", zap.Duration("ms", time.Since(start)))
		return nil
	})

	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}
