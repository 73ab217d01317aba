// Пакет server — HTTP-сервер Offline Pages с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/artsore/offline-pages/internal/api/handlers"
	"github.com/arturkryukov/artsore/offline-pages/internal/api/middleware"
	"github.com/arturkryukov/artsore/offline-pages/internal/config"
)

// Handlers — обработчики, монтируемые в роутер.
type Handlers struct {
	Health      *handlers.HealthHandler
	Pages       *handlers.PagesHandler
	Maintenance *handlers.MaintenanceHandler
	// Auth — JWT middleware; nil отключает аутентификацию /api/v1
	Auth *middleware.JWTAuth
}

// NewRouter строит chi-роутер со всеми endpoints.
func NewRouter(logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// requireScope — проверка scope только при включённой аутентификации
	requireScope := func(scope string) func(http.Handler) http.Handler {
		if h.Auth == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireScope(scope)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Auth != nil {
			r.Use(h.Auth.Middleware())
		}

		r.Group(func(r chi.Router) {
			r.Use(requireScope(middleware.ScopePagesRead))
			r.Get("/pages", h.Pages.ListPages)
			r.Get("/pages/{offlineID}", h.Pages.GetPage)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireScope(middleware.ScopePagesWrite))
			r.Post("/pages", h.Pages.SavePage)
			r.Post("/pages/{offlineID}/access", h.Pages.MarkAccessed)
			r.Delete("/pages/{offlineID}", h.Pages.DeletePage)
			r.Post("/maintenance/consistency-check", h.Maintenance.ConsistencyCheck)
			r.Post("/maintenance/clear-storage", h.Maintenance.ClearStorage)
		})
	})

	return router
}

// Server — HTTP-сервер Offline Pages.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx, затем выполняет graceful shutdown с OP_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
