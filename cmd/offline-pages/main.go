// Точка входа Offline Pages — сервиса хранения метаданных и архивов
// offline-страниц.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arturkryukov/artsore/offline-pages/internal/api/handlers"
	"github.com/arturkryukov/artsore/offline-pages/internal/api/middleware"
	"github.com/arturkryukov/artsore/offline-pages/internal/config"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"
	"github.com/arturkryukov/artsore/offline-pages/internal/server"
	"github.com/arturkryukov/artsore/offline-pages/internal/service"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Offline Pages запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("db_dir", cfg.DBDir),
		slog.String("archives_dir", cfg.ArchivesDir),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Инициализация компонентов ---

	// 1. Политики namespace
	policies := policy.NewController()
	if cfg.PolicyFile != "" {
		policies, err = policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			logger.Error("Ошибка загрузки политик", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	logger.Info("Политики загружены", slog.Any("namespaces", policies.GetAllNamespaces()))

	// 2. Последовательность-владелец: все callback исполняются в ней
	owner := sequence.New("owner", logger)

	// 3. Хранилище метаданных (SQLite) и менеджер архивов
	store := metadata.New(owner, cfg.DBDir, logger)
	archives := archive.NewManager(cfg.ArchivesDir, owner, logger)

	// 4. Модель offline-страниц
	pageModel := service.NewModel(owner, store, archives, policies, service.ModelConfig{
		ConsistencyCheckDelay: cfg.ConsistencyDelay,
		MaxArchiveSize:        cfg.MaxArchiveSize,
	}, logger)
	pageModel.Start()

	// 5. Периодическая проверка согласованности
	consistencySvc := service.NewConsistencyService(pageModel, cfg.ConsistencyInterval, logger)
	consistencySvc.Start(ctx)

	// 6. Очистка хранилища
	storageCfg := service.DefaultStorageConfig()
	storageCfg.ClearInterval = cfg.ClearStorageInterval
	storageMgr := service.NewStorageManager(pageModel, archives, policies, storageCfg, nil, logger)
	storageMgr.Start(ctx, cfg.ClearStorageInterval)

	// 7. JWT-аутентификация и мониторинг JWKS (опционально)
	var (
		jwtAuth    *middleware.JWTAuth
		dephealthS *service.DephealthService
		deps       handlers.DependencyHealth
	)
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.CACertPath,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWT-аутентификации", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jwtAuth.Close()

		dephealthS, err = service.NewDephealthService(service.DephealthConfig{
			ServiceName:   serviceName(cfg.ServiceName),
			Group:         cfg.DephealthGroup,
			DepName:       "jwks",
			JWKSURL:       cfg.JWKSUrl,
			CheckInterval: cfg.DephealthCheckInterval,
			TLSSkipVerify: cfg.TLSSkipVerify,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации dephealth", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := dephealthS.Start(ctx); err != nil {
			logger.Error("Ошибка запуска dephealth", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps = dephealthS
	} else {
		logger.Warn("OP_JWKS_URL не задан, аутентификация /api/v1 отключена")
	}

	// 8. HTTP-обработчики и сервер
	srv := server.New(cfg, logger, server.Handlers{
		Health:      handlers.NewHealthHandler(pageModel, cfg.ArchivesDir, deps),
		Pages:       handlers.NewPagesHandler(pageModel, cfg.MaxArchiveSize, logger),
		Maintenance: handlers.NewMaintenanceHandler(consistencySvc, storageMgr),
		Auth:        jwtAuth,
	})

	runErr := srv.Run(ctx)

	// --- Остановка компонентов ---
	cancel()
	consistencySvc.Stop()
	storageMgr.Stop()
	if dephealthS != nil {
		dephealthS.Stop()
	}
	pageModel.Close()
	store.Close()
	archives.Close()
	owner.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Offline Pages остановлен")
}
