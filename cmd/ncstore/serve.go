package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/ncstore/internal/api/handlers"
	"github.com/bigkaa/ncstore/internal/api/middleware"
	"github.com/bigkaa/ncstore/internal/api/openapi"
	"github.com/bigkaa/ncstore/internal/config"
	"github.com/bigkaa/ncstore/internal/database"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/server"
	"github.com/bigkaa/ncstore/internal/service"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

// runServe загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и запускает HTTP-сервер с graceful shutdown.
func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	// 1. Загрузка конфигурации из переменных окружения
	// 2. Настройка логирования
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger.Info("ncstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("auth", cfg.AuthEnabled()),
	)
	if os.Getenv("NC_DEPHEALTH_GROUP") == "" {
		logger.Warn("NC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	// Проверка PostgreSQL идёт через тот же пул соединений.
	pgDB := database.OpenSQLDB(pool)
	defer pgDB.Close()

	// 5. Хранилище файлов ревизий
	files, err := filestore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("хранилище файлов: %w", err)
	}

	// 6. Сервисный слой
	store := repository.NewStore(pool)
	cache := service.NewContentCache(cfg.ContentCacheSize, cfg.ContentCacheTTL)
	workflowSvc := service.NewWorkflowService(store, logger)
	svc := handlers.Services{
		Programs:  service.NewProgramService(store, files, cache, cfg.MaxUploadSize, logger),
		Revisions: service.NewRevisionService(store, files, cache, cfg.MaxUploadSize, logger),
		Rollback:  service.NewRollbackService(store, cache, logger),
		Workflow:  workflowSvc,
	}

	// 7. Сверка каталога состояний в БД с таблицей переходов
	if err := workflowSvc.VerifyCatalog(ctx); err != nil {
		return fmt.Errorf("каталог workflow: %w", err)
	}

	// 8. OpenAPI документ
	doc, err := openapi.Load(ctx)
	if err != nil {
		return fmt.Errorf("OpenAPI: %w", err)
	}
	openAPIHandler, err := openapi.Handler(doc)
	if err != nil {
		return fmt.Errorf("OpenAPI: %w", err)
	}

	// 9. Мониторинг зависимостей (topologymetrics)
	jwksURL := ""
	if cfg.AuthEnabled() {
		jwksURL = cfg.JWTJWKSURL
	}
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "ncstore",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       jwksURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("topologymetrics: %w", err)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		return fmt.Errorf("запуск topologymetrics: %w", err)
	}
	defer dephealthSvc.Stop()

	// 10. Middleware: метрики, логирование, JWT (если настроен JWKS)
	middlewares := []func(next http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	var jwksChecker handlers.ReadinessChecker
	if cfg.AuthEnabled() {
		auth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWTJWKSURL,
			Issuer:          cfg.JWTIssuer,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return fmt.Errorf("JWT middleware: %w", err)
		}
		middlewares = append(middlewares, server.JWTAuthWithExclusions(auth.Middleware(), server.PublicPrefixes...))
		jwksChecker = middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSClientTimeout)
	} else {
		logger.Warn("NC_JWT_JWKS_URL не задан, аутентификация отключена",
			slog.String("author", middleware.AnonymousAuthor),
		)
	}

	// 11. Health и API handlers
	health := handlers.NewHealthHandler(database.NewReadinessChecker(pool), files, jwksChecker)
	apiHandler := handlers.NewAPIHandler(health, openAPIHandler, svc, cfg.MaxUploadSize, logger)

	// 12. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("ncstore остановлен")
	return nil
}
