package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"catalogserver/catalog"
	"catalogserver/database"
	"catalogserver/internal/config"
	"catalogserver/pipeline"
	"catalogserver/server/services"
)

// Server HTTP сервер каталога
type Server struct {
	config *config.Config
	logger *slog.Logger

	ruleDB    *database.RuleDB
	catalogDB *database.CatalogDB
	snapshots *catalog.SnapshotStore

	pipelineService *services.PipelineService
	matchingService *services.MatchingService
	searchService   *services.SearchService
	rulesetService  *services.RulesetService
	reportService   *services.ReportService

	httpServer *http.Server
	scheduler  *cron.Cron
}

// NewServer создает сервер и собирает граф сервисов
func NewServer(cfg *config.Config, ruleDB *database.RuleDB, catalogDB *database.CatalogDB) *Server {
	logger := newLogger(cfg.LogLevel)

	snapshots := catalog.NewSnapshotStore()
	pl := pipeline.NewPipeline(catalogDB, ruleDB, snapshots, cfg.PipelineWorkers, logger)

	s := &Server{
		config:    cfg,
		logger:    logger,
		ruleDB:    ruleDB,
		catalogDB: catalogDB,
		snapshots: snapshots,

		pipelineService: services.NewPipelineService(pl, catalogDB, logger),
		matchingService: services.NewMatchingService(snapshots, ruleDB),
		searchService:   services.NewSearchService(catalogDB, ruleDB),
		rulesetService:  services.NewRulesetService(ruleDB),
		reportService:   services.NewReportService(snapshots),
	}
	return s
}

// Start запускает HTTP сервер и фоновый планировщик
func (s *Server) Start() error {
	// Восстанавливаем срез рынка из БД: после рестарта точечные
	// запросы должны работать без повторного импорта
	s.restoreSnapshot()

	if err := s.startScheduler(); err != nil {
		return fmt.Errorf("не удалось запустить планировщик: %w", err)
	}

	addr := fmt.Sprintf(":%s", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("Сервер запускается", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер с ожиданием активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Остановка сервера")
	return s.httpServer.Shutdown(ctx)
}

// restoreSnapshot пересобирает срез рынка из сохраненных позиций.
// Ошибка не фатальна: пустая БД на первом запуске - штатная ситуация.
func (s *Server) restoreSnapshot() {
	currentRunID, err := s.catalogDB.CurrentRunID()
	if err != nil || currentRunID == 0 {
		s.logger.Info("Опубликованный срез рынка отсутствует, ожидается импорт")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	run, err := s.pipelineService.RefreshCatalog(ctx)
	if err != nil {
		s.logger.Warn("Не удалось восстановить срез рынка", "error", err)
		return
	}
	s.logger.Info("Срез рынка восстановлен", "run_id", run.ID)
}

// startScheduler включает периодический пересчет каталога, если задан
// cron-спек в конфигурации
func (s *Server) startScheduler() error {
	if s.config.RefreshCronSpec == "" {
		return nil
	}

	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(s.config.RefreshCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		run, err := s.pipelineService.RefreshCatalog(ctx)
		if err != nil {
			s.logger.Error("Плановый пересчет каталога не выполнен", "error", err)
			return
		}
		s.logger.Info("Плановый пересчет каталога завершен",
			"run_id", run.ID, "status", string(run.Status))
	})
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.logger.Info("Планировщик пересчета запущен", "spec", s.config.RefreshCronSpec)
	return nil
}

// newLogger создает slog логгер с заданным уровнем
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		slogLevel = slog.LevelDebug
	case "WARN":
		slogLevel = slog.LevelWarn
	case "ERROR":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ginMode возвращает режим gin в зависимости от уровня логирования
func ginMode(level string) string {
	if strings.ToUpper(level) == "DEBUG" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
