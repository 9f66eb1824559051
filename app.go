package main

import (
	"context"
	"io"
	"net/http"
	"os"

	"hubtask/auth"
	"hubtask/config"
	"hubtask/handlers"
	"hubtask/lark"
	"hubtask/migrations"
	"hubtask/repositories"
	"hubtask/routes"
	"hubtask/services"
	"hubtask/storage"
	"hubtask/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// app holds every wired component. Repositories stay nil when the database
// is unreachable; the endpoints that need them answer with a store error.
type app struct {
	cfg *config.Config
	db  *gorm.DB

	identity     *auth.LarkIdentity
	tokens       *auth.TokenManager
	sync         *services.SyncService
	embeddings   *services.EmbeddingService
	orchestrator *services.Orchestrator
	proxy        *services.ProxyService
	reads        *services.ReadService
	search       *services.SearchService
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}))
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var (
		tokenRepo   repositories.TokenRepository
		taskRepo    repositories.TaskRepository
		commentRepo repositories.CommentRepository
		logRepo     repositories.SyncLogRepository
		indexRepo   repositories.EmbeddingRepository
	)

	db, err := repositories.OpenDB(cfg)
	if err != nil {
		logrus.WithError(err).Error("Database unavailable, running without the store")
	} else if err := migrations.RunMigrations(db); err != nil {
		logrus.WithError(err).Error("Migrations failed, running without the store")
	} else {
		a.db = db

		cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, err
		}
		tokenRepo = repositories.NewTokenRepository(db, cipher)
		taskRepo = repositories.NewTaskRepository(db)
		commentRepo = repositories.NewCommentRepository(db)
		logRepo = repositories.NewSyncLogRepository(db)
		indexRepo = repositories.NewEmbeddingRepository(db)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	a.identity = auth.NewLarkIdentity(cfg, httpClient)
	a.tokens = auth.NewTokenManager(tokenRepo, a.identity)
	larkClient := lark.NewClient(cfg, httpClient)

	archive, err := storage.NewArchive(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Warn("Snapshot archive disabled")
		archive = nil
	}

	var embedder services.Embedder
	if e := services.NewWorkersAIEmbedder(cfg, httpClient); e != nil {
		embedder = e
	}

	a.sync = services.NewSyncService(cfg, larkClient, a.identity, a.tokens, taskRepo, commentRepo, logRepo, archive)
	a.embeddings = services.NewEmbeddingService(embedder, indexRepo, taskRepo, logRepo)

	var embedRunner services.Runner
	if a.embeddings.Enabled() {
		embedRunner = a.embeddings.SyncEmbeddings
	}
	a.orchestrator = services.NewOrchestrator(logRepo, a.sync.SyncBitable, a.sync.SyncTaskV2, a.sync.SyncComments, embedRunner)

	a.proxy = services.NewProxyService(cfg, larkClient, a.identity)
	a.reads = services.NewReadService(taskRepo, commentRepo, logRepo)
	a.search = services.NewSearchService(taskRepo, a.embeddings, cfg.SemanticSearch)
	return a, nil
}

func (a *app) handlers() routes.Handlers {
	return routes.Handlers{
		OAuth: handlers.NewOAuthHandler(a.cfg, a.identity, a.tokens),
		Proxy: handlers.NewProxyHandler(a.proxy, a.tokens, a.identity),
		Sync:  handlers.NewSyncHandler(a.sync, a.embeddings, a.orchestrator, a.tokens),
		DB:    handlers.NewDBHandler(a.reads, a.search),
	}
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
