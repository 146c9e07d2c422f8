package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lablink/access"
	"lablink/audit"
	"lablink/db"
	"lablink/lifecycle"
	"lablink/maintenance"
	"lablink/notify"
	"lablink/qr"
	"lablink/realtime"
	"lablink/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config Config
	Log    *slog.Logger

	Repo       *db.Repo
	Policy     *access.Policy
	Lifecycle  *lifecycle.Service
	Resolver   *qr.Resolver
	Audit      *audit.Recorder
	Bus        *realtime.RedisBus
	Dispatcher *notify.Dispatcher

	appSess *session.AppSessionStore
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// New connects Postgres and Redis and wires the services. The router has
// CORS installed but no routes.
func New(cfg Config, log *slog.Logger) (*App, error) {
	// --- DB: Postgres ---
	dbConn, err := db.ConnectDB(cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := Wire(cfg, log, dbConn, rdb)

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	a.Router = r
	return a, nil
}

// Wire builds the service graph over already opened connections.
func Wire(cfg Config, log *slog.Logger, dbConn *gorm.DB, rdb *redis.Client) *App {
	repo := db.NewRepo(dbConn)
	policy := access.NewPolicy(repo, cfg.AdminUserIDs)
	recorder := audit.NewRecorder(repo, log)
	bus := realtime.NewRedisBus(rdb, realtime.DefaultChannel)

	var maint maintenance.Sink = maintenance.LogSink{Log: log}
	if cfg.MaintenanceWebhookURL != "" {
		maint = maintenance.NewWebhookSink(cfg.MaintenanceWebhookURL, nil)
	}

	return &App{
		DB:         dbConn,
		RDB:        rdb,
		Config:     cfg,
		Log:        log,
		Repo:       repo,
		Policy:     policy,
		Lifecycle:  lifecycle.NewService(repo, policy, log),
		Resolver:   qr.NewResolver(repo, log),
		Audit:      recorder,
		Bus:        bus,
		Dispatcher: notify.NewDispatcher(repo, repo, recorder, bus, maint, log, notify.WithRate(cfg.DispatchRate)),
		appSess:    session.NewAppSessionStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
