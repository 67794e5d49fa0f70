package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"PRoom/config"
	mgoutil "PRoom/data/database/mgo/mongoutil"
	gconfig "PRoom/global/config"
	"PRoom/logger"
	"PRoom/middleware"
	midsec "PRoom/middleware/security"
	"PRoom/module/room"
	"PRoom/module/room/service"
	"PRoom/module/room/store"
	"PRoom/service/audit"
	"PRoom/service/events"
	"PRoom/service/mgo"
	"PRoom/service/storage"
	rds "PRoom/service/storage/redis"
	"PRoom/tools/errs"
	"PRoom/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := gconfig.ConfigAll(); err != nil {
		logger.Error("config", zap.Error(err))
		os.Exit(1)
	}
	if err := run(gconfig.Global); err != nil {
		logger.Error("proom stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg gconfig.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	groups, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, err := events.New(cfg.Events)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	recorder, flushAudit := openAudit(ctx, cfg.Mongo)
	defer flushAudit()

	repo := store.NewRepo(groups, cfg.Lifecycle.StoreTimeout)
	coord := service.NewCoordinator(service.Options{
		Repo:           repo,
		Audit:          recorder,
		Events:         sink,
		MaxRetries:     cfg.Lifecycle.MaxRetries,
		ServiceVersion: cfg.Version,
	})

	if cfg.Nacos.Addr != "" {
		err := config.StartNacosWatcher(ctx, cfg.Nacos, config.Targets{
			SetLogLevel:     logger.SetLevel,
			SetMaxRetries:   coord.SetMaxRetries,
			SetStoreTimeout: repo.SetTimeout,
		})
		if err != nil {
			logger.Warn("nacos watcher not started, using env settings", zap.Error(err))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	auth := midsec.Middleware(midsec.Options{
		JWT:         security.Options{Secret: []byte(cfg.Auth.JWTSecret), Alg: cfg.Auth.JWTAlg},
		TrustHeader: cfg.Auth.TrustHeader,
		OnReject: func(c *gin.Context, err error) {
			coord.Reject(c.Request.Context(), "", errs.ErrIdentityMismatch.WrapData(
				map[string]any{"Path": c.Request.URL.Path, "Reason": err.Error()}, "Unauthenticated caller"))
		},
	})
	room.NewHandler(coord, cfg.Version).Register(engine, auth)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("proom listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store),
			zap.String("events", cfg.Events.Sink))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg gconfig.AppConfig) (storage.GroupStore, func(), error) {
	switch strings.ToLower(cfg.Store) {
	case gconfig.StoreMemory:
		logger.Warn("memory store selected, state is lost on restart")
		return storage.NewMemoryGroupStore(), func() {}, nil
	case gconfig.StorePostgres:
		pg, err := storage.OpenPgGroupStore(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		err := rds.InitRedis(rds.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisGroupStore(rds.GetRedis(), cfg.Redis.Prefix), func() { _ = rds.CloseRedis() }, nil
	}
}

// openAudit connects to Mongo in the background; until it is up, failures
// are logged instead of stored.
func openAudit(ctx context.Context, c gconfig.MongoConfig) (service.FailureRecorder, func()) {
	if !c.Enabled {
		return audit.LogSink{}, func() {}
	}
	mgo.StartAsync(ctx, &mgoutil.Config{
		Uri:         c.Uri,
		Database:    c.Database,
		Username:    c.Username,
		Password:    c.Password,
		MaxPoolSize: c.MaxPoolSize,
	})
	sink := audit.NewMongoSink(audit.ManagerSource(mgo.Manager(), c.Collection))
	return sink, sink.Flush
}
