package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multiblog-api/cache"
	"multiblog-api/config"
	"multiblog-api/content"
	"multiblog-api/handlers"
	"multiblog-api/identity"
	"multiblog-api/logging"
	"multiblog-api/query"
	"multiblog-api/repository"
	"multiblog-api/repository/memory"
	"multiblog-api/search"
)

type appStore interface {
	content.Store
	query.Store
	identity.UserStore
	handlers.Pinger
	ReconcileCommentCounts(ctx context.Context) (int64, error)
}

func main() {
	// ---- Load config
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ---- Store
	var store appStore
	switch cfg.StoreDriver {
	case "memory":
		var opts []memory.Option
		if cfg.RecountComments {
			opts = append(opts, memory.WithRecount())
		}
		store = memory.New(opts...)
		log.Warn("using in-memory store, data is lost on exit")
	default:
		pool, err := repository.Open(context.Background(), cfg.DSN(), int32(cfg.DBMaxConns))
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer pool.Close()
		log.Info("DB connected")

		pg := repository.NewStore(pool, repository.Options{
			Timeout:         cfg.StoreTimeout,
			RecountComments: cfg.RecountComments,
		})
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		store = pg
	}

	if cfg.ReconcileOnStart {
		fixed, err := store.ReconcileCommentCounts(context.Background())
		if err != nil {
			log.WithError(err).Error("comment count reconciliation failed")
		} else if fixed > 0 {
			log.WithField("posts", fixed).Warn("repaired drifted comment counts")
		}
	}

	// ---- Cache + search mirror (both optional)
	var contentOpts []content.Option
	var queryOpts []query.Option
	if cfg.RedisAddr != "" {
		rc := cache.New(cfg.RedisAddr, cfg.RedisDB, cfg.CacheTTL)
		defer rc.Close()
		if d := 2 * cfg.StoreTimeout; d > rc.TombstoneTTL {
			rc.TombstoneTTL = d
		}
		if err := rc.Ping(context.Background()); err != nil {
			log.WithError(err).Warn("redis unreachable, cache calls will fail until it is up")
		}
		contentOpts = append(contentOpts, content.WithCache(rc))
	}
	if cfg.ESAddr != "" {
		es, err := search.New(cfg.ESAddr, cfg.ESIndex)
		if err != nil {
			log.Fatalf("es init error: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := es.EnsureIndex(ctx); err != nil {
			log.WithError(err).Warn("es index setup failed")
		}
		cancel()
		contentOpts = append(contentOpts, content.WithIndexer(es))
		queryOpts = append(queryOpts, query.WithIndex(es, cfg.SearchBackend == "elasticsearch"))
	}

	ids := identity.New(store, cfg.JWTSecret, cfg.JWTTTL, log)
	router := handlers.NewRouter(handlers.Deps{
		Identity:    ids,
		Content:     content.New(store, log, contentOpts...),
		Query:       query.New(store, log, queryOpts...),
		Store:       store,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Listening on %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("server stopped")
}
