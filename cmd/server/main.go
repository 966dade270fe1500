package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iliyamo/foodshare/internal/config"
	"github.com/iliyamo/foodshare/internal/database"
	"github.com/iliyamo/foodshare/internal/handler"
	"github.com/iliyamo/foodshare/internal/logger"
	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/observability"
	"github.com/iliyamo/foodshare/internal/queue"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/router"
	"github.com/iliyamo/foodshare/internal/service"
	"github.com/iliyamo/foodshare/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	lg := logger.New(cfg.LogLevel).With("service", cfg.ServiceName, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	shutdownTracing, err := observability.InitTracing(ctx, lg, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), lg)
	if rdb != nil {
		defer rdb.Close()
	}

	qcfg := config.LoadQueueConfig()
	var events service.EventPublisher = queue.NopPublisher{}
	var async *queue.Async
	if qcfg.Enabled {
		async = queue.NewAsync(queue.NewPublisher(qcfg.URL, qcfg.Queue, lg), qcfg.Buffer, lg)
		events = async
		go func() {
			if err := queue.StartAuditConsumer(ctx, qcfg.URL, qcfg.Queue, qcfg.AuditDir, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("audit consumer stopped", "err", err)
			}
		}()
	}

	scfg := config.LoadStorageConfig()
	blobs, err := storage.NewLocal(scfg.UploadDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	businesses := repository.NewBusinessRepo(db)
	orgs := repository.NewOrganizationRepo(db)
	listingRepo := repository.NewListingRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	documentRepo := repository.NewDocumentRepo(db)

	engine := service.NewReservationService(db, listingRepo, businesses, orgs, reservationRepo, events, lg)
	listings := service.NewListingService(db, listingRepo, businesses, reservationRepo, engine, lg)
	documents := service.NewDocumentService(db, documentRepo, businesses, orgs, blobs, events, lg, scfg.MaxUploadBytes)
	accounts := service.NewAccountService(db, users, businesses, orgs, listingRepo, reservationRepo, documents, lg)

	if cfg.AdminEmail != "" {
		if err := accounts.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.AccessLog(lg))
	e.Use(observability.Middleware())
	// Multipart bodies carry the document plus form fields.
	e.Use(echomw.BodyLimit(bodyLimit(scfg.MaxUploadBytes)))

	router.Register(e, router.Deps{
		Cfg:          cfg,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		Idempotency:  config.LoadIdempotencyConfig(),
		Policy:       service.NewPolicy(),
		DB:           db,
		Redis:        rdb,
		Log:          lg,
		Auth:         handler.NewAuthHandler(cfg, users, tokens, accounts, lg),
		Listings:     handler.NewListingHandler(listings, engine, lg),
		Reservations: handler.NewReservationHandler(engine, lg),
		Documents:    handler.NewDocumentHandler(documents, lg),
		Partners:     handler.NewPartnerHandler(accounts, lg),
		Stats:        handler.NewStatsHandler(service.NewStatsService(repository.NewStatsRepo(db)), lg),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("listening", "addr", srv.Addr, "db", cfg.DBDriver, "redis", rdb != nil, "queue", qcfg.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", "err", err)
	}
	if async != nil {
		if err := async.Close(shutdownCtx); err != nil {
			lg.Warn("events not drained", "err", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("tracing shutdown", "err", err)
	}
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	var (
		db      *sql.DB
		err     error
		dialect string
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = database.OpenSQLite(cfg.DBPath)
		dialect = database.DialectSQLite
	default:
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		dialect = database.DialectMySQL
	}
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// bodyLimit formats the echo BodyLimit size: the upload cap plus 1 MiB of
// multipart overhead.
func bodyLimit(maxUpload int64) string {
	return strconv.FormatInt((maxUpload>>20)+1, 10) + "M"
}
