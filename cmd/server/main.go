// Command recebi-server starts the Recebi reception API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/recebi/internal/config"
	"github.com/and161185/recebi/internal/feed"
	"github.com/and161185/recebi/internal/limiter"
	"github.com/and161185/recebi/internal/logger"
	"github.com/and161185/recebi/internal/migrate"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository/postgres"
	httpserver "github.com/and161185/recebi/internal/server/http"
	"github.com/and161185/recebi/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves the HTTP API until a signal arrives.
func main() {
	cfg, err := config.Load(os.Args[1:], ".env")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.Dev)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		log.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		log.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	topic := cfg.FeedTopic()
	uow := postgres.NewUnitOfWork(db, topic)
	reads := postgres.Bind(db.Pool, topic)

	lim := limiter.NewPG(db.Pool, 15*time.Minute, 5, 15*time.Minute)

	// Services
	dirSvc := service.NewDirectoryService(reads, uow)
	authSvc := service.NewAuthService(dirSvc, reads.Actors, []byte(cfg.JWTKey), cfg.AccessTTL, lim)
	ledgerSvc := service.NewLedgerService(reads, uow, service.NewResolver(reads.History))
	historySvc := service.NewHistoryService(reads.History)

	if cfg.BootstrapEmail != "" {
		created, err := dirSvc.Bootstrap(ctx, model.ActorDraft{
			Name:   cfg.BootstrapName,
			Email:  cfg.BootstrapEmail,
			Secret: cfg.BootstrapSecret,
			Role:   model.RoleManager,
		})
		if err != nil {
			log.Fatal("bootstrap manager", zap.Error(err))
		}
		if created {
			log.Info("bootstrap manager created", zap.String("email", cfg.BootstrapEmail))
		}
	}

	var pub *feed.Publisher
	if cfg.FeedEnabled() {
		pub = feed.NewPublisher(uow, feed.NewKafkaProducer(cfg.KafkaBrokers), feed.Config{
			PollInterval: cfg.FeedPoll,
			BatchSize:    cfg.FeedBatch,
		}, log.Named("feed"))
		go pub.Run(ctx)
		log.Info("history feed enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", topic))
	}

	api := httpserver.New(authSvc, dirSvc, ledgerSvc, historySvc, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCert != "" {
			log.Info("listening (TLS)", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			return
		}
		log.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			exit = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
		_ = srv.Close()
	}
	if pub != nil {
		if err := pub.Shutdown(shutdownCtx); err != nil {
			log.Warn("feed shutdown", zap.Error(err))
		}
	}

	log.Info("shutdown complete")
	if exit != 0 {
		os.Exit(exit)
	}
}
