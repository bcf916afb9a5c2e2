package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/api"
	"github.com/Aidin1998/instapay/internal/bankdirectory"
	"github.com/Aidin1998/instapay/internal/config"
	"github.com/Aidin1998/instapay/internal/credentials"
	"github.com/Aidin1998/instapay/internal/database"
	"github.com/Aidin1998/instapay/internal/events"
	"github.com/Aidin1998/instapay/internal/fundledger"
	"github.com/Aidin1998/instapay/internal/gateway"
	"github.com/Aidin1998/instapay/internal/ledger"
	"github.com/Aidin1998/instapay/internal/reconciliation"
	rediscache "github.com/Aidin1998/instapay/internal/redis"
	"github.com/Aidin1998/instapay/internal/scheduler"
	"github.com/Aidin1998/instapay/pkg/logger"
	"github.com/Aidin1998/instapay/pkg/validation"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("instapay exited with error", zap.Error(err))
	}
	zapLogger.Info("Server exited properly")
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	defer sqlDB.Close()

	// Bank directory, optionally cached in redis
	var cache bankdirectory.Cache
	if cfg.Redis.Enabled {
		rdb, err := rediscache.Connect(ctx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Warn("redis unreachable, bank details will not be cached", zap.Error(err))
		} else {
			defer rdb.Close()
			cache = bankdirectory.NewRedisCache(rdb, cfg.BankDirectory.CacheTTL)
		}
	}
	directory := bankdirectory.NewClient(zapLogger, cfg.BankDirectory.BaseURL, cfg.BankDirectory.Timeout, cache)

	// Settlement gateway, with mutual TLS when a client certificate is configured
	tlsFiles := gateway.TLSFiles{
		CertFile:           cfg.Gateway.CertFile,
		KeyFile:            cfg.Gateway.KeyFile,
		CAFile:             cfg.Gateway.CAFile,
		InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
	}
	var gw *gateway.Client
	if tlsFiles.Enabled() {
		tlsConfig, err := gateway.LoadTLSConfig(tlsFiles)
		if err != nil {
			return err
		}
		gw = gateway.NewClient(zapLogger, cfg.Gateway.BaseURL, cfg.Gateway.Timeout, tlsConfig)
	} else {
		gw = gateway.NewClient(zapLogger, cfg.Gateway.BaseURL, cfg.Gateway.Timeout, nil)
	}

	var ledgerPoster reconciliation.LedgerPoster
	if cfg.Ledger.BaseURL != "" {
		years, err := config.ParseYearMap(cfg.Ledger.Databases)
		if err != nil {
			return fmt.Errorf("invalid ledger databases: %w", err)
		}
		ledgerPoster = ledger.NewClient(zapLogger, ledger.Options{
			BaseURL:   cfg.Ledger.BaseURL,
			Username:  cfg.Ledger.Username,
			Password:  cfg.Ledger.Password,
			BankCode:  cfg.Ledger.BankCode,
			Segment:   cfg.Ledger.Segment,
			Narration: cfg.Ledger.Narration,
			Databases: years,
			Timeout:   cfg.Ledger.Timeout,
		})
	} else {
		zapLogger.Warn("ledger base url not set, settled payouts will not be posted")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout)
	}
	defer publisher.Close()

	engine := reconciliation.NewEngine(zapLogger, reconciliation.NewGormRepository(db), reconciliation.Dependencies{
		Directory:   directory,
		Funds:       fundledger.NewManager(zapLogger, db),
		Gateway:     gw,
		Credentials: credentials.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
		Ledger:      ledgerPoster,
		Events:      publisher,
		Validator:   validation.NewValidator(zapLogger),
	}, reconciliation.Options{Concurrency: cfg.Scheduler.Concurrency})

	driver := scheduler.NewDriver(zapLogger, engine, cfg.Scheduler.Interval)
	if cfg.Scheduler.Enabled {
		driver.Start(ctx)
		defer driver.Stop()
	}

	// Schedule DB pool metrics collection every 30s
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				database.ReportPoolStats(db, cfg.Database.Driver)
			}
		}
	}()

	apiSecret := cfg.JWT.APISecret
	if apiSecret == "" {
		apiSecret = cfg.JWT.Secret
	}
	apiServer := api.NewServer(zapLogger, engine, driver, credentials.NewVerifier(apiSecret), sqlDB.PingContext, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}
	return nil
}
