// Copyright 2026 The CreditFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/audit"
	"github.com/creditflow/creditflow/internal/browser"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/observability/logger"
	"github.com/creditflow/creditflow/internal/observability/metrics"
	"github.com/creditflow/creditflow/internal/observability/tracing"
	"github.com/creditflow/creditflow/internal/secrets"
	"github.com/creditflow/creditflow/internal/store/postgres"
	"github.com/creditflow/creditflow/internal/syncer"
	"github.com/creditflow/creditflow/internal/transport/bridge"
	transportHTTP "github.com/creditflow/creditflow/internal/transport/http"
)

func main() {
	// Local development reads .env; absence is fine in production.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting creditflow sync engine")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	_, err = metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(db)
	planRepo := postgres.NewPlanRepository(db)
	memberRepo := postgres.NewMemberRepository(db)
	creditLogRepo := postgres.NewCreditLogRepository(db)
	storageLogRepo := postgres.NewStorageLogRepository(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	cipher, err := secrets.NewCipher(cfg.Security.MasterSecret)
	if err != nil {
		slog.Error("failed to derive credential cipher", logger.Error(err))
		os.Exit(1)
	}

	// Initialize services
	accountService := account.NewService(accountRepo, planRepo, cipher)
	registry := syncer.NewStatusRegistry()
	reconciler := syncer.NewReconciler(accountRepo, memberRepo, creditLogRepo, storageLogRepo, slog.Default())

	// The engine either drives a local browser or proxies to a remote
	// host that has one.
	var engine syncer.Engine
	switch cfg.Bridge.Mode {
	case "remote":
		slog.Info("using remote bridge engine", logger.String("remote_url", cfg.Bridge.RemoteURL))
		engine = bridge.NewClient(bridge.Config{
			BaseURL:  cfg.Bridge.RemoteURL,
			Secret:   cfg.Bridge.Secret,
			TokenTTL: cfg.Bridge.TokenTTL,
		})
	default:
		factory := browser.NewChromeFactory(cfg.Automation.Headless, cfg.Automation.ProfileDir)
		engine = syncer.NewService(
			accountService,
			memberRepo,
			reconciler,
			registry,
			factory,
			auditLogger,
			slog.Default(),
			syncer.Config{
				StepTimeout:     cfg.Automation.StepTimeout,
				BatchSize:       cfg.Automation.BatchSize,
				DefaultInterval: cfg.Automation.DefaultInterval,
			},
		)
	}

	// Scheduler drives periodic syncs per account plan
	scheduler := syncer.NewScheduler(engine, accountService,
		cfg.Automation.ControlCadence, cfg.Automation.DefaultInterval, slog.Default())
	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	go scheduler.Run(schedCtx)

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(engine, cfg.Bridge.Secret)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	schedCancel()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
