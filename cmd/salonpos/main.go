package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"salon-pos/internal/config"
	"salon-pos/internal/httpapi"
	"salon-pos/internal/notify"
	"salon-pos/internal/offer"
	"salon-pos/internal/sale"
	"salon-pos/internal/session"
	"salon-pos/internal/storage"
	sessionstore "salon-pos/internal/storage/redis"
	"salon-pos/pkg/booking"
	"salon-pos/pkg/logger"
	"salon-pos/pkg/redis"
)

const (
	offerExpiryInterval = time.Hour
	shutdownTimeout     = 15 * time.Second
)

func main() {
	migrate := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisClient := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	pgStorage, err := storage.NewPostgresStorage(ctx, cfg.Database, redisClient, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init PostgreSQL storage", zap.Error(err))
	}
	defer pgStorage.Close()

	if *migrate != "" {
		if err := runMigration(ctx, pgStorage, *migrate); err != nil {
			zapLogger.Fatal("Migration failed", zap.String("command", *migrate), zap.Error(err))
		}
		return
	}
	if cfg.AutoMigrate {
		if err := pgStorage.Migrate(ctx); err != nil {
			zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	bookingClient := booking.NewClient(booking.Options{
		BaseURL:      cfg.Booking.BaseURL,
		PartnerToken: cfg.Booking.PartnerToken,
		UserToken:    cfg.Booking.UserToken,
		CompanyID:    cfg.Booking.CompanyID,
		Timeout:      cfg.Booking.Timeout,
	}, zapLogger)

	sessions := session.NewManager(
		pgStorage,
		pgStorage,
		sessionstore.New(redisClient, cfg.Session.TTL),
		session.Options{
			DragDelay:      cfg.Session.DragDelay,
			IdleDelay:      cfg.Session.IdleDelay,
			ComputeTimeout: cfg.Session.ComputeCap,
		},
		zapLogger,
	)
	defer sessions.Close()

	mailer := offer.NewSMTPMailer(offer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if !cfg.SMTP.Enabled() {
		zapLogger.Warn("SMTP is not configured - contracts will not be e-mailed")
	}
	offers := offer.NewGenerator(pgStorage, offer.NewRenderer(cfg.Offers.FontPath), mailer, offer.Config{
		Dir:     cfg.Offers.Dir,
		TTL:     cfg.Offers.TTL,
		Company: cfg.Offers.Company,
	}, zapLogger)
	go offers.RunExpiry(ctx, offerExpiryInterval)

	notifier, err := notify.NewTelegram(cfg.Admin, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create Telegram notifier", zap.Error(err))
	}

	sales := sale.NewService(pgStorage, bookingClient, offers, notifier, booking.FreezePolicy{
		LimitDays:      cfg.Booking.FreezeLimitDays,
		ValidityMonths: cfg.Booking.ValidityMonths,
	}, zapLogger)

	api := httpapi.NewServer(pgStorage, sessions, sales, bookingClient, httpapi.Options{
		RequestTimeout: cfg.HTTPRequestTimeout,
		AdminToken:     cfg.AdminAPIToken,
		WebhookSecret:  cfg.Booking.WebhookSecret,
	}, zapLogger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("HTTP server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			zapLogger.Error("HTTP server stopped with error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Server shutdown gracefully")
}

func runMigration(ctx context.Context, s *storage.PostgresStorage, command string) error {
	switch command {
	case "up":
		return s.Migrate(ctx)
	case "down":
		return s.RollbackMigration(ctx)
	case "status":
		return s.MigrationStatus(ctx)
	}
	return fmt.Errorf("unknown migration command %q", command)
}
