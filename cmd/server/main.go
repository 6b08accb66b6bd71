package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/config"
	"github.com/iliyamo/cinema-seat-reservation/internal/coordinator"
	"github.com/iliyamo/cinema-seat-reservation/internal/database"
	"github.com/iliyamo/cinema-seat-reservation/internal/expiration"
	"github.com/iliyamo/cinema-seat-reservation/internal/fanout"
	"github.com/iliyamo/cinema-seat-reservation/internal/handler"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	applog "github.com/iliyamo/cinema-seat-reservation/internal/logger"
	"github.com/iliyamo/cinema-seat-reservation/internal/payment"
	"github.com/iliyamo/cinema-seat-reservation/internal/queue"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
	"github.com/iliyamo/cinema-seat-reservation/internal/router"
	"github.com/iliyamo/cinema-seat-reservation/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("info: .env not found; using defaults/env")
	}

	cfg := config.Load()

	zlog, err := applog.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		zlog.Fatal("open database failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	holds := holdstore.New(rdb)

	lifecycle := service.NewQueuePublisher(cfg.AMQPURL, zlog)
	defer lifecycle.Close()

	sessions := repository.NewSessionRepo(db)
	seats := repository.NewSeatRepo(db)
	tariffs := repository.NewTariffRepo(db)
	bookings := repository.NewBookingRepo(db)
	payments := repository.NewPaymentRepo(db)
	txlog := repository.NewTxLogRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	fanoutCfg := fanout.Config{PingInterval: cfg.WSPingInterval, PingTimeout: cfg.WSPingTimeout}
	hub := fanout.NewHub(nil, sessions, seats, holds, zlog, fanoutCfg)

	coordCfg := coordinator.Config{
		SelectionTTL:       cfg.SelectionTTL,
		ReservationTTL:     cfg.ReservationTTL,
		MaxSeatsPerBooking: cfg.MaxSeatsPerBooking,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitWindow:    cfg.RateLimitWindow,
	}
	coord := coordinator.New(sessions, seats, tariffs, bookings, holds, hub, lifecycle, coordCfg)
	hub.SetCoordinator(coord)

	paySvc := payment.New(payments, txlog, bookings, seats, holds, hub, lifecycle, zlog)
	paymeHandler := payment.NewPaymeHandler(paySvc, zlog)
	clickHandler := payment.NewClickHandler(paySvc, cfg.ClickSecretKey, zlog)

	expCfg := expiration.Config{TickInterval: cfg.ExpirationTick, OrphanScanEvery: cfg.OrphanScanEvery}
	expEngine := expiration.New(bookings, seats, sessions, holds, hub, lifecycle, zlog, expCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go expEngine.Run(ctx)

	// Runs alongside the API as the lifecycle notification/audit sink
	// (separate from the in-process fan-out, C5); logs its own retry/reconnect
	// failures and never returns while the server is up.
	go func() {
		if err := queue.StartBookingConsumer(cfg.AMQPURL); err != nil {
			zlog.Error("booking consumer stopped", zap.Error(err))
		}
	}()

	e := echo.New()
	h := router.Handlers{
		Auth:    handler.NewAuthHandler(cfg, users, tokens),
		Catalog: handler.NewCatalogHandler(seats, holds, bookings, tariffs),
		Payment: handler.NewPaymentHandler(paySvc, txlog),
		WS:      handler.NewWSHandler(cfg, hub),
		Payme:   paymeHandler,
		Click:   clickHandler,
	}
	router.RegisterRoutes(e, cfg, h, rdb)

	addr := ":" + cfg.Port
	zlog.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		if err := e.Start(addr); err != nil {
			zlog.Info("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
