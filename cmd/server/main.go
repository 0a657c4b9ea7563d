package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"        // loads .env in development
	"github.com/labstack/echo/v4"     // Echo web framework
	"github.com/labstack/gommon/log"  // structured leveled logger shared with Echo
	"github.com/redis/go-redis/v9"    // lease store and broadcast backbone

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/config"
	"github.com/iliyamo/event-seat-reservation/internal/database"
	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/lease"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/realtime"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/router"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

var levels = map[string]log.Lvl{
	"debug": log.DEBUG,
	"info":  log.INFO,
	"warn":  log.WARN,
	"error": log.ERROR,
}

// redisPinger adapts the Redis client to handler.Pinger.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development

	logger := log.New("seatlock")
	logger.SetHeader(`${time_rfc3339} ${level} ${prefix} ${short_file}:${line}`)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	logger.SetLevel(levels[cfg.LogLevel])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		// Leases fail closed until Redis answers.
		logger.Warnf("redis: %s unreachable at startup: %v", cfg.Redis.Addr, err)
	}
	defer rdb.Close()

	var backbone realtime.Backbone
	switch cfg.BroadcastBackend {
	case config.BackendAMQP:
		amqpBackbone := realtime.NewAMQPBackbone(cfg.AMQPURL, logger)
		defer amqpBackbone.Close()
		backbone = amqpBackbone
	default:
		backbone = realtime.NewRedisBackbone(rdb, logger)
	}
	broadcaster := realtime.NewBroadcaster(backbone, realtime.NewHub(realtime.DefaultClientBuffer), logger)

	clk := clock.NewSystem()
	seats := repository.NewSeatRepo(db)
	purchases := repository.NewPurchaseRepo(db)
	leases := lease.NewRedisStore(rdb, cfg.LeaseTTL)

	reservations := service.NewReservationService(seats, leases, broadcaster, clk, cfg.LeaseTTL, logger)
	sweeper := service.NewSweeper(seats, leases, broadcaster, clk, logger)
	payments := service.NewPaymentReconciler(seats, purchases, leases, broadcaster,
		queue.NewPublisher(cfg.AMQPURL, logger), clk, logger)
	door := service.NewDoorCheck(purchases, purchases, clk, logger)

	go func() {
		if err := broadcaster.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("broadcast: backbone stopped: %v", err)
		}
	}()
	go sweeper.Run(ctx, cfg.SweepInterval)
	go func() {
		if err := queue.NewConsumer(cfg.AMQPURL, cfg.PurchaseLogDir, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("purchase-consumer: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger

	seatHandler := handler.NewSeatHandler(reservations)
	purchaseHandler := handler.NewPurchaseHandler(payments, cfg.WebhookSecret)
	router.RegisterRoutes(e, map[string]handler.Pinger{"mysql": db, "redis": redisPinger{rdb}})
	router.RegisterSeats(e, seatHandler, handler.NewRoomHandler(reservations, broadcaster.Hub()),
		middleware.NewTokenBucket(cfg.RateLimit, rdb), cfg.JWTSecret)
	router.RegisterPurchases(e, purchaseHandler, cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(reservations, sweeper), handler.NewDoorHandler(door), cfg.JWTSecret)
	if cfg.WebhookSecret != "" {
		router.RegisterWebhook(e, purchaseHandler)
	} else {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; payment webhook disabled")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s, lease_ttl=%s, broadcast=%s)", addr, cfg.Env, cfg.LeaseTTL, cfg.BroadcastBackend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("stopped")
}
