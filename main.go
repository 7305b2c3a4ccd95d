package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/itbasis/go-clock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"contest-scoring-engine/config"
	"contest-scoring-engine/events"
	"contest-scoring-engine/handlers"
	"contest-scoring-engine/metrics"
	"contest-scoring-engine/middleware"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/services"
	"contest-scoring-engine/utils"
	"contest-scoring-engine/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	store := repository.New(db)
	if err := store.Migrate(); err != nil {
		log.Fatal("failed to migrate database:", err)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	sports := services.NewSportsDataClient(cfg.SportsDataURL, cfg.ServiceToken, cfg.ExternalTimeout)
	oracle := services.NewOracleClient(cfg.OracleURL, cfg.ServiceToken, cfg.ExternalTimeout)
	payments := services.NewPaymentClient(cfg.PaymentURL, cfg.ServiceToken, cfg.ExternalTimeout)

	var archive services.AuditArchiver
	if cfg.R2Enabled() {
		r2, err := utils.NewR2Archive(ctx, utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archive = r2
	} else {
		log.Println("[Main] R2 not configured, contest audit archive disabled")
	}

	publisher := events.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	queue := events.NewQueue(cfg.QueueSize)

	contests := services.NewContestService(store, clk)
	predictions := services.NewPredictionService(store, clk)
	leaderboard := services.NewLeaderboardService(store, clk)
	evaluation := services.NewEvaluationService(store, clk, oracle, leaderboard)
	evaluation.OracleTimeout = cfg.OracleLazyTimeout
	evaluation.ContestParallelism = cfg.EvalContestLimit
	payouts := services.NewPayoutService(store, clk, payments, leaderboard, archive, cfg.TransferMaxAttempts)
	reviews := services.NewReviewService(store, clk, payouts)

	poller := &workers.ResultPoller{
		Store:         store,
		Sports:        sports,
		Clock:         clk,
		Queue:         queue,
		Retries:       cfg.PollRetries,
		Backoff:       cfg.PollBackoff,
		FailureBudget: cfg.PollFailureBudget,
		DisputeWindow: cfg.DisputeWindow,
		KickoffLead:   cfg.KickoffLead,
		Season:        cfg.CurrentSeason,
		Week:          cfg.CurrentWeek,
	}
	pool := &workers.EvaluationPool{
		Queue:     queue,
		Evaluator: evaluation,
		Store:     store,
		Clock:     clk,
		Publisher: publisher,
		Workers:   cfg.EvalWorkers,
	}
	relay := &workers.OutboxRelay{
		Store:     store,
		Clock:     clk,
		Queue:     queue,
		Publisher: publisher,
		Grace:     cfg.OutboxReplayInterval,
	}

	poolDone := make(chan error, 1)
	go func() {
		log.Printf("[Main] starting %d evaluation workers", cfg.EvalWorkers)
		poolDone <- pool.Run(ctx)
	}()

	sched, err := workers.StartScheduler(ctx, workers.Intervals{
		PollLive:         cfg.PollLiveInterval,
		PollFinal:        cfg.PollFinalInterval,
		PollScheduled:    cfg.PollScheduledInterval,
		TrackingSync:     cfg.TrackingSyncInterval,
		Lifecycle:        cfg.LifecycleInterval,
		OutboxReplay:     cfg.OutboxReplayInterval,
		Reconcile:        cfg.ReconcileInterval,
		BaselinePrefetch: cfg.BaselinePrefetchPeriod,
	}, workers.Jobs{
		Poller:     poller,
		Relay:      relay,
		Lifecycle:  &workers.Lifecycle{Contests: contests, Payouts: payouts},
		Reconciler: &workers.Reconciler{Payouts: payouts},
		Evaluation: evaluation,
	})
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Probes and scraping stay reachable without the gateway token
	handlers.SetupOpsRoutes(app)

	// Everything else only through the gateway
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	handlers.SetupContestRoutes(app, &handlers.ContestHandler{
		Contests:    contests,
		Predictions: predictions,
		Leaderboard: leaderboard,
	})
	handlers.SetupAdminRoutes(app, &handlers.AdminHandler{
		Contests:   contests,
		Evaluation: evaluation,
		Payouts:    payouts,
		Reviews:    reviews,
	}, cfg.AdminRole)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Printf("[Main] server error: %v", err)
		}
	}()

	log.Printf("[Main] server running on %s", cfg.HTTPAddr)
	log.Printf("[Main] CORS configured for origins: %s", cfg.Origins())

	<-ctx.Done()
	log.Println("[Main] shutting down...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("[Main] http shutdown: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("[Main] scheduler shutdown: %v", err)
	}
	if err := <-poolDone; err != nil {
		log.Printf("[Main] evaluation pool stopped: %v", err)
	}
	if err := publisher.Close(); err != nil {
		log.Printf("[Main] publisher close: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
