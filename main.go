package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/bellapacxx/bingo-live/config"
	"github.com/bellapacxx/bingo-live/controllers"
	"github.com/bellapacxx/bingo-live/routes"
	"github.com/bellapacxx/bingo-live/services"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: postgres when configured, the in-memory store otherwise.
	var store services.Store
	var feedEvents <-chan services.ChangeEvent
	feedMode := cfg.BroadcastMode == config.BroadcastFeed

	if cfg.DatabaseURL != "" {
		var feed services.ChangeFeed
		if feedMode {
			redisFeed := services.NewRedisFeed(config.NewRedis(cfg.RedisAddr), cfg.FeedStream)
			feedEvents = redisFeed.Consume(ctx)
			feed = redisFeed
		}
		db, err := config.SetupDatabase(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database setup: %v", err)
		}
		store = services.NewGormStore(db, feed)
	} else {
		logger.Warnf("DATABASE_URL not set, running on the in-memory store")
		var feed services.ChangeFeed
		if feedMode {
			memFeed := services.NewMemoryFeed(256)
			feedEvents = memFeed.Events()
			feed = memFeed
		}
		store = services.NewMemoryStore(feed)
	}

	registry := services.NewConnectionRegistry()
	hub, err := services.NewBroadcastHub(registry, cfg.HubWorkers)
	if err != nil {
		logger.Fatalf("broadcast hub: %v", err)
	}
	defer hub.Close()

	var pub services.Publisher = hub
	if feedMode {
		pub = services.NopPublisher{}
	}

	var oracle services.PaymentOracle
	if cfg.X402URL != "" {
		oracle = services.NewX402Client(cfg.X402URL, cfg.PaymentTimeout)
	} else {
		logger.Warnf("X402_FACILITATOR_URL not set, authorizing all purchases")
		oracle = services.StaticOracle{Prefix: "dev:"}
	}

	pool := services.NewCardPool(store, []byte(cfg.CardSecret))
	res := services.NewReservationManager(store, cfg.ReservationTTL)
	state := services.NewGameStateMachine(store, res)
	orch := services.NewGameOrchestrator(pool, res, state, oracle, pub, cfg.CardPrice, cfg.PaymentTimeout)
	gateway := services.NewWSGateway(registry, orch, []byte(cfg.JWTSecret), cfg.OperatorIDs)

	router := setupRouter(cfg, orch, pool, gateway)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("bingo server listening on port %s (broadcast=%s)", cfg.Port, cfg.BroadcastMode)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Reservation TTL sweep: idempotent and safe to run alongside the lazy
	// sweep inside each reserve pass.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := res.SweepExpired(ctx); err != nil {
					logger.Errorf("reservation sweep: %v", err)
				}
			}
		}
	})

	if feedMode {
		listener := services.NewFeedListener(feedEvents, orch.BuildSnapshot, hub)
		g.Go(func() error {
			err := listener.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func setupRouter(cfg *config.Config, orch *services.GameOrchestrator, pool *services.CardPool, gateway *services.WSGateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := controllers.NewAPI(orch, pool)
	auth := controllers.NewAuth([]byte(cfg.JWTSecret), cfg.OperatorIDs)
	routes.SetupRoutes(r, api, auth)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	r.GET("/ws", gateway.Handle)

	return r
}
