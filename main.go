package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecowing/config"
	"ecowing/database"
	"ecowing/geocode"
	"ecowing/handlers"
	"ecowing/jobs"
	"ecowing/metrics"
	"ecowing/middleware"
	"ecowing/rabbitmq"
	"ecowing/service"
	"ecowing/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	decimal.MarshalJSONWithoutQuotes = true
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	detector, err := service.NewDetector(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}

	geocoder := geocode.NewCachedGeocoder(
		geocode.NewNominatim(cfg.NominatimURL, cfg.GeocodeUserAgent),
		db,
		cfg.GeocodeCacheTTL,
	)
	svc := service.New(db, detector, geocoder, geocode.NewExpander(cfg.ExpandURLTimeout), service.OptionsFromConfig(cfg))

	videoDetector, err := service.NewVideoDetector(ctx, cfg)
	if err != nil {
		log.Warnf("Video detector unavailable, videos use the main provider: %v", err)
	} else if videoDetector != nil {
		svc.SetVideoDetector(videoDetector)
	}

	if cfg.ImportFile != "" {
		importHistory(ctx, svc, cfg.ImportFile)
	}

	var publisher *rabbitmq.Publisher
	if amqpURL := cfg.AMQPURL(); amqpURL != "" {
		publisher, err = rabbitmq.NewPublisher(amqpURL, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		if err != nil {
			log.Warnf("RabbitMQ unavailable, report events disabled: %v", err)
		} else {
			svc.SetPublisher(publisher)
		}
	}

	hub := websocket.NewHub(svc.SiteResolver)
	go hub.Run(ctx)
	svc.SetBroadcaster(hub)

	scheduler := jobs.NewScheduler()
	if err := scheduler.AddSnapshot(cfg.SnapshotSchedule, svc, hub, cfg.TopSitesLimit); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	if err := scheduler.AddCachePurge(cfg.CachePurgeSchedule, db); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	scheduler.Start()

	auth := middleware.NewAuthenticator(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTTTL)
	if !auth.Enabled() {
		log.Warn("JWT_SECRET or ADMIN_PASSWORD_HASH not set, admin routes are disabled")
	}

	h := handlers.NewHandlers(svc, hub, auth, cfg.MaxUploadBytes)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(h, cfg),
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop(shutdownCtx)
	cancel()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Errorf("Error closing RabbitMQ publisher: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	log.Info("Server exited")
}

func importHistory(ctx context.Context, svc *service.Service, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("Failed to open history file: %v", err)
		return
	}
	defer f.Close()

	n, err := svc.Import(ctx, f)
	if err != nil {
		log.Errorf("History import stopped after %d reports: %v", n, err)
		return
	}
	log.Infof("Imported %d reports from %s", n, path)
}
