package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tipline/tipline/internal/config"
	"github.com/tipline/tipline/internal/events"
	"github.com/tipline/tipline/internal/httpserver"
	"github.com/tipline/tipline/internal/middleware"
	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/internal/repo"
	"github.com/tipline/tipline/internal/search"
	"github.com/tipline/tipline/internal/service"
	"github.com/tipline/tipline/pkg/db"
	"github.com/tipline/tipline/pkg/logging"
	loggingmw "github.com/tipline/tipline/pkg/middleware/logging"
	"github.com/tipline/tipline/pkg/tokens"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.Tip{}, &models.Comment{}); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
	}

	var searchClient *search.Client
	if cfg.ESURL != "" {
		searchClient, err = search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			logger.Warn("search_unavailable", "error", err)
		}
	}

	store := repo.New(gdb)
	issuer := &tokens.Issuer{Secret: cfg.JWTSecret, AccessTTL: cfg.AccessTTL}

	authSvc := &service.AuthService{
		Repo:       store,
		Issuer:     issuer,
		RefreshTTL: cfg.RefreshTTL,
		Producer:   eventPublisher(producer),
	}
	tipSvc := &service.TipService{
		Repo:     store,
		Producer: eventPublisher(producer),
		Indexer:  tipIndexer(searchClient),
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: authSvc, CookieSecure: cfg.CookieSecure},
		TipHandler:  &httpserver.TipHTTP{Svc: tipSvc, Search: searchClient},
		Guard:       middleware.NewGuard(cfg.JWTSecret),
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go purgeLoop(sweepCtx, authSvc, cfg.PurgeInterval, logger)

	go func() {
		if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}

// purgeLoop sweeps expired refresh tokens. Best-effort housekeeping: a
// failed cycle is logged and skipped, never retried eagerly.
func purgeLoop(ctx context.Context, svc *service.AuthService, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purged, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge_sweep_failed", "error", err)
				continue
			}
			if purged > 0 {
				logger.Info("purge_sweep_done", "tokens_purged", purged)
			}
		}
	}
}

// eventPublisher keeps the nil-producer case a real nil interface.
func eventPublisher(p *events.Producer) service.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func tipIndexer(c *search.Client) service.TipIndexer {
	if c == nil {
		return nil
	}
	return c
}
