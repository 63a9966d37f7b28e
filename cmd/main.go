package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/config"
	"github.com/jrgparkinson/tracksplits/internal/db"
	"github.com/jrgparkinson/tracksplits/internal/fitting"
	"github.com/jrgparkinson/tracksplits/internal/handlers"
	"github.com/jrgparkinson/tracksplits/internal/races"
	"github.com/jrgparkinson/tracksplits/internal/view"
)

const (
	sessionMaxAge = 24 * time.Hour
	pruneInterval = 10 * time.Minute
)

func loadCatalog(path string) (*races.Catalog, error) {
	if path == "" {
		return races.Default(), nil
	}
	return races.LoadFile(path)
}

// pruneSessions drops idle sessions until ctx is done.
func pruneSessions(ctx context.Context, sessions *view.SessionStore) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(sessionMaxAge); n > 0 {
				log.WithField("removed", n).Info("Pruned idle sessions")
			}
		}
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	catalog, err := loadCatalog(cfg.RacesFile)
	if err != nil {
		log.Fatalf("Failed to load race catalog: %v", err)
	}
	log.WithField("races", catalog.Len()).Info("Loaded race catalog")

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	client, err := fitting.New(cfg.FittingURL, cfg.FittingTimeout)
	if err != nil {
		log.Fatalf("Failed to create fitting client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := view.NewSessionStore(catalog, cfg.AutoUpdateRaces)
	go pruneSessions(ctx, sessions)

	h := &handlers.Handler{
		Catalog:  catalog,
		Sessions: sessions,
		Fitter:   client,
		Cache:    store,
		SiteURL:  cfg.SiteURL,
	}
	router := mux.NewRouter()
	router.Use(handlers.WithLoggingAndErrorHandling)
	h.RegisterRoutes(router)
	router.PathPrefix("/").Handler(handlers.StaticHandler(cfg.StaticDir))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown failed")
		}
	}()

	log.Printf("Starting server on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Info("Server stopped")
}
