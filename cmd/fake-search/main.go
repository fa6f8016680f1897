// Command fake-search serves a fixture file as a location search endpoint, so the crawler can
// be run end to end without touching the real service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"location_mapper/internal/locations/fakesearch"
	"location_mapper/platform/logger"
)

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	fixturePath := flag.String("fixture", "", "JSON fixture: {\"term\": [location, ...]}")
	flag.Parse()

	log := logger.New(os.Getenv("APP_ENV"))

	var fixture fakesearch.Fixture
	if *fixturePath != "" {
		f, err := os.Open(*fixturePath)
		if err != nil {
			log.Error("failed to open fixture", "error", err)
			os.Exit(1)
		}
		fixture, err = fakesearch.LoadFixture(f)
		_ = f.Close()
		if err != nil {
			log.Error("failed to load fixture", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           fakesearch.New(fixture).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("fake search listening", "addr", *addr, "terms", len(fixture), "rest", fakesearch.RESTPath, "graphql", fakesearch.GraphQLPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("fake search stopped", "error", err)
		os.Exit(1)
	}
}
