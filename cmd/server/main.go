package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/docmatch/internal/config"
	"github.com/toricodesthings/docmatch/internal/poppler"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	if !poppler.Available("pdftoppm") {
		log.Warn("pdftoppm not found in PATH; every comparison will fail at the raster stage")
	}
	if cfg.InternalSharedSecret == "" {
		log.Warn("INTERNAL_SHARED_SECRET not set; endpoints are unauthenticated")
	}

	s, err := newServer(cfg, cfg.Opener(), log)
	if err != nil {
		log.WithError(err).Fatal("build server")
	}

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.cleanupRateLimiters(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	opts := s.engine.Options()
	log.WithFields(logrus.Fields{
		"addr":           srv.Addr,
		"max_concurrent": cfg.MaxConcurrentRequests,
		"page_workers":   opts.Workers,
		"zoom":           opts.Zoom,
		"hash_size":      opts.HashSize,
		"text_backend":   cfg.TextBackend,
	}).Info("docmatch listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}
