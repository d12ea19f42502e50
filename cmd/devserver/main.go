// Package main starts the stub remote uploader server, setting up
// configuration, logging, the in-memory upload repository, service and
// handlers. It exists for development and end-to-end testing; the client
// treats the remote strictly as an opaque collaborator.
package main

import (
	"cmp"
	"fmt"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/config"
	"github.com/atinyakov/FitVault/internal/logger"
	"github.com/atinyakov/FitVault/internal/remote"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Addr

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Wire repository, service and handler.
	repo := remote.NewMemoryRepository()
	service := remote.NewUploadService(repo)
	handler := &remote.Handler{Service: service}
	router := remote.NewRouter(handler, zapLogger)

	server := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting stub uploader server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
}
