package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/bootstrap"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/config"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server"
	mid "github.com/OFFIS-RIT/kiwi/kgcorrect/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/storage"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

func main() {
	util.LoadEnv()
	cfg := config.Load()
	cfg.InitLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, cfg, "server")
	if err != nil {
		logger.Fatal("Failed to start", "err", err)
	}
	defer rt.Close()

	app := &mid.App{Service: rt.Service, Persist: rt.Persist}

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	if s3Client != nil {
		app.Exporter = storage.NewExporter(s3Client, cfg.Bucket, cfg.ExportPrefix).
			WithDownloadLinks(s3Client, util.GetEnv("AWS_PUBLIC_ENDPOINT"))
	}

	if err := server.Run(rt.Context(), server.New(app), cfg.HTTPAddr); err != nil {
		logger.Error("Server stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
