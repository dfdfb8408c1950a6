package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/bootstrap"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/config"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/queue"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

func main() {
	util.LoadEnv()
	cfg := config.Load()
	cfg.InitLogger("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, cfg, "worker")
	if err != nil {
		logger.Fatal("Failed to start", "err", err)
	}
	defer rt.Close()

	conn, err := queue.Dial(ctx, queue.BrokerURL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	h := queue.NewHandler(rt.Service, ch, rt.Persist, cfg.Queue)
	if err := queue.SetupQueues(ch, cfg.Queue.Exchange, h.Queues()); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// A single consumer channel with prefetch=1 keeps one message in
	// flight across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	logger.Info("Listening for messages", "queues", h.Queues())
	if err := queue.Consume(rt.Context(), consumerCh, h, cfg.Queue.MaxRetries); err != nil {
		logger.Error("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
