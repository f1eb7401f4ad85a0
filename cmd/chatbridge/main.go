package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/internal/config"
	"chatbridge/internal/constants"
	"chatbridge/internal/extractor"
	"chatbridge/internal/queue"
	"chatbridge/internal/retry"
	"chatbridge/internal/service"
	"chatbridge/internal/session"
	"chatbridge/internal/tracing"
	"chatbridge/pkg/media"
	"chatbridge/pkg/ollama"
	"chatbridge/pkg/whatsapp"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Broker connection and topology. The broker often comes up after the
	// service in container deployments, so the dial retries with backoff.
	// Consumers and the producer run on separate channels of the same
	// connection.
	var conn *amqp.Connection
	backoff := retry.NewBackoff(retry.DefaultBackoffConfig())
	err = backoff.Retry(ctx, func() error {
		var dialErr error
		conn, dialErr = amqp.Dial(cfg.AMQP.URL)
		if dialErr != nil {
			logger.Warnf("Failed to connect to broker: %v", dialErr)
		}
		return dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to connect to broker after retries: %w", err)
	}
	defer conn.Close()

	publishCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}
	defer publishCh.Close()

	if err := queue.DeclareTopology(publishCh); err != nil {
		return fmt.Errorf("failed to declare queue topology: %w", err)
	}

	storage, err := media.NewStorage(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to initialize media storage: %w", err)
	}

	llmClient := ollama.NewClient(ollama.ClientConfig{
		BaseURL:     cfg.Ollama.BaseURL,
		Temperature: cfg.Ollama.Temperature,
		Timeout:     time.Duration(cfg.Ollama.TimeoutSec) * time.Second,
	})

	waClient := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:       cfg.WhatsApp.APIBaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		Timeout:       time.Duration(cfg.WhatsApp.TimeoutSec) * time.Second,
	})

	sessionStore := session.NewStore()
	passportExtractor := extractor.New(llmClient, cfg.Ollama.VisionModel, logger)
	chatService := service.NewChatService(llmClient, cfg.Ollama.Model, sessionStore, passportExtractor, logger)
	worker := service.NewWorker(chatService, waClient, logger)

	producer := queue.NewProducer(publishCh, logger)
	consumer := queue.NewConsumer(conn, worker, logger, cfg.AMQP.Prefetch, cfg.AMQP.WorkerCount)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumers: %w", err)
	}

	server := NewServer(cfg, producer, waClient, storage, chatService, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
