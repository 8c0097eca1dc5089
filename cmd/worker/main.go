package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/stratum-kg/stratum/internal/db"
	"github.com/stratum-kg/stratum/internal/queue"
	"github.com/stratum-kg/stratum/internal/server"
	"github.com/stratum-kg/stratum/internal/storage"
	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/ai"
	"github.com/stratum-kg/stratum/pkg/cache"
	"github.com/stratum-kg/stratum/pkg/graph"
	"github.com/stratum-kg/stratum/pkg/leaselock"
	"github.com/stratum-kg/stratum/pkg/loader"
	loaderfs "github.com/stratum-kg/stratum/pkg/loader/fs"
	loaders3 "github.com/stratum-kg/stratum/pkg/loader/s3"
	loaderweb "github.com/stratum-kg/stratum/pkg/loader/web"
	"github.com/stratum-kg/stratum/pkg/logger"
	"github.com/stratum-kg/stratum/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if err := db.Migrate(util.GetEnv("DATABASE_URL")); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	// Init pgx client
	pgCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	pgCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// GraphAIClient and embedder
	aiClient := server.NewAIClient()
	embedder := ai.NewEmbedder(ai.EmbedderParams{
		Client:     aiClient,
		Dimensions: int(util.GetEnvNumeric("AI_EMBED_DIMENSIONS", 384)),
	})

	// Extraction cache, shared across all documents this worker processes
	extractionCache := cache.New[graph.ExtractionPayload](cache.Config{
		MaxEntries: int(util.GetEnvNumeric("EXTRACTION_CACHE_ENTRIES", 1000)),
	})
	extractionCache.Start()
	defer extractionCache.Stop()

	// Source loaders
	resolver := &loader.Resolver{
		Web: loaderweb.NewWebLoader(),
	}
	if s3Client != nil {
		resolver.S3 = loaders3.NewS3LoaderWithClient(util.GetEnv("AWS_BUCKET"), s3Client)
	}
	if root := util.GetEnv("DOCUMENT_ROOT"); root != "" {
		resolver.File = loaderfs.NewFSLoader(root)
	}

	deps := queue.Deps{
		Conn:     pgConn,
		AIClient: aiClient,
		Embedder: embedder,
		Cache:    extractionCache,
		Loaders:  resolver,
		Locks:    leaselock.New(pgConn),
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is in
	// flight at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, deps, string(qm.msg.Body))
				case queue.DeleteQueue:
					processingErr = queue.ProcessDeleteMessage(ctx, deps, s3Client, string(qm.msg.Body))
				}

				// On error send to retry or dead-letter, otherwise ack
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", aiDuration.Round(time.Second).String(),
				)
				logger.Info(
					"Processing time",
					"duration", time.Since(startTime).Round(time.Millisecond).String(),
				)
				cacheMetrics := extractionCache.Metrics()
				logger.Debug(
					"Extraction cache",
					"size", cacheMetrics.Size,
					"hits", cacheMetrics.Hits,
					"misses", cacheMetrics.Misses,
					"evictions", cacheMetrics.Evictions,
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
