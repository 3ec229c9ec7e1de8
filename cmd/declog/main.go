package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/declog/declog/internal/classifier"
	"github.com/declog/declog/internal/inference"
	"github.com/declog/declog/internal/pipeline"
	"github.com/declog/declog/internal/storage"
	"github.com/declog/declog/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: declog <ingest|enrich> [flags]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig(envOr("DECLOG_CONFIG", "config.yaml"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize storage
	var store storage.Store
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStore()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStore(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the inference chain when enabled and configured
	var chain *inference.Chain
	if cfg.Inference.Enabled && cfg.OpenAI.APIKey != "" {
		provider := inference.NewOpenAIProvider(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			logger,
		)
		chain = inference.NewChain(
			[]inference.Provider{provider},
			cfg.Inference.MaxRetries,
			time.Duration(cfg.Inference.BackoffMillis)*time.Millisecond,
			time.Duration(cfg.Inference.TimeoutSeconds)*time.Second,
			logger,
		)
	}

	svc := pipeline.NewService(store, classifier.NewEngine(), chain, pipeline.Options{
		ChunkSize:  cfg.Inference.ChunkSize,
		ChunkDelay: time.Duration(cfg.Inference.ChunkDelayMS) * time.Millisecond,
	}, logger)

	ctx := context.Background()
	switch os.Args[1] {
	case "ingest":
		runIngest(ctx, svc, logger, os.Args[2:])
	case "enrich":
		runEnrich(ctx, svc, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runIngest(ctx context.Context, svc *pipeline.Service, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	source := fs.String("source", "", "source identity for the transcript (required)")
	file := fs.String("file", "-", "transcript file, - for stdin")
	fs.Parse(args)

	if *source == "" {
		fmt.Fprintln(os.Stderr, "ingest: -source is required")
		os.Exit(2)
	}

	var raw []byte
	var err error
	if *file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*file)
	}
	if err != nil {
		logger.Fatal("Failed to read transcript", zap.Error(err))
	}

	report, err := svc.Ingest(ctx, *source, string(raw))
	if err != nil {
		logger.Fatal("Ingest failed", zap.Error(err))
	}
	printJSON(report)
}

func runEnrich(ctx context.Context, svc *pipeline.Service, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	scope := fs.String("scope", "", "conversation scope to enrich (required)")
	fs.Parse(args)

	if *scope == "" {
		fmt.Fprintln(os.Stderr, "enrich: -scope is required")
		os.Exit(2)
	}

	report, err := svc.Enrich(ctx, *scope)
	if err != nil {
		logger.Fatal("Enrich failed", zap.Error(err))
	}
	printJSON(report)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
