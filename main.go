package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/database"
	"github.com/ekaya-inc/ekaya-ask/pkg/detect"
	"github.com/ekaya-inc/ekaya-ask/pkg/handlers"
	"github.com/ekaya-inc/ekaya-ask/pkg/history"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-ask/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ask/pkg/middleware"
	"github.com/ekaya-inc/ekaya-ask/pkg/oracle"
	"github.com/ekaya-inc/ekaya-ask/pkg/planner"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/recordstore/mssql"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/recordstore/postgres"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ekaya-ask stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("dialect", cfg.Planner.Dialect),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.Bool("sqlserver", cfg.SQLServer.Enabled()),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
	)

	// Catalog and answer history live in PostgreSQL whatever the query dialect.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if _, err := database.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}

	dialect := sql.Dialect(cfg.Planner.Dialect)
	stores, err := recordstore.Open(ctx, cfg, dialect, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("Failed to close record stores", zap.Error(err))
		}
	}()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	schemas := schema.NewCachedProvider(stores.Primary(), schema.Config{
		TTL:        cfg.SchemaCache.TTL,
		MaxEntries: cfg.SchemaCache.MaxEntries,
		Timeout:    cfg.Planner.SchemaTimeout,
	}, logger)

	entityTypes, err := schemas.ListEntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("list entity types: %w", err)
	}
	if len(entityTypes) == 0 {
		logger.Warn("Metadata catalog has no entity types; every query will fail detection")
	}
	detector := detect.New(entityTypes, detectConfig(cfg.Detection))

	llmClient, err := llm.NewClient(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.Endpoint,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
	}, llm.GuardConfig{
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		TransportRetries:  cfg.LLM.TransportRetries,
		Breaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.LLM.CircuitThreshold,
			ResetAfter: cfg.LLM.CircuitResetAfter,
		},
	}, logger)
	if err != nil {
		return err
	}

	catalog := oracle.DefaultCatalog()
	planOracle := oracle.NewAdapter(llmClient, catalog, oracle.Config{
		Prompt: oracle.PromptOptions{
			Dialect:     dialect,
			TablePrefix: cfg.Planner.TablePrefix,
			MetaFields:  cfg.Planner.MetaFields,
		},
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.Planner.OracleTimeout,
	}, logger)

	validator := planner.NewValidator(catalog, schemas, planner.ValidatorConfig{
		TablePrefix: cfg.Planner.TablePrefix,
		MetaFields:  cfg.Planner.MetaFields,
		Dialects:    stores.Dialects(),
	})
	corrector := planner.NewCorrector(planner.CorrectorConfig{
		TablePrefix:    cfg.Planner.TablePrefix,
		BoundaryColumn: cfg.Planner.BoundaryColumn,
		BoundaryValue:  cfg.Planner.BoundaryValue,
		DefaultDialect: dialect,
	})
	controller := planner.NewController(validator, corrector, planner.NewStoreExecutor(stores), planner.ControllerConfig{
		MaxRetries:       cfg.Planner.MaxRetries,
		ExecutionTimeout: cfg.Planner.ExecutionTimeout,
	}, logger)

	var windows metrics.Recorder
	if redisClient != nil {
		windows = metrics.NewRedisRecorder(redisClient, metrics.DefaultKeyPrefix, cfg.Metrics.Retention)
	} else {
		windows = metrics.NewMemoryRecorder(cfg.Metrics.Retention)
	}

	var historyWriter *history.Writer
	if cfg.History.Enabled {
		historyWriter = history.NewWriter(history.NewRepository(db.Pool), cfg.History.BufferSize, logger)
	}
	// A nil *Writer must not become a non-nil Sink.
	var historySink metrics.Sink
	if historyWriter != nil {
		historySink = historyWriter
	}

	engine := planner.NewEngine(detector, schemas, planOracle, controller,
		metrics.NewFanOut(logger, windows, historySink),
		planner.EngineConfig{
			RequestTimeout: cfg.Planner.RequestTimeout,
			SchemaTimeout:  cfg.Planner.SchemaTimeout,
		}, logger)

	mcpServer := mcp.NewServer("ekaya-ask", cfg.Version, logger)
	tools.RegisterAnswerTool(mcpServer.MCP(), engine)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, dialect, stores)

	checks := map[string]handlers.Pinger{
		"database":     db.Pool,
		"record_store": stores,
	}
	if redisClient != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewAnswerHandler(engine, logger).RegisterRoutes(mux)
	handlers.NewMetricsHandler(windows, logger).RegisterRoutes(mux)
	mcpServer.RegisterRoutes(mux, middleware.MCPRequestLogger(logger))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Recover(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		// Answers may take up to the request timeout plus encoding.
		WriteTimeout: cfg.Planner.RequestTimeout + 10*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-ask", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	engine.Close()
	if historyWriter != nil {
		if err := historyWriter.Close(shutdownCtx); err != nil {
			logger.Warn("Answer history not fully flushed", zap.Error(err))
		}
	}
	return nil
}

func detectConfig(c config.DetectionConfig) detect.Config {
	rules := make([]detect.FallbackRule, 0, len(c.FallbackRules))
	for _, r := range c.FallbackRules {
		rules = append(rules, detect.FallbackRule{Keywords: r.Keywords, EntityType: r.EntityType})
	}
	return detect.Config{
		MinConfidence:      c.MinConfidence,
		ExactPhraseScore:   c.ExactPhraseScore,
		ExactWordScore:     c.ExactWordScore,
		PartialScore:       c.PartialScore,
		PerMatchBonus:      c.PerMatchBonus,
		MaxConfidence:      c.MaxConfidence,
		FallbackConfidence: c.FallbackConfidence,
		ShortQueryTokens:   c.ShortQueryTokens,
		MediumQueryTokens:  c.MediumQueryTokens,
		ShortCap:           c.ShortCap,
		MediumCap:          c.MediumCap,
		LongCap:            c.LongCap,
		Aliases:            c.Aliases,
		FallbackRules:      rules,
		DefaultEntityTypes: c.DefaultEntityTypes,
	}
}
