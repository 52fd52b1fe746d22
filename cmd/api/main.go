package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/docutag/sentimint"
	"github.com/docutag/sentimint/api"
	"github.com/docutag/sentimint/db"
	"github.com/docutag/sentimint/language"
	"github.com/docutag/sentimint/metrics"
	"github.com/docutag/sentimint/storage"
	"github.com/docutag/sentimint/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, logging and falling back on bad input
func getEnvInt(logger *slog.Logger, key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		logger.Warn("invalid integer value, using default", "key", key, "provided", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

// getEnvFloat parses a float environment variable, logging and falling back on bad input
func getEnvFloat(logger *slog.Logger, key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		logger.Warn("invalid number value, using default", "key", key, "provided", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

// runMigrationCommand rolls back steps migrations when steps > 0 and logs the resulting status
func runMigrationCommand(logger *slog.Logger, config db.Config, steps int) error {
	database, err := db.Open(config)
	if err != nil {
		return err
	}
	defer database.Close()

	if steps > 0 {
		version, err := db.MigrateDown(database.DB(), steps)
		if err != nil {
			return err
		}
		logger.Info("rolled back migrations", "steps", steps, "schema_version", version)
	}

	status, err := db.Status(database.DB())
	if err != nil {
		return err
	}
	for _, m := range status {
		logger.Info("migration", "version", m.Version, "name", m.Name, "applied", m.Applied)
	}
	return nil
}

func main() {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("sentimint service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("sentimint")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	pipelineDefaults := sentimint.DefaultConfig()
	serverDefaults := api.DefaultConfig()

	// Command-line flags (override environment variables)
	port := flag.String("port", getEnv("PORT", "8080"), "Server port")
	searchURL := flag.String("search-url", getEnv("SEARCH_URL", pipelineDefaults.SearchURL), "Search endpoint with one %s for the query")
	maxPages := flag.Int("max-pages", getEnvInt(logger, "MAX_PAGES", pipelineDefaults.MaxPages), "Pages to analyze per entity")
	concurrency := flag.Int("concurrency", getEnvInt(logger, "FETCH_CONCURRENCY", pipelineDefaults.Concurrency), "Pages fetched at once")
	fetchRate := flag.Float64("fetch-rate", getEnvFloat(logger, "FETCH_RATE", pipelineDefaults.RequestsPerSecond), "Outbound requests per second")
	rateLimit := flag.Int("rate-limit", getEnvInt(logger, "RATE_LIMIT_PER_DAY", serverDefaults.RateLimit.PerDay), "Sentiment requests per client per day (0 disables)")
	cacheTTL := flag.Duration("cache-ttl", serverDefaults.CacheTTL, "Serve stored results younger than this (0 disables)")
	storagePath := flag.String("storage-path", getEnv("STORAGE_BASE_PATH", storage.DefaultConfig().BasePath), "Directory for page snapshots")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disableSnapshots := flag.Bool("disable-snapshots", false, "Do not keep copies of analyzed pages")
	migrateDown := flag.Int("migrate-down", 0, "Roll back this many schema migrations and exit")
	migrationStatus := flag.Bool("migration-status", false, "Print the schema migration status and exit")
	flag.Parse()

	dbHost := getEnv("DB_HOST", "")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "sentimint")
	dbPassword := getEnv("DB_PASSWORD", "sentimint_dev_pass")
	dbName := getEnv("DB_NAME", "sentimint")
	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}

	// Schema maintenance runs against the database and exits without starting the server
	if *migrateDown > 0 || *migrationStatus {
		if dbHost == "" {
			logger.Error("DB_HOST environment variable is required for migration commands")
			os.Exit(1)
		}
		if err := runMigrationCommand(logger, dbConfig, *migrateDown); err != nil {
			logger.Error("migration command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Result history is optional; without a database every request is computed fresh
	var store api.ResultStore
	if dbHost != "" {
		database, err := db.New(dbConfig)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer database.Close()

		logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)
		store = database

		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.UpdateDBStats(database.DB())
			}
		}()
		logger.Info("database metrics initialized")
	} else {
		logger.Warn("DB_HOST not set, result history disabled")
	}

	// Page snapshots go to S3 when a bucket is configured, otherwise to local disk
	var snapshots storage.Store
	if !*disableSnapshots {
		if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
			s3Config := storage.S3Config{
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Bucket:          bucket,
				AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
				UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
			}
			s3Store, err := storage.NewS3Storage(context.Background(), s3Config)
			if err != nil {
				logger.Error("failed to initialize S3 storage", "error", err)
				os.Exit(1)
			}
			snapshots = s3Store
			logger.Info("using S3 snapshot storage", "bucket", bucket, "endpoint", s3Config.Endpoint)
		} else {
			fsStore, err := storage.New(storage.Config{BasePath: *storagePath})
			if err != nil {
				logger.Error("failed to initialize storage", "error", err)
				os.Exit(1)
			}
			snapshots = fsStore
			logger.Info("using filesystem snapshot storage", "path", *storagePath)
		}
	}

	// Pages the language API cannot annotate are skipped; the lexicon is only used without a key
	clientConfig := language.DefaultClientConfig()
	clientConfig.APIKey = getEnv("LANGUAGE_API_KEY", "")
	clientConfig.BaseURL = getEnv("LANGUAGE_API_URL", clientConfig.BaseURL)
	analyzer := language.NewAnalyzer(clientConfig)
	if clientConfig.APIKey != "" {
		logger.Info("using language API analyzer", "base_url", clientConfig.BaseURL)
	} else {
		logger.Warn("LANGUAGE_API_KEY not set, using offline lexicon analyzer")
	}

	pipelineConfig := pipelineDefaults
	pipelineConfig.SearchURL = *searchURL
	pipelineConfig.MaxPages = *maxPages
	pipelineConfig.Concurrency = *concurrency
	pipelineConfig.RequestsPerSecond = *fetchRate

	service := sentimint.New(pipelineConfig, analyzer, snapshots)

	serverConfig := serverDefaults
	serverConfig.Addr = ":" + *port
	serverConfig.CORSEnabled = !*disableCORS
	serverConfig.CacheTTL = *cacheTTL
	serverConfig.RateLimit.PerDay = *rateLimit

	server := api.NewServer(serverConfig, service, store, snapshots)

	// Start server in a goroutine
	go func() {
		logger.Info("sentimint service starting",
			"port", *port,
			"search_url", *searchURL,
			"max_pages", *maxPages,
			"concurrency", *concurrency,
			"fetch_rate", *fetchRate,
			"rate_limit_per_day", *rateLimit,
			"cache_ttl", *cacheTTL,
			"history_enabled", store != nil,
			"snapshots_enabled", snapshots != nil,
		)

		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
