package main

// @title           Codex Ingest API
// @version         1.0
// @description     Building-code document ingestion API. Codex Ingest parses uploaded XML archives into structured documents, hierarchy nodes, and assets.

// @contact.name   Custodia Labs
// @contact.url    https://github.com/custodia-labs/codex-ingest/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/adapters/driven/enqueue"
	"github.com/custodia-labs/codex-ingest/internal/adapters/driven/objectstore"
	"github.com/custodia-labs/codex-ingest/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/codex-ingest/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/codex-ingest/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/codex-ingest/internal/adapters/driven/redis"
	"github.com/custodia-labs/codex-ingest/internal/adapters/driving/http"
	"github.com/custodia-labs/codex-ingest/internal/config"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/codex-ingest/internal/core/services"
	"github.com/custodia-labs/codex-ingest/internal/worker"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	log.Printf("codex-ingest %s starting in %s mode", version, mode)

	// Configuration: optional YAML file, overridden by environment
	fileCfg, err := config.Load(getEnv("CONFIG_FILE", ""))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	jwtSecret := getEnv("JWT_SECRET", fileCfg.JWTSecret)
	port := getEnvInt("PORT", fileCfg.Port)
	databaseURL := getEnv("DATABASE_URL", fileCfg.DatabaseURL)
	redisURL := getEnv("REDIS_URL", fileCfg.RedisURL)
	objectRoot := getEnv("OBJECT_STORE_ROOT", fileCfg.ObjectStore.Root)
	objectBaseURL := getEnv("OBJECT_STORE_BASE_URL", fileCfg.ObjectStore.BaseURL)
	if objectBaseURL == "" {
		objectBaseURL = fmt.Sprintf("http://localhost:%d", port)
	}
	objectSigningKey := getEnv("OBJECT_SIGNING_KEY", fileCfg.ObjectStore.SigningKey)
	if objectSigningKey == "" {
		objectSigningKey = jwtSecret
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	dbConfig := postgres.Config{
		URL:             databaseURL,
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
	}
	db, err := postgres.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize schema (idempotent)
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("PostgreSQL connected and schema initialized")

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Object Store =====
	objectStore, err := objectstore.NewFSStore(objectstore.FSStoreConfig{
		Root:       objectRoot,
		BaseURL:    objectBaseURL,
		SigningKey: objectSigningKey,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	// ===== PostgreSQL Stores =====
	runStore := postgres.NewRunStore(db)
	progressStore := postgres.NewProgressStore(db)
	xmlObjectStore := postgres.NewXMLObjectStore(db)
	documentStore := postgres.NewDocumentStore(db)
	blockStore := postgres.NewBlockStore(db)
	nodeStore := postgres.NewNodeStore(db)
	assetStore := postgres.NewAssetStore(db)
	referenceStore := postgres.NewReferenceStore(db)

	// ===== Task Queue (Redis if available, otherwise PostgreSQL) =====
	var taskQueue driven.TaskQueue
	var queueHost http.Pinger
	if redisClient != nil {
		var err error
		taskQueue, err = redisqueue.NewQueue(redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			log.Fatalf("Failed to create task queue: %v", err)
		}
		log.Println("Using Redis task queue")
	} else {
		taskQueue = postgresqueue.NewQueue(db.DB)
		log.Println("Using PostgreSQL task queue")
	}
	queueHost = taskQueue

	// ===== Distributed Lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	var distributedLock driven.DistributedLock
	if redisClient != nil {
		distributedLock = redisadapter.NewLock(redisClient)
		log.Println("Using Redis distributed lock")
	} else {
		distributedLock = postgres.NewAdvisoryLock(db)
		log.Println("Using PostgreSQL advisory lock")
	}

	// ===== Enqueuer (in-process queue, or HTTP invoke for split deployments) =====
	var enqueuer driven.Enqueuer
	if endpoint := getEnv("INVOKE_ENDPOINT", fileCfg.Enqueue.Endpoint); endpoint != "" {
		secret := getEnv("INVOKE_SECRET", fileCfg.Enqueue.Secret)
		if secret == "" {
			secret = jwtSecret
		}
		enqueuer = enqueue.NewHTTPEnqueuer(enqueue.HTTPEnqueuerConfig{
			Endpoint: endpoint,
			Secret:   secret,
		})
		log.Printf("Using HTTP enqueuer (%s)", endpoint)
	} else {
		enqueuer = enqueue.NewQueueEnqueuer(taskQueue)
		log.Println("Using task queue enqueuer")
	}

	// ===== Ingest orchestrator (core business logic) =====
	ingestService := services.NewIngestOrchestrator(services.IngestOrchestratorConfig{
		Runs:       runStore,
		Progress:   progressStore,
		XMLObjects: xmlObjectStore,
		Documents:  documentStore,
		Blocks:     blockStore,
		Nodes:      nodeStore,
		Assets:     assetStore,
		References: referenceStore,
		Objects:    objectStore,
		Enqueuer:   enqueuer,
		Lock:       distributedLock,
		Logger:     slog.Default(),
		BatchSize:  getEnvInt("INGEST_BATCH_SIZE", fileCfg.Ingest.BatchSize),
		TimeBudget: time.Duration(getEnvInt("INGEST_TIME_BUDGET_SEC", fileCfg.Ingest.TimeBudgetSec)) * time.Second,
		LeaseTTL:   time.Duration(getEnvInt("INGEST_LEASE_TTL_SEC", fileCfg.Ingest.LeaseTTLSec)) * time.Second,
	})

	// Janitor sweeps stale runs back onto the queue and purges old tasks
	janitor := worker.NewJanitor(worker.JanitorConfig{
		Runs:       runStore,
		TaskQueue:  taskQueue,
		Enqueuer:   enqueuer,
		Lock:       distributedLock,
		Logger:     slog.Default(),
		StaleAfter: time.Duration(getEnvInt("JANITOR_STALE_AFTER_SEC", fileCfg.Worker.StaleAfterSec)) * time.Second,
	})

	switch mode {
	case "api":
		// API-only mode: HTTP server, no worker
		runAPI(port, jwtSecret, ingestService, objectStore, taskQueue, db, queueHost)

	case "worker":
		// Worker-only mode: Task processing, janitor, no HTTP server
		runWorkerMode(ctx, taskQueue, ingestService, janitor, fileCfg.Worker)

	case "all":
		// Combined mode: Run both API and Worker
		// Start worker in background
		go runWorkerMode(ctx, taskQueue, ingestService, janitor, fileCfg.Worker)
		// Run API in foreground (blocks)
		runAPI(port, jwtSecret, ingestService, objectStore, taskQueue, db, queueHost)

	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}
}

func runAPI(
	port int,
	jwtSecret string,
	ingestService driving.IngestService,
	objectStore *objectstore.FSStore,
	taskQueue driven.TaskQueue,
	db http.Pinger,
	queueHost http.Pinger,
) {
	cfg := http.Config{
		Host:       "0.0.0.0",
		Port:       port,
		Version:    version,
		AuthSecret: jwtSecret,
	}

	server := http.NewServer(cfg, ingestService, objectStore, taskQueue, db, queueHost, slog.Default())

	log.Printf("API server starting on :%d", port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runWorkerMode starts the worker and janitor.
// It drains ingestion runs from the queue and sweeps stale runs.
func runWorkerMode(
	ctx context.Context,
	taskQueue driven.TaskQueue,
	ingestService driving.IngestService,
	janitor *worker.Janitor,
	workerCfg config.WorkerConfig,
) {
	log.Println("Starting worker mode...")

	w := worker.New(worker.Config{
		TaskQueue:      taskQueue,
		Ingest:         ingestService,
		Janitor:        janitor,
		Logger:         slog.Default(),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", workerCfg.Concurrency),
		DequeueTimeout: getEnvInt("WORKER_DEQUEUE_TIMEOUT", workerCfg.DequeueTimeoutSec),
	})

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker started, processing tasks...")
	log.Println("Worker handles:")
	log.Println("  - ingest_run: Drain one ingestion run to completion")

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
