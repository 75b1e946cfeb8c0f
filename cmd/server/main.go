package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/debug"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/mux"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/api/routes"
	appScanning "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/scanning"
	appWorkflow "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/app/workflow"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/config"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/config/fileloader"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/config/manifest"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/aibridge"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/eventbus/kafka"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/eventbus/memory"
	catalogStore "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage/catalog/postgres"
	findingsStore "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage/findings/postgres"
	scanningStore "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage/scanning/postgres"
	workflowStore "github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/infra/storage/workflow/postgres"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/otel"
)

var build = "develop"

const (
	serviceType = "server"
)

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			// Output the error event with valid JSON details.
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("SERVER-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	level := logger.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}

	log = logger.NewWithMetadata(os.Stdout, level, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration
	cfg := config.Default()
	if path := os.Getenv("SERVER_CONFIG_PATH"); path != "" {
		loaded, err := fileloader.NewFileLoader(path).Load(ctx)
		if err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		cfg = loaded
		log.Info(ctx, "startup", "status", "config file loaded", "path", path)
	}

	// Endpoint overrides stay in the environment so one config file serves
	// every deployment.
	if v := os.Getenv("API_HOST"); v != "" {
		cfg.Web.APIHost = v
	}
	if v := os.Getenv("DEBUG_HOST"); v != "" {
		cfg.Web.DebugHost = v
	}
	if v := os.Getenv("TOOLS_MANIFEST_PATH"); v != "" {
		cfg.Catalog.ManifestPath = v
	}

	// -------------------------------------------------------------------------
	// Database Configuration
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := os.Getenv("POSTGRES_USER")
		password := os.Getenv("POSTGRES_PASSWORD")
		host := os.Getenv("POSTGRES_HOST")
		dbname := os.Getenv("POSTGRES_DB")

		if user == "" {
			user = "postgres"
		}
		if password == "" {
			password = "postgres"
		}
		if host == "" {
			host = "postgres"
		}
		if dbname == "" {
			dbname = "pentest"
		}

		dsn = fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
			user, password, host, dbname)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 25
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info(ctx, "startup", "status", "migrations applied")

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	ratio := os.Getenv("OTEL_SAMPLING_RATIO")
	if ratio == "" {
		ratio = "0.05"
	}
	prob, err := strconv.ParseFloat(ratio, 64)
	if err != nil {
		return fmt.Errorf("parsing sampling ratio: %w", err)
	}

	svc := os.Getenv("OTEL_SERVICE_NAME")
	if svc == "" {
		svc = serviceType
	}

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      svc,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/health/liveness":  {},
			"/v1/health/readiness": {},
			"/debug":               {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true, // TODO: Come back to setup TLS
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(svc)

	// -------------------------------------------------------------------------
	// Start Debug Service

	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.Web.DebugHost)

		if err := http.ListenAndServe(cfg.Web.DebugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus")

	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "pentest-server"
	}
	jobsTopic := os.Getenv("KAFKA_RUN_JOBS_TOPIC")
	if jobsTopic == "" {
		jobsTopic = "run-jobs"
	}
	eventsTopic := os.Getenv("KAFKA_RUN_EVENTS_TOPIC")
	if eventsTopic == "" {
		eventsTopic = "run-events"
	}

	kafkaClient, err := kafka.NewClient(&kafka.ClientConfig{
		Brokers:     strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		GroupID:     groupID,
		ClientID:    svc,
		ServiceType: serviceType,
	})
	if err != nil {
		return fmt.Errorf("creating kafka client: %w", err)
	}
	defer kafkaClient.Close()

	mp := otel.GetMeterProvider()
	metricCollector, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	bus, err := kafka.ConnectEventBus(&kafka.Config{
		Brokers:        strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		RunJobsTopic:   jobsTopic,
		RunEventsTopic: eventsTopic,
		GroupID:        groupID,
		ClientID:       svc,
		ServiceType:    serviceType,
	}, kafkaClient, log, metricCollector, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer bus.Close()

	publisher := kafka.NewDomainEventPublisher(bus)
	jobQueue := kafka.NewRunJobQueue(publisher)

	// -------------------------------------------------------------------------
	// Initialize Core Services
	log.Info(ctx, "startup", "status", "initializing core services")

	runRepo := scanningStore.NewRunStore(pool, tracer)
	artifactRepo := scanningStore.NewArtifactStore(pool, tracer)
	findingRepo := findingsStore.NewFindingStore(pool, tracer)
	userRepo := catalogStore.NewUserStore(pool, tracer)
	toolRepo := catalogStore.NewToolStore(pool, tracer)
	scopeRepo := catalogStore.NewScopeStore(pool, tracer)
	sessionRepo := workflowStore.NewSessionStore(pool, tracer)

	if err := seedTools(ctx, log, toolRepo, cfg.Catalog.ManifestPath); err != nil {
		return fmt.Errorf("seeding tool catalog: %w", err)
	}

	backend, err := aibridge.NewClient(aibridge.Config{
		BaseURL:           os.Getenv("AI_BRIDGE_URL"),
		APIKey:            os.Getenv("AI_BRIDGE_API_KEY"),
		RequestsPerSecond: cfg.Bridge.RequestsPerSecond,
		Burst:             cfg.Bridge.Burst,
	}, log, tracer)
	if err != nil {
		return fmt.Errorf("creating ai bridge client: %w", err)
	}

	hub := memory.NewStreamHub(log)

	authorizer := appScanning.NewTargetAuthorizer(scopeRepo, log, tracer)
	runService := appScanning.NewRunService(
		runRepo, artifactRepo, findingRepo, toolRepo,
		authorizer, jobQueue, hub, backend, publisher, log, tracer,
	)

	worker := appScanning.NewScanWorker(
		runRepo, artifactRepo, toolRepo,
		backend, hub, bus, publisher, log, tracer,
	)
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting scan worker: %w", err)
	}

	var orchOpts []appWorkflow.OrchestratorOption
	if d := cfg.Workflow.PhaseTimeout(); d > 0 {
		orchOpts = append(orchOpts, appWorkflow.WithPhaseTimeout(d))
	}
	if d := cfg.Workflow.SessionTimeout(); d > 0 {
		orchOpts = append(orchOpts, appWorkflow.WithSessionTimeout(d))
	}

	orchestrator := appWorkflow.NewOrchestrator(
		sessionRepo, runRepo, artifactRepo, findingRepo,
		backend, hub, publisher, log, tracer, orchOpts...,
	)
	sessionService := appWorkflow.NewSessionService(
		sessionRepo, runRepo, findingRepo, toolRepo,
		orchestrator, hub, backend, publisher, log, tracer,
	)

	// Pick up any workflow session left queued by a previous process.
	orchestrator.Resume(ctx)

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfgMux := mux.Config{
		Build:    build,
		Log:      log,
		DB:       pool,
		Users:    userRepo,
		Runs:     runService,
		Sessions: sessionService,
		Broker:   hub,
		Metrics:  metricCollector,
		Tracer:   tracer,
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout(),
		WriteTimeout: cfg.Web.WriteTimeout(),
		IdleTimeout:  cfg.Web.IdleTimeout(),
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout())
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// seedTools loads the tool manifest and upserts every entry into the catalog.
// A missing manifest file is not fatal; the catalog keeps whatever a previous
// seed left behind.
func seedTools(ctx context.Context, log *logger.Logger, tools catalog.ToolRepository, path string) error {
	seeded, err := manifest.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn(ctx, "Tool manifest not found; skipping catalog seed", "path", path)
	case err != nil:
		return err
	default:
		for _, tool := range seeded {
			if err := tools.UpsertTool(ctx, tool); err != nil {
				return fmt.Errorf("upserting tool %q: %w", tool.Slug(), err)
			}
		}
		log.Info(ctx, "startup", "status", "tool catalog seeded", "tools", len(seeded))
	}

	if _, err := tools.GetToolBySlug(ctx, appWorkflow.DriverToolSlug); err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			log.Warn(ctx, "Workflow driver tool missing from catalog; workflow creation will fail",
				"slug", appWorkflow.DriverToolSlug)
			return nil
		}
		return err
	}

	return nil
}

// runMigrations uses golang-migrate to apply all up migrations from
// "db/migrations". It borrows a database handle from the pool for the
// duration of the migration run.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_URL")
	if migrationsPath == "" {
		migrationsPath = "file:///app/db/migrations"
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
