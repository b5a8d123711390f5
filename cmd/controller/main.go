// Package main is the entry point for the layerplane API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"layerplane/internal/builder"
	"layerplane/internal/config"
	"layerplane/internal/controller"
	"layerplane/internal/generator"
	"layerplane/internal/layer"
	"layerplane/internal/logger"
	"layerplane/internal/objectstore"
	"layerplane/internal/observability"
	"layerplane/internal/registry"
	"layerplane/internal/store"
	"layerplane/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: layerplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build history: Postgres when configured, memory otherwise
	var builds store.BuildStore
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer db.Close()

		if *migrateFlag {
			log.Println("Running database migrations...")
			schema, err := postgres.Migrate(db.DB())
			if err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			log.Printf("Migrations completed successfully (schema version %d)", schema)
		}
		builds = db
	} else {
		if *migrateFlag {
			log.Println("No DATABASE_URL set, skipping migrations")
		}
		builds = store.NewMemoryStore(0)
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "layerplane", cfg.OTELEndpoint,
		observability.WithServiceVersion(version),
		observability.WithSampleRatio(cfg.OTELSampleRatio),
	)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	meter := otel.Meter("layerplane")
	buildMetrics, err := observability.NewBuildMetrics(meter)
	if err != nil {
		log.Fatalf("Failed to register build metrics: %v", err)
	}

	// Docker
	env, err := builder.NewDockerEnvironment(cfg.DockerHost, cfg.BuildPlatform)
	if err != nil {
		log.Fatalf("Failed to create Docker client: %v", err)
	}
	defer env.Close()

	orch := builder.New(env, builder.Config{WorkDir: cfg.BuildWorkDir}, appLog)
	if removed, err := orch.Sweep(ctx); err != nil {
		log.Printf("Failed to sweep leftovers of earlier runs: %v", err)
	} else if removed > 0 {
		log.Printf("Removed %d leftover build resources", removed)
	}

	// Validation
	index := registry.New(cfg.RegistryURL, cfg.RegistryTimeout, appLog)
	validator := layer.NewValidator(index,
		layer.WithConcurrency(cfg.RegistryConcurrency),
		layer.WithUnknownPolicy(layer.UnknownPolicy(cfg.RegistryUnknownPolicy)),
	)

	opts := []generator.Option{
		generator.WithRecorder(builds),
		generator.WithMetrics(buildMetrics),
	}

	// Artifact publishing
	artifacts := objectstore.Config{
		Endpoint:  cfg.ArtifactsEndpoint,
		Bucket:    cfg.ArtifactsBucket,
		AccessKey: cfg.ArtifactsAccessKey,
		SecretKey: cfg.ArtifactsSecretKey,
		UseSSL:    cfg.ArtifactsUseSSL,
	}
	if artifacts.Enabled() {
		publisher, err := objectstore.New(artifacts)
		if err != nil {
			log.Fatalf("Failed to create artifact publisher: %v", err)
		}
		if err := publisher.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to prepare artifact bucket: %v", err)
		}
		opts = append(opts, generator.WithPublisher(publisher))
	}

	gen := generator.New(validator, orch, generator.Config{
		BuildTimeout:  cfg.BuildTimeout,
		MaxConcurrent: cfg.BuildMaxConcurrent,
	}, appLog, opts...)

	// Observed only on scrape.
	_, err = meter.Int64ObservableGauge("layerplane.builds.in_flight",
		metric.WithDescription("Number of layer builds currently running"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(gen.InFlight())
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register in-flight builds metric: %v", err)
	}

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Options{
		Addr:            addr,
		APIToken:        cfg.APIToken,
		RateLimit:       cfg.RateLimit,
		RateLimitBurst:  cfg.RateLimitBurst,
		WriteTimeout:    cfg.BuildTimeout + 5*time.Minute,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         metricsHandler,
		Logger:          appLog,
	}, gen, builds, orch)

	log.Printf("Layerplane %s starting on %s (workdir %s)", version, addr, cfg.BuildWorkDir)
	if err := srv.Run(ctx); err != nil {
		log.Printf("Server stopped: %v", err)
		stop()
		os.Exit(1)
	}
	log.Println("Server exited properly")
}
