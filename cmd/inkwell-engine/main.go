package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/cmd"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/engine"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/generation"
	"github.com/inkwell-ai/inkwell/pkg/lifecycle"
	"github.com/inkwell-ai/inkwell/pkg/log"
	"github.com/inkwell-ai/inkwell/pkg/otelhelper"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
	"github.com/inkwell-ai/inkwell/pkg/schema"
	"github.com/inkwell-ai/inkwell/pkg/staleness"
)

func main() {
	command := &cli.Command{
		Name:                  "inkwell-engine",
		EnableShellCompletion: true,
		Usage:                 "Run the document production engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "bundle-manifest",
				Usage:    "Path to the schema bundle manifest",
				Required: true,
				Sources:  cli.EnvVars("BUNDLE_MANIFEST"),
			},
			&cli.StringFlag{
				Name:     "doctypes-file",
				Usage:    "Path to the document type declarations",
				Required: true,
				Sources:  cli.EnvVars("DOCTYPES_FILE"),
			},
			&cli.StringFlag{
				Name:    "stations-file",
				Usage:   "Path to the station vocabulary",
				Value:   "",
				Sources: cli.EnvVars("STATIONS_FILE"),
			},
			&cli.StringFlag{
				Name:    "definitions-dir",
				Usage:   "Directory of workflow definition JSON files to register at startup",
				Value:   "",
				Sources: cli.EnvVars("DEFINITIONS_DIR"),
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Usage:   "Directory the generation backend drops node artifacts into",
				Value:   "./artifacts",
				Sources: cli.EnvVars("ARTIFACTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	engineID := command.String("engine-id")
	if engineID == "" {
		engineID = "engine-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("inkwell-engine").With("engine_id", engineID)
	logger.InfoContext(ctx, "Initializing Inkwell engine")

	docTypes, graph, err := config.LoadDocTypes(command.String("doctypes-file"))
	if err != nil {
		return err
	}

	if path := command.String("stations-file"); path != "" {
		stations, err := config.LoadStations(path)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Loaded station vocabulary", "count", len(stations))
	}

	rawSchemas, err := config.LoadBundle(command.String("bundle-manifest"))
	if err != nil {
		return err
	}

	registry, err := schema.NewRegistry(rawSchemas)
	if err != nil {
		return err
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), "inkwell-engine", events.ExecutionTopic, logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	if dir := command.String("definitions-dir"); dir != "" {
		if err := registerDefinitions(ctx, persistence, dir, logger); err != nil {
			return err
		}
	}

	var tracer trace.Tracer
	if os.Getenv("OTEL_ENABLED") == "true" {
		tracer, err = otelhelper.NewTracer(ctx, "inkwell-engine")
		if err != nil {
			return err
		}
	}

	ledger := audit.NewLedger(persistence.Audit(), logger)
	eng := engine.New(persistence, registry, ledger, eventBus, logger)
	lifecycleManager := lifecycle.NewManager(persistence, ledger, eventBus, config.RequiredSections(docTypes), logger)
	propagator := staleness.NewPropagator(graph, persistence.Documents(), lifecycleManager, logger)

	invoker := NewArtifactInvoker(command.String("artifacts-dir"))
	runner := generation.NewRunner(eng, invoker, tracer, logger)

	manager := NewEngineManager(engineID, eng, runner, lifecycleManager, propagator, eventBus, logger)

	if err := manager.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to start engine manager", "error", err)

		return err
	}

	return nil
}

// registerDefinitions loads and validates every definition in the directory
// and saves it so executions can bind it.
func registerDefinitions(ctx context.Context, store persistence.Persistence, dir string, logger *slog.Logger) error {
	definitions, err := config.LoadDefinitionsDir(dir)
	if err != nil {
		return err
	}

	for _, definition := range definitions {
		if err := store.Definitions().Save(ctx, definition); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "Registered workflow definitions", "count", len(definitions))

	return nil
}
