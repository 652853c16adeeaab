package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/inkwell-ai/inkwell/pkg/admin"
	"github.com/inkwell-ai/inkwell/pkg/audit"
	"github.com/inkwell-ai/inkwell/pkg/cmd"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/log"
	"github.com/inkwell-ai/inkwell/pkg/persistence"
)

func main() {
	command := &cli.Command{
		Name:                  "inkwell-admin",
		EnableShellCompletion: true,
		Usage:                 "Administer document production",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Validate workflow definitions and the document type graph",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "definitions-dir",
						Usage:    "Directory of workflow definition JSON files",
						Required: true,
						Sources:  cli.EnvVars("DEFINITIONS_DIR"),
					},
					&cli.StringFlag{
						Name:     "doctypes-file",
						Usage:    "Path to the document type declarations",
						Required: true,
						Sources:  cli.EnvVars("DOCTYPES_FILE"),
					},
				},
				Action: runValidate,
			},
			{
				Name:      "reset",
				Usage:     "Delete the latest document of a type, its children, and their executions",
				ArgsUsage: "<project-code> <doc-type> [instance-key]",
				Action:    runReset,
			},
			{
				Name:      "archive",
				Usage:     "Freeze a project; archived projects reject all mutations",
				ArgsUsage: "<project-code>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason recorded in the audit ledger",
						Value: "archived by operator",
					},
				},
				Action: runArchive(true),
			},
			{
				Name:      "unarchive",
				Usage:     "Lift the freeze on an archived project",
				ArgsUsage: "<project-code>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason recorded in the audit ledger",
						Value: "unarchived by operator",
					},
				},
				Action: runArchive(false),
			},
			{
				Name:      "history",
				Usage:     "Replay the audit ledger of a project in order",
				ArgsUsage: "<project-code>",
				Action:    runHistory,
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("inkwell-admin")

	definitions, err := config.LoadDefinitionsDir(command.String("definitions-dir"))
	if err != nil {
		return err
	}

	docTypes, graph, err := config.LoadDocTypes(command.String("doctypes-file"))
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Validation passed",
		"definitions", len(definitions),
		"doc_types", len(docTypes),
		"graph_types", len(graph.Types()),
	)

	for _, definition := range definitions {
		fmt.Printf("ok: workflow %s v%d (%s), %d nodes, %d edges\n",
			definition.WorkflowID, definition.Version, definition.Status,
			len(definition.Nodes), len(definition.Edges))
	}

	return nil
}

func runReset(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("inkwell-admin")

	if command.Args().Len() < 2 || command.Args().Len() > 3 {
		return fmt.Errorf("usage: reset <project-code> <doc-type> [instance-key]")
	}

	projectCode := command.Args().Get(0)
	docType := command.Args().Get(1)
	instanceKey := command.Args().Get(2)

	store, err := openPersistence(ctx, command, logger)
	if err != nil {
		return err
	}
	defer closePersistence(ctx, store, logger)

	ledger := audit.NewLedger(store.Audit(), logger)
	service := admin.NewService(store, ledger, nil, logger)

	deleted, err := service.Reset(ctx, projectCode, docType, instanceKey, nil)
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d document(s) of type %s in project %s\n", deleted, docType, projectCode)

	return nil
}

func runArchive(archive bool) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		log.Setup(command.String("log-level"))
		logger := log.WithModule("inkwell-admin")

		if command.Args().Len() != 1 {
			return fmt.Errorf("usage: %s <project-code>", command.Name)
		}

		projectCode := command.Args().Get(0)

		store, err := openPersistence(ctx, command, logger)
		if err != nil {
			return err
		}
		defer closePersistence(ctx, store, logger)

		ledger := audit.NewLedger(store.Audit(), logger)
		service := admin.NewService(store, ledger, nil, logger)

		if archive {
			err = service.ArchiveProject(ctx, projectCode, nil, command.String("reason"))
		} else {
			err = service.UnarchiveProject(ctx, projectCode, nil, command.String("reason"))
		}

		if err != nil {
			return err
		}

		fmt.Printf("project %s archived=%t\n", projectCode, archive)

		return nil
	}
}

func runHistory(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("inkwell-admin")

	if command.Args().Len() != 1 {
		return fmt.Errorf("usage: history <project-code>")
	}

	projectCode := command.Args().Get(0)

	store, err := openPersistence(ctx, command, logger)
	if err != nil {
		return err
	}
	defer closePersistence(ctx, store, logger)

	ledger := audit.NewLedger(store.Audit(), logger)

	records, err := ledger.History(ctx, projectCode)
	if err != nil {
		return err
	}

	for _, record := range records {
		actor := "system"
		if record.ActorUserID != nil {
			actor = *record.ActorUserID
		}

		fmt.Printf("%s  %-22s  %-12s  %s\n",
			record.CreatedAt.Format("2006-01-02 15:04:05"), record.Action, actor, record.Reason)
	}

	return nil
}

func openPersistence(ctx context.Context, command *cli.Command, logger *slog.Logger) (persistence.Persistence, error) {
	databaseURL := command.String("database-url")
	if databaseURL == "" {
		return nil, fmt.Errorf("database-url is required")
	}

	return cmd.NewPersistence(ctx, logger, databaseURL)
}

func closePersistence(ctx context.Context, store persistence.Persistence, logger *slog.Logger) {
	if err := store.Close(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
