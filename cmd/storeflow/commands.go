package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukex/storeflow/pkg/analytics"
	"github.com/dukex/storeflow/pkg/cmd"
	"github.com/dukex/storeflow/pkg/definition"
	"github.com/dukex/storeflow/pkg/log"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const dateLayout = "2006-01-02"

var errMissingArgument = errors.New("missing argument")

// withEngine opens persistence and runs fn against an engine whose side effects are logged.
func withEngine(ctx context.Context, command *cli.Command, fn func(engine *workflow.Engine) error) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("cli")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	registry, err := cmd.NewRegistry(logger, cmd.NewDependencies(logger, nil))
	if err != nil {
		return err
	}

	return fn(workflow.NewEngine(logger, persistence, registry))
}

func output(command *cli.Command) io.Writer {
	if root := command.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}

	return os.Stdout
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create or replace workflows from YAML definition files",
		ArgsUsage: "FILE...",
		Action: func(ctx context.Context, command *cli.Command) error {
			paths := command.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("%w: at least one definition file", errMissingArgument)
			}

			var workflows []*models.Workflow

			for _, path := range paths {
				parsed, err := definition.ParseFile(path)
				if err != nil {
					return err
				}

				workflows = append(workflows, parsed...)
			}

			return withEngine(ctx, command, func(engine *workflow.Engine) error {
				results, err := definition.Import(ctx, engine, workflows)

				for _, result := range results {
					action := "updated"
					if result.Created {
						action = "created"
					}

					fmt.Fprintf(output(command), "%s %s (%s) version %d\n",
						action, result.Workflow.Name, result.Workflow.ID, result.Workflow.Version)
				}

				return err
			})
		},
	}
}

func NewExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write stored workflows as YAML definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only export workflows of this category",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File to write, standard output when empty",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return withEngine(ctx, command, func(engine *workflow.Engine) error {
				workflows, err := engine.GetWorkflows(ctx, models.WorkflowCategory(command.String("category")))
				if err != nil {
					return err
				}

				path := command.String("output")
				if path == "" {
					return definition.Export(output(command), workflows)
				}

				file, err := os.Create(path)
				if err != nil {
					return err
				}

				if err := definition.Export(file, workflows); err != nil {
					_ = file.Close()

					return err
				}

				return file.Close()
			})
		},
	}
}

func NewExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Aliases:   []string{"run"},
		Usage:     "Run a workflow once and print the execution",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data",
				Usage: "Trigger data as a JSON object",
				Value: "{}",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("%w: workflow id", errMissingArgument)
			}

			var triggerData map[string]any
			if err := json.Unmarshal([]byte(command.String("data")), &triggerData); err != nil {
				return fmt.Errorf("invalid trigger data: %w", err)
			}

			return withEngine(ctx, command, func(engine *workflow.Engine) error {
				execution, err := engine.ExecuteWorkflow(ctx, workflowID, triggerData)
				if err != nil {
					return err
				}

				return printJSON(output(command), execution)
			})
		},
	}
}

func NewAnalyticsCommand() *cli.Command {
	return &cli.Command{
		Name:      "analytics",
		Usage:     "Print the analytics report of a workflow",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "start",
				Usage: "First day included (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Last day included (YYYY-MM-DD)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("%w: workflow id", errMissingArgument)
			}

			dateRange, err := parseDays(command.String("start"), command.String("end"))
			if err != nil {
				return err
			}

			return withEngine(ctx, command, func(engine *workflow.Engine) error {
				report, err := engine.GetWorkflowAnalytics(ctx, workflowID, dateRange)
				if err != nil {
					return err
				}

				return printJSON(output(command), report)
			})
		},
	}
}

// parseDays builds an inclusive UTC range of whole days. A missing bound stays open.
func parseDays(start, end string) (*analytics.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}

	dateRange := &analytics.DateRange{}

	if start != "" {
		day, err := time.Parse(dateLayout, start)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}

		dateRange.Start = day
	}

	if end != "" {
		day, err := time.Parse(dateLayout, end)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}

		dateRange.End = day.Add(24*time.Hour - time.Nanosecond)
	}

	return dateRange, nil
}
