package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/storeflow/pkg/cmd"
	"github.com/dukex/storeflow/pkg/log"
	"github.com/dukex/storeflow/pkg/otelhelper"
	"github.com/dukex/storeflow/pkg/scheduler"
	"github.com/dukex/storeflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	serviceName     = "storeflow-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Manage and run back office workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (memory://, file://path, postgres://..., redis://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers, used with --event-bus kafka",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Maximum node executions per run",
				Value:   workflow.DefaultMaxSteps,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP HTTP (configured by OTEL_EXPORTER_OTLP_* variables)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Storeflow API")

	if command.Bool("tracing") {
		tracerProvider, err := otelhelper.NewTracerProvider(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := tracerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	registry, err := cmd.NewRegistry(logger, cmd.NewDependencies(logger, eventBus))
	if err != nil {
		return fmt.Errorf("failed to build node registry: %w", err)
	}

	engine := workflow.NewEngine(logger, persistence, registry,
		workflow.WithPublisher(eventBus),
		workflow.WithMaxSteps(command.Int("max-steps")),
	)

	if err := engine.RegisterHandlers(eventBus); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	sched := scheduler.New(logger, engine)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	app := NewAPI(logger, engine, registry).App()
	port := command.Int("port")

	errs := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "API listening", "port", port)
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err = <-errs:
	case <-ctx.Done():
		logger.InfoContext(ctx, "Shutting down Storeflow API")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err = errors.Join(err, app.ShutdownWithContext(shutdownCtx), sched.Stop(shutdownCtx))

	return err
}
