// Package main provides the Stepflow API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/expression"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "stepflow-api"

// Config selects the infrastructure the API runs on.
type Config struct {
	DatabaseURL  string
	EventBus     string
	KafkaBrokers string
	PluginsPath  string
	OTelEnabled  bool
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Store
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	engine      *engine.Engine
	definitions *services.Definitions
	validate    *validator.Validate
	shutdown    func(context.Context) error
}

// NewAPI opens the store and event bus and wires the engine around them.
func NewAPI(ctx context.Context, log *slog.Logger, config Config) (*API, error) {
	store, err := cmd.NewPersistence(ctx, log, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	bus, err := cmd.NewEventBus(config.EventBus, serviceName, config.KafkaBrokers, log)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	api := &API{
		logger:      log,
		persistence: store,
		eventBus:    bus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	tracer := otelhelper.NoopTracer()
	if config.OTelEnabled {
		var shutdown func(context.Context) error

		tracer, shutdown, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			api.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		api.shutdown = shutdown
	}

	if err := api.wire(config.PluginsPath, tracer); err != nil {
		api.Close(ctx)

		return nil, err
	}

	if err := cmd.SubscribeActivityLog(ctx, bus, log); err != nil {
		api.Close(ctx)

		return nil, err
	}

	return api, nil
}

func (a *API) wire(pluginsPath string, tracer trace.Tracer) error {
	evaluator := expression.NewEvaluator(a.logger)
	collaborators := cmd.NewCollaborators(a.logger, evaluator, a.eventBus)

	reg, err := cmd.NewRegistry(a.logger, pluginsPath, collaborators)
	if err != nil {
		return fmt.Errorf("failed to build step registry: %w", err)
	}

	a.registry = reg
	a.engine = engine.NewEngine(a.persistence, reg, evaluator, a.logger,
		engine.WithPublisher(a.eventBus),
		engine.WithTracer(tracer),
	)
	a.definitions = services.NewDefinitions(a.persistence, a.validate, a.logger,
		services.WithEventPublisher(a.eventBus),
	)

	return nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.definitions, a.engine, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// Close releases the event bus, the store and the trace exporter.
func (a *API) Close(ctx context.Context) {
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if err := a.persistence.Close(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}

	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
