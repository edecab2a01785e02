// Package app wires the engine, services and HTTP server into one runnable
// application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/internal/config"
	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/events"
	"github.com/celestiaorg/shipyard/internal/logger"
	"github.com/celestiaorg/shipyard/internal/metrics"
	"github.com/celestiaorg/shipyard/internal/runner"
	"github.com/celestiaorg/shipyard/internal/services"
	"github.com/celestiaorg/shipyard/internal/webhook"
	"github.com/celestiaorg/shipyard/pkg/api/v1/handlers"
	"github.com/celestiaorg/shipyard/pkg/api/v1/routes"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// Options configures New
type Options struct {
	Config config.Config
	DB     *gorm.DB
	// Runner executes jobs. A dry-run runner is used when nil.
	Runner engine.Runner
	// Registry receives the Prometheus collectors. A fresh registry is
	// created when nil and metrics are enabled.
	Registry *prometheus.Registry
}

// App is a fully wired shipyard instance
type App struct {
	Fiber      *fiber.App
	Machine    *engine.StateMachine
	Registry   *engine.Registry
	Dispatcher *engine.Dispatcher
	Bus        *events.Bus
	Recovery   *services.Recovery

	cfg       config.Config
	cancelBus context.CancelFunc
}

// New builds the application from its options
func New(opts Options) (*App, error) {
	if opts.DB == nil {
		return nil, errors.New("app: database is required")
	}
	cfg := opts.Config

	var (
		sink       metrics.Sink = metrics.NewNoopSink()
		metricsAPI http.Handler
	)
	if cfg.MetricsEnabled {
		reg := opts.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		sink = metrics.NewPrometheusSink(reg)
		metricsAPI = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	jobRunner := opts.Runner
	if jobRunner == nil {
		dryRun := runner.NewDryRun(cfg.RunnerStepDelay)
		jobRunner = runner.NewRouter().
			Handle(models.JobKindTestRun, dryRun).
			Handle(models.JobKindDeployment, dryRun)
	}

	// Repositories
	projectRepo := repos.NewProjectRepository(opts.DB)
	suiteRepo := repos.NewTestSuiteRepository(opts.DB)
	runRepo := repos.NewTestRunRepository(opts.DB)
	deployRepo := repos.NewDeploymentRepository(opts.DB)

	// Engine
	bus := events.NewBus()
	machine := engine.NewStateMachine(map[models.JobKind]engine.Store{
		models.JobKindTestRun:    runRepo,
		models.JobKindDeployment: deployRepo,
	}).Observe(bus)
	registry := engine.NewRegistry(machine).WithMetrics(sink)
	dispatcher := engine.NewDispatcher(machine, registry, jobRunner).
		WithMetrics(sink).
		WithDefaultTimeout(cfg.JobTimeout)
	resolver := engine.NewRollbackResolver(deployRepo, machine, dispatcher).WithMetrics(sink)

	// Services
	projectService := services.NewProjectService(projectRepo)
	suiteService := services.NewTestSuiteService(suiteRepo, projectService)
	runService := services.NewTestRunService(runRepo, projectService, suiteService, dispatcher, registry)
	deployService := services.NewDeploymentService(deployRepo, projectService, dispatcher, registry, resolver)
	recovery := services.NewRecovery(runRepo, deployRepo, suiteRepo, machine, dispatcher).WithMetrics(sink)

	webhook.NewNotifier(projectService, runRepo, deployRepo).WithMetrics(sink).Subscribe(bus)

	// HTTP
	fiberApp := fiber.New(fiber.Config{
		AppName:               "shipyard",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	fiberApp.Use(logger.APILogger())

	api := handlers.NewAPIHandler(projectService, suiteService, runService, deployService, registry)
	routes.RegisterRoutes(fiberApp, auth.NewGuard(cfg.AuthEnabled), routes.NewHandlers(api, metricsAPI))

	return &App{
		Fiber:      fiberApp,
		Machine:    machine,
		Registry:   registry,
		Dispatcher: dispatcher,
		Bus:        bus,
		Recovery:   recovery,
		cfg:        cfg,
	}, nil
}

// Start starts the event bus and reconciles jobs left behind by a previous
// process. It must be called once, before serving requests.
func (a *App) Start(ctx context.Context) error {
	busCtx, cancel := context.WithCancel(context.Background())
	a.cancelBus = cancel
	a.Bus.Start(busCtx)

	if _, err := a.Recovery.Run(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	return nil
}

// Listen serves the API on the configured address until Shutdown is called
func (a *App) Listen() error {
	logger.Infof("🚀 Starting shipyard API on %s", a.cfg.HTTPAddr)
	return a.Fiber.Listen(a.cfg.HTTPAddr)
}

// Shutdown stops accepting requests, waits for in-flight executions and stops
// the event bus. Executions still running when ctx expires are left to the
// next startup recovery.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}

	if err := a.Dispatcher.Wait(ctx); err != nil {
		logger.Warnf("Shutdown with %d executions still in flight", a.Registry.Len())
		errs = append(errs, fmt.Errorf("failed to drain executions: %w", err))
	}

	if a.cancelBus != nil {
		a.cancelBus()
		a.Bus.Wait()
	}
	return errors.Join(errs...)
}

// errorHandler renders errors escaping the handlers as slug responses
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	switch code {
	case fiber.StatusNotFound:
		return c.Status(code).JSON(types.ErrNotFound(err.Error()))
	case fiber.StatusInternalServerError:
		logger.Errorf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(code).JSON(types.ErrServer(err.Error()))
	default:
		return c.Status(code).JSON(types.ErrInvalidInput(err.Error()))
	}
}
