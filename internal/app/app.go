// -----------------------------------------------------------------------
// App - Component wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/artifact"
	"github.com/ternarybob/describo/internal/broker"
	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/handlers"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/jobs"
	"github.com/ternarybob/describo/internal/pipeline"
	"github.com/ternarybob/describo/internal/services/github"
	"github.com/ternarybob/describo/internal/services/llm"
	"github.com/ternarybob/describo/internal/storage/badger"
	"github.com/ternarybob/describo/internal/tools"
)

// ErrBrokerUnavailable marks startup failures caused by the task broker
// being unreachable. The CLI maps it to its service-unavailable exit code.
var ErrBrokerUnavailable = errors.New("task broker unavailable")

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	Broker         *broker.RedisBroker
	LLMService     interfaces.LLMService
	Gateway        interfaces.ArtifactGateway
	CodeHost       interfaces.CodeHost

	Pipeline  *pipeline.Pipeline
	Submitter *jobs.Submitter
	Runtime   *jobs.Runtime
	Reaper    *jobs.Reaper

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
}

// New wires every component. The broker connection is verified here so the
// process can refuse to start without its queue.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initBroker(); err != nil {
		a.StorageManager.Close()
		cancel()
		return nil, err
	}
	if err := a.initServices(); err != nil {
		a.shutdownInfra()
		cancel()
		return nil, err
	}
	a.initHandlers()

	logger.Info().Msg("Application components initialized")
	return a, nil
}

func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initBroker() error {
	redisBroker, err := broker.NewRedisBroker(a.Logger, &a.Config.Broker)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBrokerUnavailable, err.Error())
	}
	a.Broker = redisBroker
	return nil
}

func (a *App) initServices() error {
	llmService, err := llm.NewClaudeService(&a.Config.Model, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model service: %w", err)
	}
	a.LLMService = llmService

	gateway, err := artifact.NewS3Store(&a.Config.ArtifactStore, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	a.Gateway = gateway
	a.CodeHost = github.NewPublisher(a.Logger)

	fetcher := tools.NewFetcher(a.Config, a.Logger)
	scanner := tools.NewScanner(&a.Config.Scanner, a.Logger)
	analyzer := tools.NewAnalyzer(&a.Config.Analyzer, a.Logger)
	generator := tools.NewGenerator(a.LLMService, a.Config, a.Logger)
	publisher := tools.NewPublisher(a.Gateway, a.CodeHost, a.Config, a.Logger)
	cleaner := tools.NewCleaner(a.Config, a.Logger)

	a.Pipeline = pipeline.New(fetcher, scanner, analyzer, generator, publisher, cleaner, a.Logger)

	store := a.StorageManager.JobStore()
	a.Submitter = jobs.NewSubmitter(store, a.Broker, a.Config, a.Logger)
	a.Runtime = jobs.NewRuntime(store, a.Broker, a.Pipeline, a.Config, a.Logger)
	a.Reaper = jobs.NewReaper(store, cleaner, a.Config, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Broker, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Submitter, a.StorageManager.JobStore(), a.Gateway, a.Config, a.Logger)
}

// Start launches the background components: worker slots, the reservation
// reclaimer, and the reaper schedule.
func (a *App) Start() error {
	a.StorageManager.StartMaintenance(a.ctx)
	a.Broker.StartReclaimer(a.ctx)
	a.Runtime.Start()
	if err := a.Reaper.Start(); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}
	return nil
}

// Close stops background work and releases every connection. Safe to call
// after a partially failed start.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.Reaper != nil {
		a.Reaper.Stop()
	}
	if a.Runtime != nil {
		a.Runtime.Stop()
	}
	a.cancelCtx()
	a.shutdownInfra()

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}

func (a *App) shutdownInfra() {
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close model service")
		}
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close broker")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
