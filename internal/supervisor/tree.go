// Package supervisor runs the long-lived lishe services under a suture tree.
//
// The tree has three layers:
//
//	lishe
//	├── data-layer      (catalog watcher)
//	├── worker-layer    (reminder scheduler)
//	└── api-layer       (HTTP server)
//
// A crashing or panicking service is restarted by its layer without
// touching the others.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds the restart policy shared by every layer.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64
	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout is the maximum time to wait for a service to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns the production restart policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the lishe supervisor hierarchy.
type Tree struct {
	root    *suture.Supervisor
	data    *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
	logger  zerolog.Logger
	config  TreeConfig
}

// NewTree builds the hierarchy. Zero config values take the defaults.
func NewTree(logger zerolog.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	logger = logger.With().Str("component", "supervisor").Logger()

	// Children inherit the root's EventHook when added.
	rootSpec := suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("lishe", rootSpec)
	data := suture.New("data-layer", childSpec)
	workers := suture.New("worker-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(data)
	root.Add(workers)
	root.Add(api)

	return &Tree{
		root:    root,
		data:    data,
		workers: workers,
		api:     api,
		logger:  logger,
		config:  config,
	}
}

// EventHook logs suture events through zerolog.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var evt *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			evt = logger.Error()
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			evt = logger.Warn()
		default:
			evt = logger.Info()
		}
		evt.Fields(e.Map()).Msg(e.String())
	}
}

// AddDataService adds a service to the data layer.
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddWorkerService adds a background worker.
func (t *Tree) AddWorkerService(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddAPIService adds a request-serving service.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	t.logger.Info().Msg("Supervisor tree starting")
	err := t.root.Serve(ctx)
	t.logger.Info().Err(err).Msg("Supervisor tree stopped")
	return err
}

// ServeBackground runs the tree in a goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that did not stop within the timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
