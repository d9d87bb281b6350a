package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-remote/engine"
	"github.com/ethereum-optimism/infra/op-remote/metrics"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

const (
	DefaultMaxPollHold = 60 * time.Second
	DefaultSuiteName   = "op-remote"
)

var (
	// ErrRunInProgress rejects a submission while another run is outstanding
	ErrRunInProgress = errors.New("a test run is already in progress")
	// ErrNoRun is returned when results are requested before any submission
	ErrNoRun = errors.New("no test run")
)

// RunError is returned by Submit and Poll when the engine itself failed
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("test run %s failed: %v", e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Engines resolves engine names and provides the defaults applied to every run
type Engines interface {
	Engine(name string) (engine.Engine, error)
	DefaultProperties() map[string]string
	DefaultIncludes() []string
}

// Config holds the configuration of a Controller
type Config struct {
	Engines Engines
	Store   *ArtifactStore
	// MaxPollHold caps how long a results query may wait for the run to finish
	MaxPollHold time.Duration
	Log         log.Logger
}

// SubmitResult is the answer to a submission. Results is only set for sync
// runs.
type SubmitResult struct {
	RunID   string
	Results types.ResultSet
}

// Controller executes at most one test run at a time on behalf of remote
// clients
type Controller struct {
	engines     Engines
	store       *ArtifactStore
	maxPollHold time.Duration
	log         log.Logger
	tracer      trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *run
}

type run struct {
	id      string
	engine  string
	mode    string
	started time.Time
	done    chan struct{}

	mu      sync.Mutex
	results types.ResultSet
	err     error
}

func (r *run) add(o types.TestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results.Append(o)
}

func (r *run) snapshot() (types.ResultSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.NewResultSet(r.results.Outcomes()...), r.err
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// New creates a Controller
func New(cfg Config) (*Controller, error) {
	if cfg.Engines == nil {
		return nil, fmt.Errorf("engines are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.MaxPollHold <= 0 {
		cfg.MaxPollHold = DefaultMaxPollHold
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		engines:     cfg.Engines,
		store:       cfg.Store,
		maxPollHold: cfg.MaxPollHold,
		log:         cfg.Log,
		tracer:      otel.Tracer("remote test controller"),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Submit starts a run. Sync submissions wait for the run to finish and return
// its results; async submissions return as soon as the run has started.
func (c *Controller) Submit(ctx context.Context, desc types.RunDescriptor, async bool) (*SubmitResult, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	sel, err := desc.Selector()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.current != nil && !c.current.finished() {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("controller is shutting down")
	}

	e, err := c.engines.Engine(desc.Engine)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	desc = desc.WithProperties(c.engines.DefaultProperties())
	includes := desc.Includes
	if len(includes) == 0 {
		includes = c.engines.DefaultIncludes()
	}

	mode := "sync"
	if async {
		mode = "async"
	}
	r := &run{
		id:      uuid.New().String(),
		engine:  e.Name(),
		mode:    mode,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	c.current = r
	c.mu.Unlock()

	plan := engine.Plan{
		RunID:      r.id,
		Engine:     e.Name(),
		Selector:   sel,
		Includes:   includes,
		Properties: desc.Properties,
	}
	c.log.Info("Starting test run", "run_id", r.id, "engine", e.Name(), "selector", sel.String(), "mode", mode)

	c.wg.Add(1)
	go c.execute(r, e, plan)

	if async {
		return &SubmitResult{RunID: r.id}, nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	results, err := r.snapshot()
	if err != nil {
		return nil, &RunError{RunID: r.id, Err: err}
	}
	return &SubmitResult{RunID: r.id, Results: results}, nil
}

func (c *Controller) execute(r *run, e engine.Engine, plan engine.Plan) {
	defer c.wg.Done()

	ctx, span := c.tracer.Start(c.ctx, fmt.Sprintf("test run %s", r.mode))
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.id), attribute.String("engine", r.engine))

	metrics.SetRunInProgress(true)
	defer metrics.SetRunInProgress(false)

	err := e.Run(ctx, plan, func(o types.TestOutcome) {
		metrics.RecordTestOutcome(r.engine, o)
		r.add(o)
	})

	results, _ := r.snapshot()
	counts := results.Counts()
	if err != nil {
		c.log.Error("Test run failed", "run_id", r.id, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordErrorDetails("controller", err)
	} else {
		c.log.Info("Test run finished", "run_id", r.id, "duration", time.Since(r.started),
			"total", counts.Total, "passed", counts.Passed, "failed", counts.Failed, "skipped", counts.Skipped)
		metrics.RecordRun("server", r.id, r.mode, counts, results.Status(), time.Since(r.started))
	}

	if storeErr := c.store.Save(results, r.started); storeErr != nil {
		c.log.Warn("Failed to store test reports", "run_id", r.id, "err", storeErr)
		metrics.RecordErrorDetails("store", storeErr)
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// Poll waits up to timeout (capped by MaxPollHold) for the current run to
// finish and returns what it has so far.
func (c *Controller) Poll(ctx context.Context, timeout time.Duration) (string, types.PollResponse, error) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return "", types.PollResponse{}, ErrNoRun
	}

	if timeout > c.maxPollHold {
		timeout = c.maxPollHold
	}
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-r.done:
		case <-t.C:
		case <-ctx.Done():
			return r.id, types.PollResponse{}, ctx.Err()
		}
	}

	if !r.finished() {
		results, _ := r.snapshot()
		return r.id, types.NewPartial(results), nil
	}
	results, err := r.snapshot()
	if err != nil {
		return r.id, types.PollResponse{}, &RunError{RunID: r.id, Err: err}
	}
	return r.id, types.NewFinal(results), nil
}

// Wait blocks until the current run, if any, has finished
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) ArtifactNames() []string {
	return c.store.Names()
}

func (c *Controller) SuiteArtifact() ([]byte, error) {
	return c.store.Suite()
}

func (c *Controller) Artifact(name string) ([]byte, error) {
	return c.store.File(name)
}

// Close cancels a running engine and waits for it to return
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
