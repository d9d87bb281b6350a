package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-remote/metrics"
	"github.com/ethereum-optimism/infra/op-remote/reporting"
	"github.com/ethereum-optimism/infra/op-remote/transport"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

// State is the lifecycle state of an orchestrated run
type State string

const (
	StateIdle        State = "IDLE"
	StateSubmitting  State = "SUBMITTING"
	StateWaiting     State = "WAITING"
	StateAggregating State = "AGGREGATING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// PollState tracks the async polling progress
type PollState string

const (
	PollSubmitted  PollState = "SUBMITTED"
	PollInProgress PollState = "IN_PROGRESS"
	PollComplete   PollState = "COMPLETE"
	PollFailed     PollState = "FAILED"
)

const DefaultPollInterval = 10 * time.Second

// ErrAlreadyStarted is returned when Start is called a second time
var ErrAlreadyStarted = errors.New("orchestrator already started a run")

// Transport is what the orchestrator needs from the transport client
type Transport interface {
	Submit(ctx context.Context, desc types.RunDescriptor) (*transport.SubmissionHandle, error)
	PollOnce(ctx context.Context, handle *transport.SubmissionHandle, timeoutHint time.Duration) (types.PollResponse, error)
	reporting.ArtifactFetcher
}

// Pipeline turns the final results into reports
type Pipeline interface {
	Process(ctx context.Context, rs types.ResultSet, fetcher reporting.ArtifactFetcher) ([]string, error)
}

// Config holds the configuration of an Orchestrator
type Config struct {
	Transport Transport
	Pipeline  Pipeline
	// PollInterval is both the hold time asked from the server and the
	// minimum time between two polls
	PollInterval time.Duration
	// DefaultProperties are sent with every run; descriptor properties win
	DefaultProperties map[string]string
	// Progress receives one symbol line per partial answer; optional
	Progress io.Writer
	Log      log.Logger
}

// Result is the outcome of a completed orchestration
type Result struct {
	RunID    string
	Results  types.ResultSet
	Warnings []string
	Polls    int
	Duration time.Duration
}

// Orchestrator drives a single remote test run from submission to reports
type Orchestrator struct {
	transport    Transport
	pipeline     Pipeline
	pollInterval time.Duration
	defaults     map[string]string
	progress     io.Writer
	log          log.Logger
	tracer       trace.Tracer

	mu              sync.Mutex
	started         bool
	state           State
	history         []State
	pollTransitions []PollState
}

// New creates an Orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("report pipeline is required")
	}
	if cfg.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval cannot be negative: %s", cfg.PollInterval)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	return &Orchestrator{
		transport:    cfg.Transport,
		pipeline:     cfg.Pipeline,
		pollInterval: cfg.PollInterval,
		defaults:     cfg.DefaultProperties,
		progress:     cfg.Progress,
		log:          cfg.Log,
		tracer:       otel.Tracer("remote test orchestrator"),
		state:        StateIdle,
		history:      []State{StateIdle},
	}, nil
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every state the orchestrator went through, in order
func (o *Orchestrator) History() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.history...)
}

// PollTransitions returns the poll state transitions of an async run
func (o *Orchestrator) PollTransitions() []PollState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PollState(nil), o.pollTransitions...)
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
	o.history = append(o.history, s)
}

func (o *Orchestrator) pollTransition(s PollState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pollTransitions = append(o.pollTransitions, s)
}

// Start runs the whole protocol for one descriptor. It can only be called
// once per Orchestrator.
func (o *Orchestrator) Start(ctx context.Context, desc types.RunDescriptor) (*Result, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	mode := "sync"
	if desc.Async {
		mode = "async"
	}

	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("remote run %s", mode))
	defer span.End()

	start := time.Now()
	result, err := o.run(ctx, desc)
	if err != nil {
		o.transition(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordErrorDetails("orchestrator", err)
		return nil, err
	}
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.Int("tests.total", result.Results.Counts().Total),
		attribute.Int("tests.failed", result.Results.Counts().Failed),
		attribute.Int("warnings", len(result.Warnings)),
	)
	metrics.RecordRun("client", result.RunID, mode, result.Results.Counts(), result.Results.Status(), result.Duration)

	o.transition(StateDone)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, desc types.RunDescriptor) (*Result, error) {
	desc = desc.WithProperties(o.defaults)
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	sel, _ := desc.Selector()

	o.transition(StateSubmitting)
	o.log.Info("Submitting test run", "selector", sel.String(), "engine", desc.Engine, "async", desc.Async)

	handle, err := o.transport.Submit(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to submit test run: %w", err)
	}

	result := &Result{RunID: handle.RunID}
	if desc.Async {
		o.pollTransition(PollSubmitted)
		o.transition(StateWaiting)

		final, polls, err := o.waitForResults(ctx, handle)
		result.Polls = polls
		if err != nil {
			o.pollTransition(PollFailed)
			return nil, err
		}
		result.Results = final
	} else {
		result.Results = handle.Results
	}

	o.transition(StateAggregating)
	counts := result.Results.Counts()
	o.log.Info("Test run finished", "run_id", result.RunID,
		"total", counts.Total, "passed", counts.Passed, "failed", counts.Failed, "skipped", counts.Skipped)

	warnings, err := o.pipeline.Process(ctx, result.Results, o.transport)
	if err != nil {
		return nil, fmt.Errorf("failed to write reports: %w", err)
	}
	result.Warnings = warnings
	return result, nil
}

// waitForResults polls until the server reports a final answer. Partial
// answers replace what was seen before; an unchanged count just means no
// test finished since the last poll.
func (o *Orchestrator) waitForResults(ctx context.Context, handle *transport.SubmissionHandle) (types.ResultSet, int, error) {
	polls := 0
	for {
		pollStart := time.Now()
		resp, err := o.transport.PollOnce(ctx, handle, o.pollInterval)
		polls++
		if err != nil {
			return types.ResultSet{}, polls, fmt.Errorf("failed to get test results: %w", err)
		}
		metrics.RecordPoll(resp.Kind())

		if resp.IsFinal() {
			o.pollTransition(PollComplete)
			return resp.Results(), polls, nil
		}

		o.pollTransition(PollInProgress)
		progress := reporting.SymbolLine(resp.Results(), false)
		o.log.Info("Waiting for remote tests to finish", "completed", resp.Results().Len(), "progress", progress)
		if o.progress != nil {
			fmt.Fprintln(o.progress, progress)
		}

		if err := sleepCtx(ctx, o.pollInterval-time.Since(pollStart)); err != nil {
			return types.ResultSet{}, polls, fmt.Errorf("stopped waiting for test results: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
