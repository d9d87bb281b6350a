package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/orchestrator"
	"github.com/ethereum-optimism/infra/op-remote/reporting"
	"github.com/ethereum-optimism/infra/op-remote/transport"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Client implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Client)(nil)

// Client runs one remote test run and exits.
type Client struct {
	config       *ClientConfig
	orchestrator *orchestrator.Orchestrator
	pipeline     *reporting.Pipeline
	result       *orchestrator.Result

	running          atomic.Bool
	shutdownCallback func(error)
}

// NewClient wires the transport, the report pipeline and the orchestrator
func NewClient(config *ClientConfig, out io.Writer, shutdownCallback func(error)) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	c := &Client{config: config, shutdownCallback: shutdownCallback}
	if config.Skip {
		return c, nil
	}

	tr, err := transport.New(transport.Config{
		ServerURL:    config.ServerURL,
		HTTPClient:   &http.Client{Timeout: config.RequestTimeout},
		FetchRetries: uint64(config.FetchRetries),
		Log:          config.Log.New("component", "transport"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	pipeline, err := reporting.NewPipeline(reporting.Config{
		OutputDir:       config.OutputDir,
		Directory:       config.ReportDir,
		HTMLEnabled:     config.HTMLReport,
		SummaryFileName: config.SummaryFile,
		SaveReportFiles: config.SaveReportFiles,
		ConsoleWriter:   out,
		Color:           config.Color,
		Log:             config.Log.New("component", "reporting"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create report pipeline: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Transport:         tr,
		Pipeline:          pipeline,
		PollInterval:      config.PollingInterval,
		DefaultProperties: config.DefaultProperties,
		Progress:          out,
		Log:               config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	c.orchestrator = orch
	c.pipeline = pipeline
	return c, nil
}

// Start runs the remote tests and asks the application to shut down once
// the reports are written.
// Start implements the cliapp.Lifecycle interface.
func (c *Client) Start(ctx context.Context) error {
	c.running.Store(true)

	if c.config.Skip {
		c.config.Log.Info("Skipping remote test run")
		go c.shutdownCallback(nil)
		return nil
	}

	c.config.Log.Info("Starting remote test run", "server", c.config.ServerURL, "async", c.config.Descriptor.Async)
	result, err := c.orchestrator.Start(ctx, c.config.Descriptor)
	if err != nil {
		c.config.Log.Error("Remote test run failed", "state", c.orchestrator.State(), "err", err)
		return NewRuntimeError(err)
	}
	c.result = result

	for _, w := range result.Warnings {
		c.config.Log.Warn("Report file not saved", "warning", w)
	}

	counts := result.Results.Counts()
	c.config.Log.Info("Remote test run completed", "run_id", result.RunID, "status", result.Results.Status(),
		"reports", c.pipeline.ReportDir(), "duration", result.Duration)
	if counts.Failed > 0 && c.config.FailOnFailure {
		c.config.Log.Warn("Remote test run completed with failures, returning exit code 1")
		return NewTestFailureError(counts.Failed, counts.Total)
	}

	go c.shutdownCallback(nil)
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (c *Client) Stop(ctx context.Context) error {
	c.running.Store(false)
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (c *Client) Stopped() bool {
	return !c.running.Load()
}

// Result returns the finished run, nil before Start succeeded
func (c *Client) Result() *orchestrator.Result {
	return c.result
}
