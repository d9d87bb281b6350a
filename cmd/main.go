package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	remote "github.com/ethereum-optimism/infra/op-remote"
	"github.com/ethereum-optimism/infra/op-remote/exitcodes"
	"github.com/ethereum-optimism/infra/op-remote/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-remote"
	app.Usage = "Remote test run orchestration"
	app.Description = "op-remote runs test suites on a remote test server and collects the reports locally"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Submit a test run to a remote server and write the reports",
			Flags:  cliapp.ProtectFlags(flags.ClientFlags),
			Action: cliapp.LifecycleCmd(runClient),
		},
		{
			Name:   "serve",
			Usage:  "Execute test runs submitted by remote clients",
			Flags:  cliapp.ProtectFlags(flags.ServerFlags),
			Action: cliapp.LifecycleCmd(runServer),
		},
	}
	app.ExitErrHandler = handleExitErr
	return app
}

func handleExitErr(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
		return
	}
	if err != nil {
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
}

// exitCode maps an application error to the process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case remote.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case remote.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		// Unclassified errors are configuration problems caught before a run starts
		return exitcodes.RuntimeErr
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func runClient(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := remote.NewClientConfig(ctx, logger)
	if err != nil {
		return nil, remote.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	client, err := remote.NewClient(cfg, ctx.App.Writer, closeApp)
	if err != nil {
		return nil, remote.NewRuntimeError(fmt.Errorf("failed to create client: %w", err))
	}
	return client, nil
}

func runServer(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := remote.NewServerConfig(ctx, logger)
	if err != nil {
		return nil, remote.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	server, err := remote.NewServer(cfg, Version)
	if err != nil {
		return nil, remote.NewRuntimeError(fmt.Errorf("failed to create server: %w", err))
	}
	return server, nil
}
