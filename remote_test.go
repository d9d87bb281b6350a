package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-remote/engine"
	"github.com/ethereum-optimism/infra/op-remote/flags"
	"github.com/ethereum-optimism/infra/op-remote/reporting"
	"github.com/ethereum-optimism/infra/op-remote/transport"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestErrorTypes(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("connection refused"))
	wrapped := fmt.Errorf("client: %w", runtimeErr)
	assert.True(t, IsRuntimeError(wrapped))
	assert.False(t, IsTestFailureError(wrapped))
	assert.Equal(t, "runtime error: connection refused", runtimeErr.Error())

	failure := NewTestFailureError(2, 5)
	assert.True(t, IsTestFailureError(fmt.Errorf("run: %w", failure)))
	assert.False(t, IsRuntimeError(failure))
	assert.Equal(t, "test failure: 2 of 5 remote tests failed", failure.Error())

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties([]string{"env=staging", "url=http://x?a=b", "env=prod", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "prod", "url": "http://x?a=b", "empty": ""}, props)

	_, err = ParseProperties([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseProperties([]string{"=value"})
	assert.Error(t, err)
}

func TestResolveProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.env")
	require.NoError(t, os.WriteFile(path, []byte("# smoke targets\nENV=staging\nREGION=\"eu-west\"\n"), 0644))

	props, err := resolveProperties(path, []string{"ENV=prod"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ENV": "prod", "REGION": "eu-west"}, props)

	_, err = resolveProperties(filepath.Join(t.TempDir(), "missing.env"), nil)
	assert.Error(t, err)
}

func runWithFlags(t *testing.T, fl []cli.Flag, action func(*cli.Context) error, args ...string) error {
	t.Helper()
	app := &cli.App{Flags: fl, Action: action}
	return app.Run(append([]string{"op-remote"}, args...))
}

func TestNewClientConfig(t *testing.T) {
	propsFile := filepath.Join(t.TempDir(), "smoke.env")
	require.NoError(t, os.WriteFile(propsFile, []byte("env=default\nregion=eu\n"), 0644))

	var cfg *ClientConfig
	err := runWithFlags(t, flags.ClientFlags, func(ctx *cli.Context) error {
		var err error
		cfg, err = NewClientConfig(ctx, discardLogger())
		return err
	},
		"--server-url", "http://tests.internal:8545",
		"--packages", "example.com/smoke",
		"--property", "env=staging",
		"--properties-file", propsFile,
		"--async",
		"--polling-interval", "2s",
		"--output-dir", t.TempDir(),
	)
	require.NoError(t, err)

	assert.Equal(t, "http://tests.internal:8545", cfg.ServerURL)
	assert.True(t, cfg.Descriptor.Async)
	assert.Equal(t, []string{"example.com/smoke"}, cfg.Descriptor.Packages)
	assert.Equal(t, map[string]string{"env": "staging"}, cfg.Descriptor.Properties)
	assert.Equal(t, map[string]string{"env": "default", "region": "eu"}, cfg.DefaultProperties)
	assert.Equal(t, 2*time.Second, cfg.PollingInterval)
	assert.Equal(t, reporting.DefaultDirectory, cfg.ReportDir)
	assert.True(t, filepath.IsAbs(cfg.OutputDir))
}

func TestNewClientConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing server", args: nil},
		{name: "bad property", args: []string{"--server-url", "http://x", "--property", "oops"}},
		{name: "blank class", args: []string{"--server-url", "http://x", "--classes", " "}},
		{name: "zero interval", args: []string{"--server-url", "http://x", "--polling-interval", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWithFlags(t, flags.ClientFlags, func(ctx *cli.Context) error {
				_, err := NewClientConfig(ctx, discardLogger())
				return err
			}, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestNewServerConfig(t *testing.T) {
	dir := t.TempDir()
	var cfg *ServerConfig
	err := runWithFlags(t, flags.ServerFlags, func(ctx *cli.Context) error {
		var err error
		cfg, err = NewServerConfig(ctx, discardLogger())
		return err
	},
		"--testdir", dir,
		"--rpc.addr", "127.0.0.1",
		"--rpc.port", "0",
		"--default-property", "env=ci",
		"--default-includes", "TestSmoke*",
		"--max-poll-hold", "30s",
	)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr)
	assert.Equal(t, dir, cfg.TestDir)
	assert.Equal(t, map[string]string{"env": "ci"}, cfg.DefaultProperties)
	assert.Equal(t, []string{"TestSmoke*"}, cfg.DefaultIncludes)
	assert.Equal(t, 30*time.Second, cfg.MaxPollHold)
	assert.Empty(t, cfg.MetricsAddr)
}

func startServer(t *testing.T, run func(ctx context.Context, plan engine.Plan, emit func(types.TestOutcome)) error) *Server {
	t.Helper()
	srv, err := NewServer(&ServerConfig{
		ListenAddr:  "127.0.0.1:0",
		TestDir:     t.TempDir(),
		MaxPollHold: time.Second,
		Log:         discardLogger(),
	}, "test")
	require.NoError(t, err)
	srv.Registry().Register(engine.Func{EngineName: "fake", RunFunc: run})

	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(context.Background()))
		assert.True(t, srv.Stopped())
	})
	return srv
}

func mixedRun(ctx context.Context, plan engine.Plan, emit func(types.TestOutcome)) error {
	emit(types.NewTestOutcome("example.com/smoke.TestLogin", types.TestStatusSuccess, "", 10*time.Millisecond))
	emit(types.NewTestOutcome("example.com/smoke.TestCheckout", types.TestStatusFailure, "timeout", 20*time.Millisecond))
	return nil
}

func clientConfig(t *testing.T, srv *Server, async bool) *ClientConfig {
	return &ClientConfig{
		ServerURL:       "http://" + srv.Addr(),
		Descriptor:      types.RunDescriptor{Engine: "fake", Async: async},
		PollingInterval: 10 * time.Millisecond,
		FetchRetries:    transport.DefaultFetchRetries,
		OutputDir:       t.TempDir(),
		HTMLReport:      true,
		SaveReportFiles: true,
		FailOnFailure:   true,
		Log:             discardLogger(),
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	srv := startServer(t, mixedRun)

	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async=%v", async), func(t *testing.T) {
			cfg := clientConfig(t, srv, async)
			var out bytes.Buffer
			client, err := NewClient(cfg, &out, nil)
			require.NoError(t, err)

			err = client.Start(context.Background())
			require.Error(t, err)
			assert.True(t, IsTestFailureError(err))

			result := client.Result()
			require.NotNil(t, result)
			assert.Equal(t, types.Counts{Total: 2, Passed: 1, Failed: 1}, result.Results.Counts())
			assert.Contains(t, out.String(), "+-")

			junitDir := filepath.Join(cfg.OutputDir, reporting.DefaultDirectory, reporting.JUnitReportsDir)
			_, err = os.Stat(filepath.Join(junitDir, "example.com_smoke.TestCheckout.xml"))
			assert.NoError(t, err)
		})
	}
}

func TestClientSendsDefaultProperties(t *testing.T) {
	plans := make(chan engine.Plan, 1)
	srv := startServer(t, func(ctx context.Context, plan engine.Plan, emit func(types.TestOutcome)) error {
		plans <- plan
		emit(types.NewTestOutcome("example.com/smoke.TestLogin", types.TestStatusSuccess, "", time.Millisecond))
		return nil
	})
	cfg := clientConfig(t, srv, false)
	cfg.DefaultProperties = map[string]string{"env": "default", "region": "eu"}
	cfg.Descriptor.Properties = map[string]string{"env": "staging"}

	client, err := NewClient(cfg, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))

	plan := <-plans
	assert.Equal(t, map[string]string{"env": "staging", "region": "eu"}, plan.Properties)
}

func TestClientIgnoresFailuresWhenAsked(t *testing.T) {
	srv := startServer(t, mixedRun)
	cfg := clientConfig(t, srv, true)
	cfg.FailOnFailure = false

	done := make(chan error, 1)
	client, err := NewClient(cfg, &bytes.Buffer{}, func(err error) { done <- err })
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback not called")
	}
	require.NoError(t, client.Stop(context.Background()))
	assert.True(t, client.Stopped())
}

func TestClientSkip(t *testing.T) {
	done := make(chan error, 1)
	client, err := NewClient(&ClientConfig{Skip: true, Log: discardLogger()}, &bytes.Buffer{}, func(err error) { done <- err })
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	assert.Nil(t, client.Result())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback not called")
	}
}

func TestClientRuntimeError(t *testing.T) {
	srv := startServer(t, func(ctx context.Context, plan engine.Plan, emit func(types.TestOutcome)) error {
		return errors.New("go: cannot find main module")
	})
	cfg := clientConfig(t, srv, false)

	client, err := NewClient(cfg, &bytes.Buffer{}, nil)
	require.NoError(t, err)

	err = client.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.Contains(t, err.Error(), "cannot find main module")

	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, reporting.DefaultDirectory))
	assert.True(t, os.IsNotExist(statErr), "no reports are written for a failed run")
}
