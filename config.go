package remote

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-remote/flags"
	"github.com/ethereum-optimism/infra/op-remote/types"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

// ClientConfig holds the configuration of the run command
type ClientConfig struct {
	ServerURL         string
	Descriptor        types.RunDescriptor
	DefaultProperties map[string]string // Sent with every run, descriptor properties win
	PollingInterval   time.Duration
	RequestTimeout    time.Duration
	FetchRetries      int
	OutputDir         string
	ReportDir         string
	SummaryFile       string
	HTMLReport        bool
	SaveReportFiles   bool
	FailOnFailure     bool
	Skip              bool // Do nothing, report success
	Color             bool
	Log               log.Logger
}

// NewClientConfig creates a ClientConfig from cli context
func NewClientConfig(ctx *cli.Context, log log.Logger) (*ClientConfig, error) {
	if err := flags.CheckClientRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	cfg := &ClientConfig{
		ServerURL:       ctx.String(flags.ServerURL.Name),
		PollingInterval: ctx.Duration(flags.PollingInterval.Name),
		RequestTimeout:  ctx.Duration(flags.RequestTimeout.Name),
		FetchRetries:    ctx.Int(flags.FetchRetries.Name),
		ReportDir:       ctx.String(flags.ReportDir.Name),
		SummaryFile:     ctx.String(flags.SummaryFile.Name),
		HTMLReport:      ctx.Bool(flags.HTMLReport.Name),
		SaveReportFiles: ctx.Bool(flags.SaveReportFiles.Name),
		FailOnFailure:   ctx.Bool(flags.FailOnFailure.Name),
		Skip:            ctx.Bool(flags.Skip.Name),
		Color:           ctx.Bool(flags.Color.Name),
		Log:             log,
	}
	if cfg.Skip {
		return cfg, nil
	}

	if cfg.PollingInterval <= 0 {
		return nil, fmt.Errorf("polling interval must be positive, got %s", cfg.PollingInterval)
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("fetch retries cannot be negative, got %d", cfg.FetchRetries)
	}

	outputDir, err := filepath.Abs(ctx.String(flags.OutputDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", ctx.String(flags.OutputDir.Name), err)
	}
	cfg.OutputDir = outputDir

	if file := ctx.String(flags.PropertiesFile.Name); file != "" {
		if cfg.DefaultProperties, err = LoadPropertiesFile(file); err != nil {
			return nil, err
		}
	}
	props, err := ParseProperties(ctx.StringSlice(flags.Property.Name))
	if err != nil {
		return nil, err
	}

	cfg.Descriptor = types.RunDescriptor{
		Engine:     ctx.String(flags.Engine.Name),
		Classes:    ctx.StringSlice(flags.Classes.Name),
		Packages:   ctx.StringSlice(flags.Packages.Name),
		Includes:   ctx.StringSlice(flags.Includes.Name),
		Properties: props,
		Async:      ctx.Bool(flags.Async.Name),
	}
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig holds the configuration of the serve command
type ServerConfig struct {
	ListenAddr        string
	EnginesConfig     string
	TestDir           string
	GoBinary          string
	DefaultTimeout    time.Duration
	DefaultIncludes   []string
	DefaultProperties map[string]string
	ArtifactDir       string
	MaxPollHold       time.Duration
	HealthzAddr       string
	MetricsAddr       string // Empty when metrics are disabled
	Log               log.Logger
}

// NewServerConfig creates a ServerConfig from cli context
func NewServerConfig(ctx *cli.Context, log log.Logger) (*ServerConfig, error) {
	if err := flags.CheckServerRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	rpcCfg := oprpc.ReadCLIConfig(ctx)
	if err := rpcCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid listen config: %w", err)
	}

	cfg := &ServerConfig{
		ListenAddr:      net.JoinHostPort(rpcCfg.ListenAddr, strconv.Itoa(rpcCfg.ListenPort)),
		GoBinary:        ctx.String(flags.GoBinary.Name),
		DefaultTimeout:  ctx.Duration(flags.DefaultTimeout.Name),
		DefaultIncludes: ctx.StringSlice(flags.DefaultIncludes.Name),
		MaxPollHold:     ctx.Duration(flags.MaxPollHold.Name),
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		Log:             log,
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if metricsCfg.Enabled {
		if err := metricsCfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid metrics config: %w", err)
		}
		cfg.MetricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}

	if cfg.MaxPollHold <= 0 {
		return nil, errors.New("max poll hold must be positive")
	}

	var err error
	if p := ctx.String(flags.EnginesConfig.Name); p != "" {
		if cfg.EnginesConfig, err = filepath.Abs(p); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for engines file '%s': %w", p, err)
		}
	}
	if p := ctx.String(flags.TestDir.Name); p != "" {
		if cfg.TestDir, err = filepath.Abs(p); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", p, err)
		}
	}
	if p := ctx.String(flags.ArtifactDir.Name); p != "" {
		if cfg.ArtifactDir, err = filepath.Abs(p); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for artifact directory '%s': %w", p, err)
		}
	}

	cfg.DefaultProperties, err = resolveProperties(ctx.String(flags.DefaultPropertiesFile.Name), ctx.StringSlice(flags.DefaultProperty.Name))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
