package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-remote/reporting"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

const EnvVarPrefix = "OP_REMOTE"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

// Client flags
var (
	ServerURL = &cli.StringFlag{
		Name:    "server-url",
		EnvVars: prefixEnvVars("SERVER_URL"),
		Usage:   "Base URL of the test execution server (eg. 'http://tests.internal:8545')",
	}
	Engine = &cli.StringFlag{
		Name:    "engine",
		EnvVars: prefixEnvVars("ENGINE"),
		Usage:   "Engine the server should run the tests with. Empty uses the server default",
	}
	Packages = &cli.StringSliceFlag{
		Name:    "packages",
		EnvVars: prefixEnvVars("PACKAGES"),
		Usage:   "Packages to run. Cannot be combined with --classes",
	}
	Classes = &cli.StringSliceFlag{
		Name:    "classes",
		EnvVars: prefixEnvVars("CLASSES"),
		Usage:   "Tests to run, as <package>.<TestName>. Cannot be combined with --packages",
	}
	Includes = &cli.StringSliceFlag{
		Name:    "includes",
		EnvVars: prefixEnvVars("INCLUDES"),
		Usage:   "Test name patterns to include (eg. 'TestSmoke*')",
	}
	Property = &cli.StringSliceFlag{
		Name:    "property",
		EnvVars: prefixEnvVars("PROPERTY"),
		Usage:   "Property passed to the engine, as key=value. Can be repeated",
	}
	PropertiesFile = &cli.StringFlag{
		Name:    "properties-file",
		EnvVars: prefixEnvVars("PROPERTIES_FILE"),
		Usage:   "Path to a .env file with properties passed to the engine",
	}
	Async = &cli.BoolFlag{
		Name:    "async",
		Value:   false,
		EnvVars: prefixEnvVars("ASYNC"),
		Usage:   "Submit the run asynchronously and poll for results",
	}
	PollingInterval = &cli.DurationFlag{
		Name:    "polling-interval",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVars("POLLING_INTERVAL"),
		Usage:   "Time between two result polls in async mode, also sent to the server as the poll timeout",
	}
	RequestTimeout = &cli.DurationFlag{
		Name:    "request-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("REQUEST_TIMEOUT"),
		Usage:   "Timeout of a single HTTP request to the server. 0 means no timeout",
	}
	FetchRetries = &cli.IntFlag{
		Name:    "fetch-retries",
		Value:   3,
		EnvVars: prefixEnvVars("FETCH_RETRIES"),
		Usage:   "Number of retries for report file downloads that fail to connect",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "build",
		EnvVars: prefixEnvVars("OUTPUT_DIR"),
		Usage:   "Directory reports are written under",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   reporting.DefaultDirectory,
		EnvVars: prefixEnvVars("REPORT_DIR"),
		Usage:   "Report directory, relative to the output directory",
	}
	SummaryFile = &cli.StringFlag{
		Name:    "summary-file",
		Value:   reporting.DefaultSummaryFileName,
		EnvVars: prefixEnvVars("SUMMARY_FILE"),
		Usage:   "Name of the summary report. The extension (.xml, .json, .yaml) selects the format",
	}
	HTMLReport = &cli.BoolFlag{
		Name:    "html",
		Value:   true,
		EnvVars: prefixEnvVars("HTML"),
		Usage:   "Write an HTML report",
	}
	SaveReportFiles = &cli.BoolFlag{
		Name:    "save-report-files",
		Value:   true,
		EnvVars: prefixEnvVars("SAVE_REPORT_FILES"),
		Usage:   "Download the JUnit reports held by the server",
	}
	FailOnFailure = &cli.BoolFlag{
		Name:    "fail-on-failure",
		Value:   true,
		EnvVars: prefixEnvVars("FAIL_ON_FAILURE"),
		Usage:   "Exit with code 1 when any remote test failed",
	}
	Skip = &cli.BoolFlag{
		Name:    "skip",
		Value:   false,
		EnvVars: prefixEnvVars("SKIP"),
		Usage:   "Do nothing. Useful to switch remote runs off in CI",
	}
	Color = &cli.BoolFlag{
		Name:    "color",
		Value:   false,
		EnvVars: prefixEnvVars("COLOR"),
		Usage:   "Colour the console summary",
	}
)

// Server flags
var (
	EnginesConfig = &cli.StringFlag{
		Name:    "engines",
		EnvVars: prefixEnvVars("ENGINES"),
		Usage:   "Path to the engines file (eg. 'engines.yaml')",
	}
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		EnvVars: prefixEnvVars("TESTDIR"),
		Usage:   "Go module directory the default engine runs tests in, when no engines file is given",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: prefixEnvVars("GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("DEFAULT_TIMEOUT"),
		Usage:   "go test timeout of engines that do not set one. 0 uses the go default",
	}
	DefaultIncludes = &cli.StringSliceFlag{
		Name:    "default-includes",
		EnvVars: prefixEnvVars("DEFAULT_INCLUDES"),
		Usage:   "Include patterns used by runs that set none",
	}
	DefaultProperty = &cli.StringSliceFlag{
		Name:    "default-property",
		EnvVars: prefixEnvVars("DEFAULT_PROPERTY"),
		Usage:   "Property applied to every run unless the run sets it, as key=value",
	}
	DefaultPropertiesFile = &cli.StringFlag{
		Name:    "default-properties-file",
		EnvVars: prefixEnvVars("DEFAULT_PROPERTIES_FILE"),
		Usage:   "Path to a .env file with properties applied to every run",
	}
	ArtifactDir = &cli.StringFlag{
		Name:    "artifact-dir",
		Value:   "",
		EnvVars: prefixEnvVars("ARTIFACT_DIR"),
		Usage:   "Directory the JUnit reports of the last run are kept in. Defaults to a temporary directory",
	}
	MaxPollHold = &cli.DurationFlag{
		Name:    "max-poll-hold",
		Value:   60 * time.Second,
		EnvVars: prefixEnvVars("MAX_POLL_HOLD"),
		Usage:   "Longest time a results query waits for the run to finish",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: prefixEnvVars("HEALTHZ_ADDR"),
		Usage:   "Address of a standalone health endpoint (eg. '0.0.0.0:8080'). The API always serves /healthz",
	}
)

var requiredClientFlags = []cli.Flag{
	ServerURL,
}

var optionalClientFlags = []cli.Flag{
	Engine,
	Packages,
	Classes,
	Includes,
	Property,
	PropertiesFile,
	Async,
	PollingInterval,
	RequestTimeout,
	FetchRetries,
	OutputDir,
	ReportDir,
	SummaryFile,
	HTMLReport,
	SaveReportFiles,
	FailOnFailure,
	Skip,
	Color,
}

var requiredServerFlags = []cli.Flag{}

var optionalServerFlags = []cli.Flag{
	EnginesConfig,
	TestDir,
	GoBinary,
	DefaultTimeout,
	DefaultIncludes,
	DefaultProperty,
	DefaultPropertiesFile,
	ArtifactDir,
	MaxPollHold,
	HealthzAddr,
}

var (
	ClientFlags []cli.Flag
	ServerFlags []cli.Flag
)

func init() {
	optionalClientFlags = append(optionalClientFlags, oplog.CLIFlags(EnvVarPrefix)...)
	ClientFlags = append(requiredClientFlags, optionalClientFlags...)

	optionalServerFlags = append(optionalServerFlags, oprpc.CLIFlags(EnvVarPrefix)...)
	optionalServerFlags = append(optionalServerFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalServerFlags = append(optionalServerFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	ServerFlags = append(requiredServerFlags, optionalServerFlags...)
}

func checkRequired(ctx *cli.Context, required []cli.Flag) error {
	for _, f := range required {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

// CheckClientRequired checks the flags the run command cannot do without
func CheckClientRequired(ctx *cli.Context) error {
	if ctx.Bool(Skip.Name) {
		return nil
	}
	if err := checkRequired(ctx, requiredClientFlags); err != nil {
		return err
	}
	if len(ctx.StringSlice(Packages.Name)) > 0 && len(ctx.StringSlice(Classes.Name)) > 0 {
		return fmt.Errorf("flags %s and %s cannot be combined", Packages.Name, Classes.Name)
	}
	return nil
}

// CheckServerRequired checks the flags the serve command cannot do without
func CheckServerRequired(ctx *cli.Context) error {
	if err := checkRequired(ctx, requiredServerFlags); err != nil {
		return err
	}
	if ctx.String(EnginesConfig.Name) == "" && ctx.String(TestDir.Name) == "" {
		return fmt.Errorf("one of %s or %s is required", EnginesConfig.Name, TestDir.Name)
	}
	return nil
}
