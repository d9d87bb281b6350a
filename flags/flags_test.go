package flags

import (
	"strings"
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

var flagSets = map[string][]cli.Flag{
	"client": nil,
	"server": nil,
}

func init() {
	flagSets["client"] = ClientFlags
	flagSets["server"] = ServerFlags
}

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range append(append([]cli.Flag{}, optionalClientFlags...), optionalServerFlags...) {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names of a command are unique, to avoid accidental conflicts.
func TestUniqueFlags(t *testing.T) {
	for set, flags := range flagSets {
		seenCLI := make(map[string]struct{})
		for _, flag := range flags {
			name := flag.Names()[0]
			if _, ok := seenCLI[name]; ok {
				t.Errorf("duplicate %s flag %s", set, name)
				continue
			}
			seenCLI[name] = struct{}{}
		}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for set, flags := range flagSets {
		for _, flag := range flags {
			flagName := flag.Names()[0]

			t.Run(set+"/"+flagName, func(t *testing.T) {
				envFlagGetter, ok := flag.(interface {
					GetEnvVars() []string
				})
				require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
				envFlags := envFlagGetter.GetEnvVars()
				require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")

				expectedEnvVar := opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix)
				require.Equal(t, expectedEnvVar, envFlags[0])
				require.True(t, strings.HasPrefix(envFlags[0], EnvVarPrefix+"_"))
			})
		}
	}
}

func runApp(t *testing.T, flags []cli.Flag, check func(*cli.Context) error, args ...string) error {
	t.Helper()
	app := &cli.App{
		Flags:  flags,
		Action: check,
	}
	return app.Run(append([]string{"app"}, args...))
}

func TestCheckClientRequired(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "server url set", args: []string{"--server-url", "http://localhost:8545"}},
		{name: "server url missing", wantErr: "server-url"},
		{name: "skip needs nothing", args: []string{"--skip"}},
		{
			name:    "both selectors",
			args:    []string{"--server-url", "http://localhost:8545", "--packages", "./a", "--classes", "a.TestA"},
			wantErr: "cannot be combined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runApp(t, ClientFlags, CheckClientRequired, tt.args...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckServerRequired(t *testing.T) {
	assert.NoError(t, runApp(t, ServerFlags, CheckServerRequired, "--testdir", "."))
	assert.NoError(t, runApp(t, ServerFlags, CheckServerRequired, "--engines", "engines.yaml"))

	err := runApp(t, ServerFlags, CheckServerRequired)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testdir")
}

func TestClientFlagDefaults(t *testing.T) {
	err := runApp(t, ClientFlags, func(ctx *cli.Context) error {
		assert.Equal(t, "build", ctx.String(OutputDir.Name))
		assert.True(t, ctx.Bool(HTMLReport.Name))
		assert.True(t, ctx.Bool(FailOnFailure.Name))
		assert.False(t, ctx.Bool(Async.Name))
		assert.Equal(t, "10s", ctx.Duration(PollingInterval.Name).String())
		assert.Equal(t, []string{"a=b", "c=d"}, ctx.StringSlice(Property.Name))
		return nil
	}, "--property", "a=b", "--property", "c=d")
	assert.NoError(t, err)
}
