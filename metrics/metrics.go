package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-remote/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "op_remote"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of finished remote test runs",
	}, []string{
		"side",
		"mode",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Number of tests of a run by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of a run",
	}, []string{
		"run_id",
	})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "polls_total",
		Help:      "Count of result polls by answer kind",
	}, []string{
		"kind",
	})

	artifactWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "artifact_warnings_total",
		Help:      "Count of report files that could not be fetched or written",
	})

	testOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_outcomes_total",
		Help:      "Count of test outcomes produced by the engines",
	}, []string{
		"engine",
		"result",
	})

	runInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_in_progress",
		Help:      "1 while the server executes a test run",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRun records a finished run. side is "client" or "server"
func RecordRun(side string, runID string, mode string, counts types.Counts, status types.TestStatus, duration time.Duration) {
	if !status.IsValid() {
		log.Error("RecordRun - invalid result", "result", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "runs_total",
			"side", side,
			"run_id", runID,
			"mode", mode,
			"result", status)
	}
	runsTotal.WithLabelValues(side, mode, string(status)).Inc()
	runTests.WithLabelValues(runID, "total").Set(float64(counts.Total))
	runTests.WithLabelValues(runID, string(types.TestStatusSuccess)).Set(float64(counts.Passed))
	runTests.WithLabelValues(runID, string(types.TestStatusFailure)).Set(float64(counts.Failed))
	runTests.WithLabelValues(runID, string(types.TestStatusSkipped)).Set(float64(counts.Skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func RecordPoll(kind types.PollKind) {
	pollsTotal.WithLabelValues(kind.String()).Inc()
}

func RecordArtifactWarnings(n int) {
	if n <= 0 {
		return
	}
	artifactWarningsTotal.Add(float64(n))
}

func RecordTestOutcome(engine string, outcome types.TestOutcome) {
	if !outcome.Status.IsValid() {
		log.Error("RecordTestOutcome - invalid result", "result", outcome.Status)
		return
	}
	testOutcomesTotal.WithLabelValues(engine, string(outcome.Status)).Inc()
}

func SetRunInProgress(running bool) {
	if running {
		runInProgress.Set(1)
		return
	}
	runInProgress.Set(0)
}
