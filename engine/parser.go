package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

// test2json actions
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPause       = "pause"
	ActionCont        = "cont"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time       time.Time
	Action     string
	Package    string
	ImportPath string
	Test       string
	Elapsed    float64
	Output     string
}

// eventParser turns a stream of test2json events into outcomes. Every
// finished test and subtest produces one outcome; a package that fails
// without any failing test produces one outcome named after the package.
type eventParser struct {
	emit        func(types.TestOutcome)
	output      map[string]*strings.Builder
	failedTests map[string]bool
	emitted     int
}

func newEventParser(emit func(types.TestOutcome)) *eventParser {
	return &eventParser{
		emit:        emit,
		output:      make(map[string]*strings.Builder),
		failedTests: make(map[string]bool),
	}
}

// Feed processes one line of go test -json output. Lines that are not JSON
// events are ignored.
func (p *eventParser) Feed(line []byte) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return
	}
	pkg := event.Package
	if pkg == "" {
		pkg = event.ImportPath
	}

	switch event.Action {
	case ActionOutput, ActionBuildOutput:
		p.appendOutput(pkg, event.Test, event.Output)
	case ActionPass, ActionFail, ActionSkip:
		if event.Test != "" {
			p.finishTest(pkg, event)
			return
		}
		if event.Action == ActionFail && !p.failedTests[pkg] {
			p.finishPackage(pkg, event)
		}
		p.forget(pkg, "")
	}
}

// Emitted returns the number of outcomes produced so far
func (p *eventParser) Emitted() int {
	return p.emitted
}

func (p *eventParser) finishTest(pkg string, event TestEvent) {
	status := types.TestStatusSuccess
	var msg string
	switch event.Action {
	case ActionFail:
		status = types.TestStatusFailure
		p.failedTests[pkg] = true
		msg = p.message(pkg, event.Test)
		if msg == "" {
			msg = "test failed"
		}
	case ActionSkip:
		status = types.TestStatusSkipped
	}

	p.forget(pkg, event.Test)
	p.emit(types.NewTestOutcome(types.QualifiedTestName(pkg, event.Test), status, msg, elapsed(event.Elapsed)))
	p.emitted++
}

func (p *eventParser) finishPackage(pkg string, event TestEvent) {
	msg := p.message(pkg, "")
	if msg == "" {
		msg = "package failed"
	}
	p.emit(types.NewTestOutcome(pkg, types.TestStatusFailure, msg, elapsed(event.Elapsed)))
	p.emitted++
}

func (p *eventParser) appendOutput(pkg, test, line string) {
	if isFrameworkLine(line) {
		return
	}
	key := outputKey(pkg, test)
	b, ok := p.output[key]
	if !ok {
		b = &strings.Builder{}
		p.output[key] = b
	}
	b.WriteString(stripansi.Strip(line))
}

func (p *eventParser) message(pkg, test string) string {
	b, ok := p.output[outputKey(pkg, test)]
	if !ok {
		return ""
	}
	return strings.TrimSpace(b.String())
}

func (p *eventParser) forget(pkg, test string) {
	delete(p.output, outputKey(pkg, test))
}

func outputKey(pkg, test string) string {
	return pkg + "\x00" + test
}

// isFrameworkLine reports lines go test prints around every test
func isFrameworkLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return trimmed == "PASS" || trimmed == "FAIL"
}

func elapsed(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
