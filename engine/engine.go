// Package engine runs the tests of a run plan and reports their outcomes.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

// Plan is a validated run descriptor resolved against the server defaults
type Plan struct {
	RunID      string
	Engine     string
	Selector   types.Selector
	Includes   []string
	Properties map[string]string
}

// Engine executes a plan. emit is called once per finished test, in
// completion order, from the goroutine that called Run.
type Engine interface {
	Name() string
	Run(ctx context.Context, plan Plan, emit func(types.TestOutcome)) error
}

// Func adapts a function to the Engine interface
type Func struct {
	EngineName string
	RunFunc    func(ctx context.Context, plan Plan, emit func(types.TestOutcome)) error
}

func (f Func) Name() string { return f.EngineName }

func (f Func) Run(ctx context.Context, plan Plan, emit func(types.TestOutcome)) error {
	if f.RunFunc == nil {
		return fmt.Errorf("engine %s has no run function", f.EngineName)
	}
	return f.RunFunc(ctx, plan, emit)
}

// ClassPattern builds a go test -run expression matching exactly the given
// top-level test names
func ClassPattern(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	return anchored(quoted)
}

// IncludePattern builds a go test -run expression from glob style include
// patterns, where * matches any run of characters and ? a single one
func IncludePattern(globs []string) string {
	exprs := make([]string, 0, len(globs))
	for _, g := range globs {
		expr := regexp.QuoteMeta(g)
		expr = strings.ReplaceAll(expr, `\*`, ".*")
		expr = strings.ReplaceAll(expr, `\?`, ".")
		exprs = append(exprs, expr)
	}
	return anchored(exprs)
}

func anchored(alternatives []string) string {
	if len(alternatives) == 0 {
		return ""
	}
	return "^(" + strings.Join(alternatives, "|") + ")$"
}
