package reporting

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-remote/templates"
	"github.com/ethereum-optimism/infra/op-remote/types"
	"github.com/ethereum-optimism/infra/op-remote/ui"
)

// Symbols used on the progress line, one per outcome
const (
	SymbolSuccess = "+"
	SymbolFailure = "-"
	SymbolSkipped = "x"
)

// Symbol returns the progress symbol of an outcome
func Symbol(o types.TestOutcome) string {
	switch o.Status {
	case types.TestStatusSuccess:
		return SymbolSuccess
	case types.TestStatusFailure:
		return SymbolFailure
	default:
		return SymbolSkipped
	}
}

// SymbolLine renders one symbol per outcome in completion order
func SymbolLine(rs types.ResultSet, colored bool) string {
	green, red, yellow := painters(colored)

	var sb strings.Builder
	for _, o := range rs.Outcomes() {
		switch o.Status {
		case types.TestStatusSuccess:
			sb.WriteString(green(SymbolSuccess))
		case types.TestStatusFailure:
			sb.WriteString(red(SymbolFailure))
		default:
			sb.WriteString(yellow(SymbolSkipped))
		}
	}
	return sb.String()
}

// RenderConsole renders the console report: the symbol line, the aggregate
// table and the failure details. It has no side effects.
func (p *Pipeline) RenderConsole(rs types.ResultSet) string {
	counts := rs.Counts()
	_, red, _ := painters(p.cfg.Color)

	var sb strings.Builder
	sb.WriteString(SymbolLine(rs, p.cfg.Color))
	sb.WriteString("\n")

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Remote Test Results (%s)", templates.FormatDuration(rs.Duration())))
	t.AppendHeader(table.Row{"Tests", "Passed", "Failed", "Skipped", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
	})
	t.AppendRow(table.Row{counts.Total, counts.Passed, counts.Failed, counts.Skipped, statusText(rs.Status())})
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%.1f%%", counts.Percentage(counts.Passed)),
		fmt.Sprintf("%.1f%%", counts.Percentage(counts.Failed)),
		fmt.Sprintf("%.1f%%", counts.Percentage(counts.Skipped)),
		"",
	})

	switch {
	case !p.cfg.Color:
		t.SetStyle(table.StyleLight)
	case rs.Status() == types.TestStatusSuccess:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case rs.Status() == types.TestStatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	if failures := rs.Failures(); len(failures) > 0 {
		sb.WriteString("\nFailed tests:\n")
		sb.WriteString(ui.Render(failureTree(failures, red)))
	}
	return sb.String()
}

// failureTree groups failed outcomes by package, nesting subtests under
// their parents
func failureTree(failures []types.TestOutcome, red func(a ...interface{}) string) []*ui.Node {
	var roots []*ui.Node
	byPkg := make(map[string]*ui.Node)
	leaves := make([]*ui.Node, len(failures))

	for i, f := range failures {
		pkg, test := types.SplitTestName(f.Name)
		if pkg == "" {
			pkg = "(no package)"
		}
		root, ok := byPkg[pkg]
		if !ok {
			root = &ui.Node{Label: pkg}
			byPkg[pkg] = root
			roots = append(roots, root)
		}
		_, path := types.ParseTestNameHierarchy(test)
		node := root
		for _, elem := range path {
			node = node.Child(elem)
		}
		leaves[i] = node
	}

	// Decorate last, Child matches on bare names
	for i, f := range failures {
		leaf := leaves[i]
		if leaf == nil || strings.HasPrefix(leaf.Label, red(SymbolFailure)) {
			continue
		}
		leaf.Label = red(SymbolFailure) + " " + leaf.Label
		if f.ErrorMessage != "" {
			leaf.Label += ": " + f.ErrorMessage
		}
	}
	return roots
}

func statusText(status types.TestStatus) string {
	switch status {
	case types.TestStatusSuccess:
		return "PASS"
	case types.TestStatusFailure:
		return "FAIL"
	case types.TestStatusSkipped:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

func painters(colored bool) (green, red, yellow func(a ...interface{}) string) {
	paint := func(attr color.Attribute) func(a ...interface{}) string {
		c := color.New(attr)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return paint(color.FgGreen), paint(color.FgRed), paint(color.FgYellow)
}
