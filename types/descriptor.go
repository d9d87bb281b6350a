package types

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// SelectorKind identifies which tests a run selects
type SelectorKind int

const (
	// SelectAllKind runs every test the engine can find
	SelectAllKind SelectorKind = iota
	// SelectClassesKind runs an explicit list of tests
	SelectClassesKind
	// SelectPackagesKind runs every test in an explicit list of packages
	SelectPackagesKind
)

func (k SelectorKind) String() string {
	switch k {
	case SelectAllKind:
		return "all"
	case SelectClassesKind:
		return "classes"
	case SelectPackagesKind:
		return "packages"
	default:
		return "unknown"
	}
}

// Selector is the resolved, mutually exclusive test selection of a run
type Selector struct {
	kind  SelectorKind
	names []string
}

// SelectAll selects every test. It is an explicit variant rather than an
// empty package name.
func SelectAll() Selector {
	return Selector{kind: SelectAllKind}
}

// SelectClasses selects the given tests
func SelectClasses(classes ...string) Selector {
	return Selector{kind: SelectClassesKind, names: append([]string(nil), classes...)}
}

// SelectPackages selects all tests of the given packages
func SelectPackages(packages ...string) Selector {
	return Selector{kind: SelectPackagesKind, names: append([]string(nil), packages...)}
}

func (s Selector) Kind() SelectorKind { return s.kind }

// Names returns the selected classes or packages; nil for SelectAll
func (s Selector) Names() []string {
	if s.kind == SelectAllKind {
		return nil
	}
	return append([]string(nil), s.names...)
}

func (s Selector) String() string {
	if s.kind == SelectAllKind {
		return s.kind.String()
	}
	return fmt.Sprintf("%s[%s]", s.kind, strings.Join(s.names, ","))
}

// RunDescriptor describes what a remote test run executes
type RunDescriptor struct {
	Engine     string
	Classes    []string
	Packages   []string
	Includes   []string
	Properties map[string]string

	// Async selects the polling submission style. It is a client side choice
	// and is never sent to the server.
	Async bool
}

// Validate checks the descriptor locally, before anything goes on the wire
func (d RunDescriptor) Validate() error {
	_, err := d.Selector()
	if err != nil {
		return err
	}
	for i, include := range d.Includes {
		if strings.TrimSpace(include) == "" {
			return NewConfigError("include pattern at index %d cannot be empty", i)
		}
	}
	for k := range d.Properties {
		if strings.TrimSpace(k) == "" {
			return NewConfigError("property names cannot be empty")
		}
	}
	return nil
}

// Selector resolves the class and package lists into a single selection.
// Neither list means every test; both lists together is a configuration error.
func (d RunDescriptor) Selector() (Selector, error) {
	hasClasses := len(d.Classes) > 0
	hasPackages := len(d.Packages) > 0

	if hasClasses && hasPackages {
		return Selector{}, NewConfigError("test classes and test packages cannot be combined: classes=%v packages=%v", d.Classes, d.Packages)
	}
	if err := checkNames("class", d.Classes); err != nil {
		return Selector{}, err
	}
	if err := checkNames("package", d.Packages); err != nil {
		return Selector{}, err
	}

	switch {
	case hasClasses:
		return SelectClasses(d.Classes...), nil
	case hasPackages:
		return SelectPackages(d.Packages...), nil
	default:
		return SelectAll(), nil
	}
}

func checkNames(kind string, names []string) error {
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return NewConfigError("%s name at index %d cannot be empty", kind, i)
		}
	}
	return nil
}

// WithProperties returns a copy of the descriptor whose properties are
// defaults overlaid with the descriptor's own properties
func (d RunDescriptor) WithProperties(defaults map[string]string) RunDescriptor {
	merged := make(map[string]string, len(defaults)+len(d.Properties))
	maps.Copy(merged, defaults)
	maps.Copy(merged, d.Properties)
	d.Properties = merged
	return d
}

// TestSource names a single test to run
type TestSource struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	FilePath string `json:"filePath,omitempty"`
}

// TestSourceTypeGo is the source type written for go test functions
const TestSourceTypeGo = "go"

// UnmarshalJSON accepts either a source object or a bare test name
func (s *TestSource) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = TestSource{Type: TestSourceTypeGo, Name: name}
		return nil
	}
	type plain TestSource
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = TestSource(p)
	return nil
}

type runDescriptorJSON struct {
	Engine      string            `json:"engine"`
	Includes    []string          `json:"includes"`
	Packages    *[]string         `json:"packages,omitempty"`
	TestSources *[]TestSource     `json:"testSources,omitempty"`
	Properties  map[string]string `json:"properties"`
}

// MarshalJSON writes the wire form of the descriptor
func (d RunDescriptor) MarshalJSON() ([]byte, error) {
	sel, err := d.Selector()
	if err != nil {
		return nil, err
	}

	wire := runDescriptorJSON{
		Engine:     d.Engine,
		Includes:   d.Includes,
		Properties: d.Properties,
	}
	if wire.Includes == nil {
		wire.Includes = []string{}
	}
	if wire.Properties == nil {
		wire.Properties = map[string]string{}
	}

	switch sel.Kind() {
	case SelectPackagesKind:
		pkgs := sel.Names()
		wire.Packages = &pkgs
	case SelectClassesKind:
		sources := make([]TestSource, 0, len(sel.names))
		for _, name := range sel.names {
			sources = append(sources, TestSource{Type: TestSourceTypeGo, Name: name})
		}
		wire.TestSources = &sources
	}

	return json.Marshal(wire)
}

// UnmarshalJSON reads the wire form of the descriptor. An explicitly empty
// package or class list is rejected so it cannot silently run everything.
func (d *RunDescriptor) UnmarshalJSON(data []byte) error {
	var wire runDescriptorJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	decoded := RunDescriptor{
		Engine:     wire.Engine,
		Includes:   wire.Includes,
		Properties: wire.Properties,
	}
	if wire.Packages != nil {
		if len(*wire.Packages) == 0 {
			return NewConfigError("package list is present but empty")
		}
		decoded.Packages = *wire.Packages
	}
	if wire.TestSources != nil {
		if len(*wire.TestSources) == 0 {
			return NewConfigError("test source list is present but empty")
		}
		for _, src := range *wire.TestSources {
			decoded.Classes = append(decoded.Classes, src.Name)
		}
	}

	if err := decoded.Validate(); err != nil {
		return err
	}
	*d = decoded
	return nil
}
