// Package junit renders result sets as JUnit XML documents.
package junit

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TestSuite is the <testsuite> element
type TestSuite struct {
	XMLName   xml.Name   `xml:"testsuite"`
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	Errors    int        `xml:"errors,attr"`
	Skipped   int        `xml:"skipped,attr"`
	Time      string     `xml:"time,attr"`
	Timestamp string     `xml:"timestamp,attr,omitempty"`
	TestCases []TestCase `xml:"testcase"`
}

// TestCase is the <testcase> element
type TestCase struct {
	Name      string   `xml:"name,attr"`
	ClassName string   `xml:"classname,attr"`
	Time      string   `xml:"time,attr"`
	Failure   *Failure `xml:"failure,omitempty"`
	Skipped   *Skipped `xml:"skipped,omitempty"`
}

// Failure is the <failure> element of a failed test case
type Failure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

// Skipped marks a skipped test case
type Skipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// NewTestCase converts an outcome into a test case. The package part of a
// qualified test name becomes the class name.
func NewTestCase(o types.TestOutcome) TestCase {
	pkg, test := types.SplitTestName(o.Name)
	tc := TestCase{
		Name:      test,
		ClassName: pkg,
		Time:      seconds(o.Duration()),
	}
	if tc.ClassName == "" {
		tc.ClassName = types.RootTestName(test)
	}
	switch o.Status {
	case types.TestStatusFailure:
		tc.Failure = &Failure{
			Message: firstLine(o.ErrorMessage),
			Type:    "failure",
			Text:    o.ErrorMessage,
		}
	case types.TestStatusSkipped:
		tc.Skipped = &Skipped{}
	}
	return tc
}

// NewSuite converts a result set into a test suite
func NewSuite(name string, rs types.ResultSet, timestamp time.Time) TestSuite {
	counts := rs.Counts()
	suite := TestSuite{
		Name:     name,
		Tests:    counts.Total,
		Failures: counts.Failed,
		Skipped:  counts.Skipped,
		Time:     seconds(rs.Duration()),
	}
	if !timestamp.IsZero() {
		suite.Timestamp = timestamp.UTC().Format("2006-01-02T15:04:05")
	}
	for _, o := range rs.Outcomes() {
		suite.TestCases = append(suite.TestCases, NewTestCase(o))
	}
	return suite
}

// Marshal encodes a test suite as an indented XML document
func Marshal(suite TestSuite) ([]byte, error) {
	data, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test suite %s: %w", suite.Name, err)
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}

// RenderSuite renders the whole result set as one suite document
func RenderSuite(name string, rs types.ResultSet, timestamp time.Time) ([]byte, error) {
	return Marshal(NewSuite(name, rs, timestamp))
}

// RenderTest renders a single outcome as its own suite document
func RenderTest(o types.TestOutcome, timestamp time.Time) ([]byte, error) {
	return Marshal(NewSuite(o.Name, types.NewResultSet(o), timestamp))
}

// FileName returns the file name a single test report is stored under
func FileName(testName string) string {
	clean := strings.Trim(unsafeFileChars.ReplaceAllString(testName, "_"), "_.")
	if clean == "" {
		clean = "test"
	}
	return clean + ".xml"
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
