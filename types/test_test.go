package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTestNameHierarchy(t *testing.T) {
	tests := []struct {
		name          string
		testName      string
		expectedDepth int
		expectedPath  []string
	}{
		{
			name:          "empty string",
			testName:      "",
			expectedDepth: 0,
			expectedPath:  []string{},
		},
		{
			name:          "simple test",
			testName:      "TestSimple",
			expectedDepth: 0,
			expectedPath:  []string{"TestSimple"},
		},
		{
			name:          "first level subtest",
			testName:      "TestParent/SubTest",
			expectedDepth: 1,
			expectedPath:  []string{"TestParent", "SubTest"},
		},
		{
			name:          "trailing slash",
			testName:      "TestParent/SubTest/",
			expectedDepth: 1,
			expectedPath:  []string{"TestParent", "SubTest"},
		},
		{
			name:          "multiple slashes",
			testName:      "TestParent//SubTest",
			expectedDepth: 1,
			expectedPath:  []string{"TestParent", "SubTest"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, path := ParseTestNameHierarchy(tt.testName)
			assert.Equal(t, tt.expectedDepth, depth, "Depth should match")
			assert.Equal(t, tt.expectedPath, path, "Path should match")
		})
	}
}

func TestSplitTestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPkg  string
		wantTest string
	}{
		{name: "bare test", input: "TestA", wantPkg: "", wantTest: "TestA"},
		{name: "bare subtest with dot", input: "TestA/case.one", wantPkg: "", wantTest: "TestA/case.one"},
		{name: "qualified", input: "example.com/smoke.TestLogin", wantPkg: "example.com/smoke", wantTest: "TestLogin"},
		{name: "qualified subtest", input: "example.com/smoke.TestLogin/admin.user", wantPkg: "example.com/smoke", wantTest: "TestLogin/admin.user"},
		{name: "dotted package element", input: "gopkg.in/yaml.v3.TestDecode", wantPkg: "gopkg.in/yaml.v3", wantTest: "TestDecode"},
		{name: "example func", input: "pkg.ExampleFoo", wantPkg: "pkg", wantTest: "ExampleFoo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, test := SplitTestName(tt.input)
			assert.Equal(t, tt.wantPkg, pkg)
			assert.Equal(t, tt.wantTest, test)
			assert.Equal(t, tt.input, QualifiedTestName(pkg, test))
		})
	}
}

func TestRootTestName(t *testing.T) {
	assert.Equal(t, "TestA", RootTestName("TestA/sub/leaf"))
	assert.Equal(t, "", RootTestName(""))
}
