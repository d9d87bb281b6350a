package types

import (
	"strings"
)

var testFuncPrefixes = []string{"Test", "Example", "Fuzz"}

// QualifiedTestName joins a package import path and a test name into the
// name used for outcomes, e.g. "example.com/smoke.TestLogin/admin"
func QualifiedTestName(pkg, test string) string {
	if pkg == "" {
		return test
	}
	return pkg + "." + test
}

// SplitTestName splits a qualified test name into its package import path and
// its test path. Names without a package return an empty package.
func SplitTestName(name string) (pkg string, test string) {
	for i := 0; i < len(name); i++ {
		if name[i] != '.' {
			continue
		}
		rest := name[i+1:]
		head := rest
		if j := strings.Index(head, "/"); j >= 0 {
			head = head[:j]
		}
		if !strings.Contains(head, ".") && hasTestPrefix(head) {
			return name[:i], rest
		}
	}
	return "", name
}

func hasTestPrefix(s string) bool {
	for _, p := range testFuncPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ParseTestNameHierarchy splits a test path like "TestParent/Sub/SubSub" into
// its elements. depth is 0 for top-level tests.
func ParseTestNameHierarchy(testName string) (depth int, path []string) {
	if testName == "" {
		return 0, []string{}
	}

	path = strings.Split(testName, "/")
	cleanPath := make([]string, 0, len(path))
	for _, element := range path {
		if element != "" {
			cleanPath = append(cleanPath, element)
		}
	}

	if len(cleanPath) == 0 {
		return 0, []string{}
	}

	depth = len(cleanPath) - 1
	return depth, cleanPath
}

// RootTestName returns the top-level test of a test path
func RootTestName(testName string) string {
	_, path := ParseTestNameHierarchy(testName)
	if len(path) == 0 {
		return ""
	}
	return path[0]
}
