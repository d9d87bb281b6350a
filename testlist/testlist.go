package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ModulePath returns the module path declared by the go.mod in workingDir
func ModulePath(workingDir string) (string, error) {
	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to find go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}

	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return modFile.Module.Mod.Path, nil
}

// ResolvePackage turns a package given either as "./relative/dir" or as an
// import path of the module in workingDir into a "./relative/dir" pattern
// go test accepts from workingDir
func ResolvePackage(pkgPath string, workingDir string) (string, error) {
	if pkgPath == "." || pkgPath == "./..." || strings.HasPrefix(pkgPath, "./") {
		return pkgPath, nil
	}

	moduleName, err := ModulePath(workingDir)
	if err != nil {
		return "", err
	}

	recursive := strings.HasSuffix(pkgPath, "/...")
	base := strings.TrimSuffix(pkgPath, "/...")

	if base != moduleName && !strings.HasPrefix(base, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}

	relPath := "." + strings.TrimPrefix(base, moduleName)
	if recursive {
		relPath += "/..."
	}
	return relPath, nil
}

// FindTestFunctions takes a package path and working directory, and returns a list of test function names
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	relPath, err := ResolvePackage(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}

	pkgDir := filepath.Join(workingDir, relPath)
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}

			if strings.HasPrefix(funcDecl.Name.Name, "Test") && funcDecl.Name.Name != "TestMain" {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	return testFunctions, nil
}
