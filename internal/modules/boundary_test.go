// Package modules_test verifies module boundary compliance.
// Modules and the parser must not reach into the layers that assemble them.
package modules_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "github.com/csvquerygenie/genie"

// importsOf returns the imports of every non-test file in dir.
func importsOf(t *testing.T, dir string) map[string][]string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("../..", dir, "*.go"))
	if err != nil {
		t.Fatalf("failed to glob package %s: %v", dir, err)
	}
	if len(matches) == 0 {
		t.Fatalf("no Go files in %s", dir)
	}

	imports := make(map[string][]string)
	for _, file := range matches {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("failed to parse file %s: %v", file, err)
		}
		for _, imp := range f.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			imports[filepath.Base(file)] = append(imports[filepath.Base(file)], path)
		}
	}
	return imports
}

func TestModuleBoundaryCompliance(t *testing.T) {
	packages := []string{
		"internal/modules/input",
		"internal/modules/filter",
		"internal/modules/output",
		"internal/parser",
	}
	forbidden := []string{
		modulePath + "/internal/runtime",
		modulePath + "/internal/factory",
		modulePath + "/internal/registry",
		modulePath + "/internal/server",
		modulePath + "/internal/generator",
		modulePath + "/internal/store",
		modulePath + "/internal/config",
		modulePath + "/internal/cli",
	}

	for _, pkg := range packages {
		t.Run(pkg, func(t *testing.T) {
			for file, imports := range importsOf(t, pkg) {
				for _, path := range imports {
					for _, f := range forbidden {
						if path == f {
							t.Errorf("BOUNDARY VIOLATION: %s/%s imports %s", pkg, file, path)
						}
					}
				}
			}
		})
	}
}

// The shared data model is imported by every layer and imports none of them.
func TestTabularHasNoInternalImports(t *testing.T) {
	for file, imports := range importsOf(t, "pkg/tabular") {
		for _, path := range imports {
			if strings.HasPrefix(path, modulePath+"/") {
				t.Errorf("pkg/tabular/%s imports %s", file, path)
			}
		}
	}
}
