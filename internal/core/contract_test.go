package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()
	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
		}
		pkgs, err := packages.Load(cfg, "herdsync/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "herdsync/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})
	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

func findFile(t *testing.T, pkg *packages.Package, target string) *ast.File {
	t.Helper()
	for _, file := range pkg.Syntax {
		if filepath.Base(pkg.Fset.Position(file.Pos()).Filename) == target {
			return file
		}
	}
	t.Fatalf("failed to locate %s in package", target)
	return nil
}

// TestAppStructContract pins the collaborators the App composes so a
// refactor cannot silently drop one of the two sync channels.
func TestAppStructContract(t *testing.T) {
	pkg := loadCorePackage(t)
	obj := pkg.Types.Scope().Lookup("App")
	if obj == nil {
		t.Fatalf("App type not found in package")
	}
	structType, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("App is not a struct")
	}
	qualifier := func(p *types.Package) string { return p.Path() }
	fields := make(map[string]string, structType.NumFields())
	for i := 0; i < structType.NumFields(); i++ {
		f := structType.Field(i)
		fields[f.Name()] = types.TypeString(f.Type(), qualifier)
	}

	required := map[string]string{
		"deps":     "herdsync/internal/core.Deps",
		"farmers":  "herdsync/internal/core.channel[herdsync/pkg/domain.FarmerRecord]",
		"offtakes": "herdsync/internal/core.channel[herdsync/pkg/domain.OfftakeRecord]",
		"codes":    "*herdsync/internal/codes.Generator",
		"settings": "*herdsync/internal/settings.Store",
		"guard":    "*herdsync/internal/session.Guard",
	}
	var problems []string
	for name, want := range required {
		got, ok := fields[name]
		switch {
		case !ok:
			problems = append(problems, "missing "+name)
		case got != want:
			problems = append(problems, fmt.Sprintf("%s: want %s, got %s", name, want, got))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("App struct contract violated (%s:%d): %s", filepath.Base(file), line, strings.Join(problems, "; "))
	}
}

// TestAppWriteOperationsAreTraced requires submissions and sync passes to
// open a tracer span.
func TestAppWriteOperationsAreTraced(t *testing.T) {
	pkg := loadCorePackage(t)
	file := findFile(t, pkg, "app.go")
	want := map[string]bool{"SubmitFarmer": false, "SubmitOfftake": false, "SyncNow": false}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || fn.Body == nil {
			continue
		}
		if _, tracked := want[fn.Name.Name]; !tracked {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if ok && sel.Sel.Name == "Start" {
				if inner, ok := sel.X.(*ast.SelectorExpr); ok && inner.Sel.Name == "tracer" {
					want[fn.Name.Name] = true
				}
			}
			return true
		})
	}
	var missing []string
	for name, traced := range want {
		if !traced {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		t.Fatalf("App methods must start a tracer span: %s", strings.Join(missing, ", "))
	}
}

// TestNoTypeAliases keeps core's exported configuration types distinct.
func TestNoTypeAliases(t *testing.T) {
	pkg := loadCorePackage(t)
	var aliases []string
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Assign.IsValid() {
					continue
				}
				pos := pkg.Fset.Position(ts.Pos())
				aliases = append(aliases, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}
	if len(aliases) > 0 {
		t.Fatalf("type aliases are forbidden in internal/core; found %d:\n%s", len(aliases), strings.Join(aliases, "\n"))
	}
}
