package loom

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"log/slog"
	"path/filepath"

	"golang.org/x/tools/go/packages"
)

// Parser loads Go source through the go/packages front end and extracts
// wire directives. A Parser carries per-invocation state only; use a fresh
// one per file.
type Parser struct {
	fset *token.FileSet
}

func NewParser() *Parser {
	return &Parser{
		fset: token.NewFileSet(),
	}
}

// markerObjects are the loom package declarations a directive is recognized
// by. Matching on object identity keeps shadowing and same-named functions
// from other packages out.
type markerObjects struct {
	wire      types.Object
	entry     types.Object
	transient types.Object
}

// ParseFile type-checks the package containing filename and returns the
// loaded package together with the wire directives declared in that file.
// A file whose package never imports loom yields no directives.
func (p *Parser) ParseFile(filename string) (*packages.Package, []*Directive, error) {
	pkg, err := p.loadPackage(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("load package: %w", err)
	}

	loomPkg, ok := pkg.Imports[loomPkgPath]
	if !ok || loomPkg == nil || loomPkg.Types == nil {
		slog.Warn("loom package is not imported", "filename", filename)
		return pkg, nil, nil
	}

	scope := loomPkg.Types.Scope()
	if scope == nil {
		slog.Warn("loom package is imported, but loom.Wire is not found", "filename", filename)
		return pkg, nil, nil
	}

	markers := markerObjects{
		wire:      scope.Lookup(wireFuncName),
		entry:     scope.Lookup(entryFuncName),
		transient: scope.Lookup(transientFuncName),
	}
	if markers.wire == nil {
		slog.Warn("loom package is imported, but loom.Wire is not found", "filename", filename)
		return pkg, nil, nil
	}

	targetFile, err := p.findSyntaxFile(pkg, filename)
	if err != nil {
		return nil, nil, err
	}

	directives, err := p.findWireDirectives(pkg, targetFile, markers)
	if err != nil {
		return nil, nil, err
	}

	return pkg, directives, nil
}

func (p *Parser) loadPackage(filename string) (*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedTypes | packages.NeedTypesSizes |
			packages.NeedSyntax | packages.NeedTypesInfo,
		Fset: p.fset,
	}

	pkgs, err := packages.Load(cfg, "file="+filename)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	// Allow some errors but continue if we have valid packages
	errorCount := packages.PrintErrors(pkgs)
	if errorCount > 0 && len(pkgs) == 0 {
		return nil, errors.New("package loading errors occurred and no packages loaded")
	}

	absFilename, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("absolute path of %s: %w", filename, err)
	}

	for _, pkg := range pkgs {
		for _, goFile := range pkg.GoFiles {
			absGoFile, err := filepath.Abs(goFile)
			if err != nil {
				slog.Debug("failed to get absolute filename", "error", err, "filename", goFile)
				continue
			}

			if absGoFile == absFilename {
				return pkg, nil
			}
		}
	}

	return nil, errors.New("file is not part of any loaded package")
}

// findSyntaxFile returns the parsed syntax of filename within its loaded
// package.
func (p *Parser) findSyntaxFile(pkg *packages.Package, filename string) (*ast.File, error) {
	absFilename, _ := filepath.Abs(filename)
	for i, f := range pkg.Syntax {
		if f == nil || i >= len(pkg.GoFiles) {
			continue
		}

		absGoFile, _ := filepath.Abs(pkg.GoFiles[i])
		if absGoFile == absFilename {
			return f, nil
		}
	}

	return nil, errors.New("target file not found in package syntax")
}

// findWireDirectives finds all loom.Wire calls in the file.
func (p *Parser) findWireDirectives(pkg *packages.Package, file *ast.File, markers markerObjects) ([]*Directive, error) {
	var (
		directives []*Directive
		parseErr   error
	)

	ast.Inspect(file, func(n ast.Node) bool {
		if parseErr != nil {
			return false
		}

		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}

		var typeArg ast.Expr
		switch fun := call.Fun.(type) {
		case *ast.IndexExpr:
			typeArg = fun.Index
			if calleeObject(pkg.TypesInfo, fun.X) != markers.wire {
				return true
			}
		case *ast.IndexListExpr:
			if len(fun.Indices) == 0 || calleeObject(pkg.TypesInfo, fun.X) != markers.wire {
				return true
			}
			typeArg = fun.Indices[0]
		default:
			return true
		}

		d, err := p.parseWireCall(pkg, call, typeArg, markers)
		if err != nil {
			parseErr = fmt.Errorf("%s: %w", p.fset.Position(call.Pos()), err)
			return false
		}

		directives = append(directives, d)
		return false
	})

	if parseErr != nil {
		return nil, parseErr
	}

	return directives, nil
}

// calleeObject resolves the object a callee expression denotes, seeing
// through a package selector or a dot-imported identifier.
func calleeObject(info *types.Info, fun ast.Expr) types.Object {
	switch expr := fun.(type) {
	case *ast.SelectorExpr:
		return info.ObjectOf(expr.Sel)
	case *ast.Ident:
		return info.ObjectOf(expr)
	}

	return nil
}

// parseWireCall parses one loom.Wire call expression.
func (p *Parser) parseWireCall(pkg *packages.Package, call *ast.CallExpr, typeArg ast.Expr, markers markerObjects) (*Directive, error) {
	spec := pkg.TypesInfo.TypeOf(typeArg)
	if spec == nil {
		return nil, errors.New("loom.Wire type argument cannot be resolved")
	}

	if len(call.Args) == 0 {
		return nil, errors.New("loom.Wire requires an assembly name")
	}

	name, err := stringArg(pkg.TypesInfo, call.Args[0])
	if err != nil {
		return nil, fmt.Errorf("assembly name: %w", err)
	}
	if !token.IsIdentifier(name) {
		return nil, fmt.Errorf("assembly name %q is not a valid identifier", name)
	}

	d := &Directive{
		AssemblyName: name,
		Spec:         spec,
		PackageName:  pkg.Name,
		PackagePath:  pkg.PkgPath,
		Pos:          p.fset.Position(call.Pos()),
	}

	for _, arg := range call.Args[1:] {
		if err := p.parseOption(pkg, d, arg, markers); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (p *Parser) parseOption(pkg *packages.Package, d *Directive, arg ast.Expr, markers markerObjects) error {
	call, ok := arg.(*ast.CallExpr)
	if !ok {
		return errors.New("invalid option expression: loom.Entry or loom.Transient must be used directly")
	}

	switch calleeObject(pkg.TypesInfo, call.Fun) {
	case markers.entry:
		if len(call.Args) != 1 {
			return errors.New("loom.Entry requires exactly one provider name")
		}
		name, err := stringArg(pkg.TypesInfo, call.Args[0])
		if err != nil {
			return fmt.Errorf("loom.Entry: %w", err)
		}
		if d.Entry != "" {
			return fmt.Errorf("duplicate loom.Entry option: %q and %q", d.Entry, name)
		}

		d.Entry = name

	case markers.transient:
		for _, nameArg := range call.Args {
			name, err := stringArg(pkg.TypesInfo, nameArg)
			if err != nil {
				return fmt.Errorf("loom.Transient: %w", err)
			}

			d.Transients = append(d.Transients, name)
		}

	default:
		return errors.New("invalid option expression: loom.Entry or loom.Transient must be used directly")
	}

	return nil
}

// stringArg evaluates an argument expression to its constant string value.
func stringArg(info *types.Info, expr ast.Expr) (string, error) {
	tv, ok := info.Types[expr]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		return "", errors.New("argument is not a string literal")
	}

	return constant.StringVal(tv.Value), nil
}
