package loom

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"go/types"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/loomwire/loom/internal/pkg/strings"
)

// Assembly is one compiled directive ready to render: the full analysis,
// the provider subset to emit, and the construction order of the full
// analysis, of which only members of Set are registered.
type Assembly struct {
	Analysis *Analysis
	Set      *ReachableSet
	Ordered  []*FactoryProvider
}

// Generate renders the generated source file for one input file: import
// statements, then per assembly the config schema struct, the providers
// schema struct, and the assembly function, in that order.
func Generate(w io.Writer, pkgName, pkgPath string, assemblies []*Assembly) error {
	g := &generator{
		meta:    NewMetaData(pkgName, pkgPath),
		varPool: NewVarPool(),
	}

	return g.generate(w, assemblies)
}

type generator struct {
	// analysis and set are the assembly currently being rendered; meta and
	// varPool span the whole file.
	analysis *Analysis
	set      *ReachableSet
	meta     *MetaData
	varPool  *VarPool
}

func (g *generator) generate(w io.Writer, assemblies []*Assembly) error {
	g.varPool.Register(loomPkgName)
	for _, name := range []string{"c", "config", "providers", "err"} {
		g.varPool.Register(name)
	}
	g.meta.Imports[loomPkgPath] = &Import{Name: loomPkgName, IsDefaultName: true}

	seen := make(map[string]struct{}, len(assemblies))
	decls := make([]ast.Decl, 0, 3*len(assemblies))

	for _, a := range assemblies {
		name := a.Analysis.Directive.AssemblyName
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate assembly name %q", name)
		}
		seen[name] = struct{}{}

		g.analysis = a.Analysis
		g.set = a.Set
		g.reserveProviderNames()

		prefix := strings.ToExported(name)

		configDecl, err := g.configStructDecl(prefix)
		if err != nil {
			return fmt.Errorf("assembly %q: config schema: %w", name, err)
		}

		providersDecl, err := g.providersStructDecl(prefix)
		if err != nil {
			return fmt.Errorf("assembly %q: providers schema: %w", name, err)
		}

		assemblyDecl, err := g.assemblyFuncDecl(prefix, a.Ordered)
		if err != nil {
			return fmt.Errorf("assembly %q: assembly function: %w", name, err)
		}

		decls = append(decls, configDecl, providersDecl, assemblyDecl)
	}

	// The import declaration renders last: building the other declarations
	// is what fills the import table.
	file := &ast.File{
		Name:  ast.NewIdent(g.meta.PackageName),
		Decls: append([]ast.Decl{g.importDecl()}, decls...),
	}

	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	buf.WriteString("\n\n")

	if err := format.Node(&buf, token.NewFileSet(), file); err != nil {
		return fmt.Errorf("format generated source: %w", err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write generated source: %w", err)
	}

	slog.Debug("generated assemblies",
		"package", g.meta.PackageName,
		"count", len(assemblies),
		"bytes", buf.Len(),
	)

	return nil
}

// reserveProviderNames claims the current assembly's provider names, so
// import aliases never collide with the locals of a factory closure.
func (g *generator) reserveProviderNames() {
	for _, f := range g.set.Factories {
		g.varPool.Register(f.Name)
	}
	for _, e := range g.set.Externals {
		g.varPool.Register(e.Name)
	}
	for _, cfg := range g.set.Configs {
		g.varPool.Register(cfg.Name)
	}
}

func (g *generator) typeExpr(t types.Type) (ast.Expr, error) {
	return typeExpr(g.meta.PackagePath, t, g.varPool, g.meta.Imports)
}

func (g *generator) loomExpr(sel string) ast.Expr {
	return &ast.SelectorExpr{
		X:   ast.NewIdent(g.meta.Imports[loomPkgPath].Name),
		Sel: ast.NewIdent(sel),
	}
}

// configStructDecl builds the config schema: one field per top-level config
// value, then one anonymous struct section per factory that consumes config
// parameters, in analysis order.
func (g *generator) configStructDecl(prefix string) (ast.Decl, error) {
	fields := make([]*ast.Field, 0, len(g.set.Configs)+len(g.set.Factories))

	for _, cfg := range g.set.Configs {
		expr, err := g.typeExpr(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("config %q: %w", cfg.Name, err)
		}
		if cfg.Optional {
			expr = &ast.StarExpr{X: expr}
		}

		fields = append(fields, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(strings.ToExported(cfg.Name))},
			Type:  expr,
		})
	}

	for _, f := range g.set.Factories {
		var sectionFields []*ast.Field
		for _, param := range f.Params {
			src, ok := param.Source.(*ConfigSource)
			if !ok {
				continue
			}

			expr, err := g.typeExpr(param.Type)
			if err != nil {
				return nil, fmt.Errorf("provider %q parameter %q: %w", f.Name, param.Name, err)
			}

			sectionFields = append(sectionFields, &ast.Field{
				Names: []*ast.Ident{ast.NewIdent(strings.ToExported(src.Config.Name))},
				Type:  expr,
			})
		}
		if len(sectionFields) == 0 {
			continue
		}

		fields = append(fields, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(strings.ToExported(f.Name))},
			Type: &ast.StructType{
				Fields: &ast.FieldList{List: sectionFields},
			},
		})
	}

	return structDecl(prefix+"Config", fields), nil
}

// providersStructDecl builds the providers schema: one field per external
// provider, then one override function field per factory.
func (g *generator) providersStructDecl(prefix string) (ast.Decl, error) {
	fields := make([]*ast.Field, 0, len(g.set.Externals)+len(g.set.Factories))

	for _, e := range g.set.Externals {
		expr, err := g.typeExpr(e.Type)
		if err != nil {
			return nil, fmt.Errorf("external %q: %w", e.Name, err)
		}

		fields = append(fields, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(strings.ToExported(e.Name))},
			Type:  expr,
		})
	}

	for _, f := range g.set.Factories {
		resultExpr, err := g.typeExpr(f.Result)
		if err != nil {
			return nil, fmt.Errorf("factory %q: %w", f.Name, err)
		}

		fields = append(fields, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(strings.ToExported(f.Name))},
			Type:  g.factoryFuncType(resultExpr),
		})
	}

	return structDecl(prefix+"Providers", fields), nil
}

// factoryFuncType is the shape of a factory closure or override:
// func(*loom.Container) (T, error).
func (g *generator) factoryFuncType(resultExpr ast.Expr) *ast.FuncType {
	return &ast.FuncType{
		Params: &ast.FieldList{List: []*ast.Field{
			{Type: &ast.StarExpr{X: g.loomExpr("Container")}},
		}},
		Results: &ast.FieldList{List: []*ast.Field{
			{Type: resultExpr},
			{Type: ast.NewIdent("error")},
		}},
	}
}

func (g *generator) assemblyFuncDecl(prefix string, ordered []*FactoryProvider) (ast.Decl, error) {
	stmts := []ast.Stmt{
		// c := loom.New()
		&ast.AssignStmt{
			Lhs: []ast.Expr{ast.NewIdent("c")},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{&ast.CallExpr{Fun: g.loomExpr("New")}},
		},
	}

	for _, e := range g.set.Externals {
		field := &ast.SelectorExpr{
			X:   ast.NewIdent("providers"),
			Sel: ast.NewIdent(strings.ToExported(e.Name)),
		}
		call := &ast.ExprStmt{X: g.registerCall("ProvideValue", e.Name, field)}

		if e.Required {
			stmts = append(stmts, call)
			continue
		}

		// Optional externals register only when supplied, so a consumer
		// hit at runtime reports a missing provider instead of a nil value.
		stmts = append(stmts, &ast.IfStmt{
			Cond: &ast.BinaryExpr{X: field, Op: token.NEQ, Y: ast.NewIdent("nil")},
			Body: &ast.BlockStmt{List: []ast.Stmt{call}},
		})
	}

	for _, cfg := range g.set.Configs {
		value := &ast.SelectorExpr{
			X:   ast.NewIdent("config"),
			Sel: ast.NewIdent(strings.ToExported(cfg.Name)),
		}
		stmts = append(stmts, &ast.ExprStmt{X: g.registerCall("ProvideValue", cfg.Name, value)})
	}

	emit := make(map[string]struct{}, len(g.set.Factories))
	for _, f := range g.set.Factories {
		emit[f.Name] = struct{}{}
	}

	for _, f := range ordered {
		if _, ok := emit[f.Name]; !ok {
			continue
		}

		closure, err := g.factoryClosure(f)
		if err != nil {
			return nil, fmt.Errorf("factory %q: %w", f.Name, err)
		}

		stmts = append(stmts, &ast.ExprStmt{X: g.registerCall(provideFunc(f), f.Name, closure)})
	}

	// Overrides re-register last, so a supplied closure wins over the
	// generated one.
	for _, f := range g.set.Factories {
		field := &ast.SelectorExpr{
			X:   ast.NewIdent("providers"),
			Sel: ast.NewIdent(strings.ToExported(f.Name)),
		}

		stmts = append(stmts, &ast.IfStmt{
			Cond: &ast.BinaryExpr{X: field, Op: token.NEQ, Y: ast.NewIdent("nil")},
			Body: &ast.BlockStmt{List: []ast.Stmt{
				&ast.ExprStmt{X: g.registerCall(provideFunc(f), f.Name, field)},
			}},
		})
	}

	stmts = append(stmts, &ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("c")}})

	return &ast.FuncDecl{
		Name: ast.NewIdent("New" + prefix + "Container"),
		Type: &ast.FuncType{
			Params: &ast.FieldList{List: []*ast.Field{
				{Names: []*ast.Ident{ast.NewIdent("config")}, Type: ast.NewIdent(prefix + "Config")},
				{Names: []*ast.Ident{ast.NewIdent("providers")}, Type: ast.NewIdent(prefix + "Providers")},
			}},
			Results: &ast.FieldList{List: []*ast.Field{
				{Type: &ast.StarExpr{X: g.loomExpr("Container")}},
			}},
		},
		Body: &ast.BlockStmt{List: stmts},
	}, nil
}

func provideFunc(f *FactoryProvider) string {
	if f.Transient {
		return "ProvideTransient"
	}

	return "Provide"
}

// registerCall renders loom.<fn>(c, "<key>", value).
func (g *generator) registerCall(fn, key string, value ast.Expr) ast.Expr {
	return &ast.CallExpr{
		Fun: g.loomExpr(fn),
		Args: []ast.Expr{
			ast.NewIdent("c"),
			&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(key)},
			value,
		},
	}
}

// factoryClosure renders the construction closure for one factory: resolve
// referenced providers from the container, then call the constructor with
// references and config values in parameter order.
func (g *generator) factoryClosure(f *FactoryProvider) (ast.Expr, error) {
	resultExpr, err := g.typeExpr(f.Result)
	if err != nil {
		return nil, err
	}
	zero, err := g.zeroExpr(f.Result)
	if err != nil {
		return nil, err
	}

	var stmts []ast.Stmt
	resolved := make(map[string]struct{})
	args := make([]ast.Expr, 0, len(f.Params))

	for _, param := range f.Params {
		switch src := param.Source.(type) {
		case *ConfigSource:
			args = append(args, &ast.SelectorExpr{
				X: &ast.SelectorExpr{
					X:   ast.NewIdent("config"),
					Sel: ast.NewIdent(strings.ToExported(f.Name)),
				},
				Sel: ast.NewIdent(strings.ToExported(src.Config.Name)),
			})

		case *RefSource:
			if _, ok := resolved[src.Target]; !ok {
				resolved[src.Target] = struct{}{}

				getStmts, err := g.getStmts(src.Target, zero)
				if err != nil {
					return nil, fmt.Errorf("parameter %q: %w", param.Name, err)
				}
				stmts = append(stmts, getStmts...)
			}

			args = append(args, g.refArgExpr(src.Target, param.Type))
		}
	}

	call := &ast.CallExpr{Fun: g.ctorExpr(f.Ctor), Args: args}
	if f.ReturnsErr {
		stmts = append(stmts, &ast.ReturnStmt{Results: []ast.Expr{call}})
	} else {
		stmts = append(stmts, &ast.ReturnStmt{Results: []ast.Expr{call, ast.NewIdent("nil")}})
	}

	closureType := g.factoryFuncType(resultExpr)
	closureType.Params.List[0].Names = []*ast.Ident{ast.NewIdent("c")}

	return &ast.FuncLit{
		Type: closureType,
		Body: &ast.BlockStmt{List: stmts},
	}, nil
}

// getStmts renders the resolution of one referenced provider:
//
//	name, err := loom.Get[T](c, "name")
//	if err != nil {
//		return <zero>, err
//	}
func (g *generator) getStmts(target string, zero ast.Expr) ([]ast.Stmt, error) {
	provided, err := g.providedType(target)
	if err != nil {
		return nil, err
	}
	providedExpr, err := g.typeExpr(provided)
	if err != nil {
		return nil, err
	}

	return []ast.Stmt{
		&ast.AssignStmt{
			Lhs: []ast.Expr{ast.NewIdent(target), ast.NewIdent("err")},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{&ast.CallExpr{
				Fun: &ast.IndexExpr{
					X:     g.loomExpr("Get"),
					Index: providedExpr,
				},
				Args: []ast.Expr{
					ast.NewIdent("c"),
					&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(target)},
				},
			}},
		},
		&ast.IfStmt{
			Cond: &ast.BinaryExpr{X: ast.NewIdent("err"), Op: token.NEQ, Y: ast.NewIdent("nil")},
			Body: &ast.BlockStmt{List: []ast.Stmt{
				&ast.ReturnStmt{Results: []ast.Expr{zero, ast.NewIdent("err")}},
			}},
		},
	}, nil
}

// providedType is the type a provider registers under its name: the
// constructor result for factories, the declared type for externals and
// config values.
func (g *generator) providedType(name string) (types.Type, error) {
	switch p := g.analysis.byName[name].(type) {
	case *FactoryProvider:
		return p.Result, nil
	case *ExternalProvider:
		return p.Type, nil
	case *ConfigProvider:
		if p.Optional {
			return types.NewPointer(p.Type), nil
		}
		return p.Type, nil
	}

	return nil, fmt.Errorf("reference to unknown provider %q", name)
}

// refArgExpr adapts a resolved provider value to the pointerness the
// constructor parameter declares.
func (g *generator) refArgExpr(target string, paramType types.Type) ast.Expr {
	ident := ast.NewIdent(target)

	provided, err := g.providedType(target)
	if err != nil {
		return ident
	}

	pt := types.Unalias(paramType)
	pv := types.Unalias(provided)
	if types.Identical(pt, pv) {
		return ident
	}

	if ptr, ok := pt.(*types.Pointer); ok && types.Identical(types.Unalias(ptr.Elem()), pv) {
		return &ast.UnaryExpr{Op: token.AND, X: ident}
	}
	if ptr, ok := pv.(*types.Pointer); ok && types.Identical(pt, types.Unalias(ptr.Elem())) {
		return &ast.StarExpr{X: ident}
	}

	return ident
}

func (g *generator) ctorExpr(ctor *types.Func) ast.Expr {
	if pkg := ctor.Pkg(); pkg != nil && pkg.Path() != g.meta.PackagePath {
		imp := importFor(pkg, g.varPool, g.meta.Imports)

		return &ast.SelectorExpr{
			X:   ast.NewIdent(imp.Name),
			Sel: ast.NewIdent(ctor.Name()),
		}
	}

	return ast.NewIdent(ctor.Name())
}

// zeroExpr renders the zero value of a type for early returns.
func (g *generator) zeroExpr(t types.Type) (ast.Expr, error) {
	switch typ := types.Unalias(t).(type) {
	case *types.Pointer, *types.Interface, *types.Signature, *types.Slice, *types.Map, *types.Chan:
		return ast.NewIdent("nil"), nil
	case *types.Basic:
		info := typ.Info()
		switch {
		case info&types.IsBoolean != 0:
			return ast.NewIdent("false"), nil
		case info&types.IsString != 0:
			return &ast.BasicLit{Kind: token.STRING, Value: `""`}, nil
		case info&types.IsNumeric != 0:
			return &ast.BasicLit{Kind: token.INT, Value: "0"}, nil
		}

		return ast.NewIdent("nil"), nil
	case *types.Struct, *types.Array:
		expr, err := g.typeExpr(t)
		if err != nil {
			return nil, err
		}

		return &ast.CompositeLit{Type: expr}, nil
	case *types.Named:
		switch typ.Underlying().(type) {
		case *types.Struct, *types.Array:
			expr, err := g.typeExpr(t)
			if err != nil {
				return nil, err
			}

			return &ast.CompositeLit{Type: expr}, nil
		}

		// Untyped constants and nil are assignable to the named type.
		return g.zeroExpr(typ.Underlying())
	}

	return nil, fmt.Errorf("no zero value for type %s", t.String())
}

func (g *generator) importDecl() ast.Decl {
	paths := slices.Sorted(maps.Keys(g.meta.Imports))

	specs := make([]ast.Spec, 0, len(paths))
	for _, path := range paths {
		imp := g.meta.Imports[path]

		spec := &ast.ImportSpec{
			Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(path)},
		}
		if !imp.IsDefaultName {
			spec.Name = ast.NewIdent(imp.Name)
		}

		specs = append(specs, spec)
	}

	return &ast.GenDecl{
		Tok:    token.IMPORT,
		Lparen: token.Pos(1),
		Specs:  specs,
	}
}

func structDecl(name string, fields []*ast.Field) ast.Decl {
	return &ast.GenDecl{
		Tok: token.TYPE,
		Specs: []ast.Spec{&ast.TypeSpec{
			Name: ast.NewIdent(name),
			Type: &ast.StructType{
				Fields: &ast.FieldList{List: fields},
			},
		}},
	}
}
