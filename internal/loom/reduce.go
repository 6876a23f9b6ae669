package loom

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/loomwire/loom/internal/pkg/collection"
)

// UnknownEntryError reports an Entry option naming no provider.
type UnknownEntryError struct {
	Entry string
}

func (e *UnknownEntryError) Error() string {
	return fmt.Sprintf("unknown entry provider %q", e.Entry)
}

// ReachableSet is the subset of an analysis transitively required by one
// entry provider. Lists preserve analysis order; the entry is always
// present.
type ReachableSet struct {
	Entry     string
	Factories []*FactoryProvider
	Externals []*ExternalProvider
	Configs   []*ConfigProvider
}

// Reducer computes reachable closures and, when a literal classifier is
// set, upgrades positional parameter names from literals found at existing
// constructor call sites.
type Reducer struct {
	// Literals names literal-derived parameters; nil disables extraction.
	Literals LiteralClassifier
}

func NewReducer(literals LiteralClassifier) *Reducer {
	return &Reducer{
		Literals: literals,
	}
}

// Full returns every provider of the analysis, for assemblies without an
// entry option.
func (r *Reducer) Full(analysis *Analysis) *ReachableSet {
	return &ReachableSet{
		Factories: analysis.Factories,
		Externals: analysis.Externals,
		Configs:   analysis.Configs,
	}
}

// Reduce returns the providers reachable from entry. Factory references
// recurse; external providers are leaves.
func (r *Reducer) Reduce(analysis *Analysis, entry string) (*ReachableSet, error) {
	if _, ok := analysis.Provider(entry); !ok {
		return nil, &UnknownEntryError{Entry: entry}
	}

	reachable := map[string]struct{}{entry: {}}
	worklist := collection.NewQueue[string]()
	worklist.Push(entry)

	for name := range worklist.Iter {
		f, ok := analysis.Factory(name)
		if !ok {
			continue
		}

		for _, param := range f.Params {
			ref, isRef := param.Source.(*RefSource)
			if !isRef {
				continue
			}
			if _, seen := reachable[ref.Target]; seen {
				continue
			}

			reachable[ref.Target] = struct{}{}
			worklist.Push(ref.Target)
		}
	}

	set := &ReachableSet{Entry: entry}
	for _, f := range analysis.Factories {
		if _, ok := reachable[f.Name]; ok {
			set.Factories = append(set.Factories, f)
		}
	}
	for _, e := range analysis.Externals {
		if _, ok := reachable[e.Name]; ok {
			set.Externals = append(set.Externals, e)
		}
	}
	for _, c := range analysis.Configs {
		if _, ok := reachable[c.Name]; ok {
			set.Configs = append(set.Configs, c)
		}
	}

	slog.Debug("reduced provider set",
		"entry", entry,
		"factories", len(set.Factories),
		"externals", len(set.Externals),
	)

	return set, nil
}

// ExtractLiterals scans the loaded package for existing call sites of the
// given factories' constructors and renames positional config parameters
// after the literal values found there. Parameters with declared names are
// left alone.
func (r *Reducer) ExtractLiterals(pkg *packages.Package, factories []*FactoryProvider) {
	if r.Literals == nil || pkg == nil || pkg.TypesInfo == nil {
		return
	}

	byCtor := make(map[*types.Func]*FactoryProvider, len(factories))
	for _, f := range factories {
		byCtor[f.Ctor] = f
	}

	for _, file := range pkg.Syntax {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			callee := typeutil.StaticCallee(pkg.TypesInfo, call)
			if callee == nil {
				return true
			}

			if f, ok := byCtor[callee]; ok {
				r.upgradeParams(f, call)
			}

			return true
		})
	}
}

func (r *Reducer) upgradeParams(f *FactoryProvider, call *ast.CallExpr) {
	pool := NewVarPool()
	for _, param := range f.Params {
		pool.Register(param.Name)
	}

	owner := declaredTypeName(f.Type)

	for i, arg := range call.Args {
		if i >= len(f.Params) {
			break
		}

		lit, ok := arg.(*ast.BasicLit)
		if !ok {
			continue
		}

		param := f.Params[i]
		src, isConfig := param.Source.(*ConfigSource)
		if !isConfig || !isPositionalName(param.Name) {
			continue
		}

		value := lit.Value
		if lit.Kind == token.STRING {
			if unquoted, err := strconv.Unquote(lit.Value); err == nil {
				value = unquoted
			}
		}

		name, ok := r.Literals.ClassifyLiteral(owner, value)
		if !ok {
			continue
		}

		name = pool.GetName(name)
		slog.Debug("upgraded literal parameter",
			"provider", f.Name,
			"param", param.Name,
			"name", name,
		)

		param.Name = name
		src.Config.Name = name
	}
}

// isPositionalName reports whether a parameter name is a synthesized
// positional one (arg0, arg1, …) rather than a declared identifier.
func isPositionalName(name string) bool {
	if !strings.HasPrefix(name, "arg") || len(name) == len("arg") {
		return false
	}

	for _, r := range name[len("arg"):] {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func declaredTypeName(t types.Type) string {
	if named, ok := unwrapPointer(t).(*types.Named); ok {
		return named.Obj().Name()
	}

	return ""
}
