package loom

import (
	"errors"
	"fmt"
	"go/types"
	"log/slog"

	"github.com/loomwire/loom/internal/pkg/collection"
	"github.com/loomwire/loom/internal/pkg/strings"
)

// UnresolvedDependencyError reports a constructor parameter that resolves to
// neither configuration nor a known or discoverable provider.
type UnresolvedDependencyError struct {
	Provider string
	Param    string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("unresolvable dependency: provider %q parameter %q matches no configuration shape, declared provider, or constructible type", e.Provider, e.Param)
}

// Analyzer turns one Wire directive into a complete provider set.
type Analyzer struct {
	classifier *Classifier
}

func NewAnalyzer(classifier *Classifier) *Analyzer {
	return &Analyzer{
		classifier: classifier,
	}
}

// Analyze classifies every field of the wired struct, resolves constructor
// parameters, and discovers transitively required providers to a fixed
// point. The result lists declared providers in declaration order followed
// by synthesized ones in discovery order, which keeps reruns structurally
// identical.
func (a *Analyzer) Analyze(d *Directive) (*Analysis, error) {
	spec, err := specStruct(d.Spec)
	if err != nil {
		return nil, err
	}

	slog.Debug("analyzing directive",
		"assembly", d.AssemblyName,
		"spec", types.TypeString(d.Spec, nil),
		"fields", spec.NumFields(),
	)

	st := &analysisState{
		classifier: a.classifier,
		analysis: &Analysis{
			Directive:   d,
			PackageName: d.PackageName,
			PackagePath: d.PackagePath,
			byName:      make(map[string]Provider),
		},
		names:    NewVarPool(),
		typeKeys: make(map[string]string),
		worklist: collection.NewQueue[*FactoryProvider](),
	}

	// Pass 1: record the caller's chosen names before any parameter
	// resolution, so references recover them instead of guessing.
	st.registerDeclaredNames(spec)

	// Pass 2: classify and route every declared entry.
	if err := st.declareEntries(spec); err != nil {
		return nil, err
	}

	// Pass 3: resolve placeholder references, synthesizing providers for
	// undeclared constructible and suppliable types until none remain.
	if err := st.discover(); err != nil {
		return nil, err
	}

	if err := st.applyTransients(d.Transients); err != nil {
		return nil, err
	}

	return st.analysis, nil
}

func specStruct(t types.Type) (*types.Struct, error) {
	if t == nil {
		return nil, errors.New("wire directive has no type argument")
	}

	spec, ok := types.Unalias(t).Underlying().(*types.Struct)
	if !ok {
		return nil, fmt.Errorf("wired type %s is not a struct", types.TypeString(t, nil))
	}

	return spec, nil
}

// analysisState is the mutable state of one Analyze invocation. It is never
// shared across invocations.
type analysisState struct {
	classifier *Classifier
	analysis   *Analysis

	// names allocates provider names; declared names are reserved first so
	// synthesized providers never shadow them.
	names *VarPool
	// typeKeys resolves a parameter type to the provider registered for
	// it: declared types by qualified name, callables also by signature
	// text.
	typeKeys map[string]string
	worklist *collection.Queue[*FactoryProvider]
}

func (st *analysisState) registerDeclaredNames(spec *types.Struct) {
	for field := range spec.Fields() {
		name := strings.ToLowerCamel(field.Name())
		st.names.Register(name)

		t := unwrapPointer(field.Type())
		switch typ := t.(type) {
		case *types.Named:
			st.registerTypeKey(namedKey(typ), name)
			if sig, ok := typ.Underlying().(*types.Signature); ok {
				st.registerTypeKey(types.TypeString(sig, nil), name)
			}
		case *types.Signature:
			st.registerTypeKey(types.TypeString(typ, nil), name)
		}
	}
}

// registerTypeKey records key → name unless an earlier entry already claimed
// it; the first declaration wins.
func (st *analysisState) registerTypeKey(key, name string) {
	if _, ok := st.typeKeys[key]; !ok {
		st.typeKeys[key] = name
	}
}

func (st *analysisState) declareEntries(spec *types.Struct) error {
	for field := range spec.Fields() {
		name := strings.ToLowerCamel(field.Name())

		class, err := st.classifier.Classify(field.Type())
		if err != nil {
			return fmt.Errorf("classify entry %q: %w", name, err)
		}

		switch class.Kind {
		case KindFactory:
			f, err := st.buildFactory(name, class, false)
			if err != nil {
				return err
			}
			if err := st.addFactory(f); err != nil {
				return err
			}

		case KindExternal:
			if err := st.addExternal(&ExternalProvider{
				Name:     name,
				Type:     class.Type,
				Required: !class.Optional,
			}); err != nil {
				return err
			}

		case KindConfig:
			cfg, err := st.buildConfig(name, field.Name(), class.Type, class.Optional, nil)
			if err != nil {
				return fmt.Errorf("config entry %q: %w", name, err)
			}
			if err := st.addConfig(cfg); err != nil {
				return err
			}
		}
	}

	return nil
}

func (st *analysisState) buildFactory(name string, class Classification, synthesized bool) (*FactoryProvider, error) {
	sig := class.Ctor.Signature()
	f := &FactoryProvider{
		Name:        name,
		Type:        class.Type,
		Ctor:        class.Ctor,
		Result:      sig.Results().At(0).Type(),
		ReturnsErr:  class.CtorReturnsErr,
		Synthesized: synthesized,
	}

	params := sig.Params()
	f.Params = make([]*ConstructorParam, 0, params.Len())
	for i := 0; i < params.Len(); i++ {
		param, err := st.resolveParam(name, params.At(i), i)
		if err != nil {
			return nil, err
		}

		f.Params = append(f.Params, param)
	}

	return f, nil
}

func (st *analysisState) resolveParam(owner string, v *types.Var, index int) (*ConstructorParam, error) {
	name := v.Name()
	if name == "" || name == "_" {
		name = fmt.Sprintf("arg%d", index)
	}

	class, err := st.classifier.Classify(v.Type())
	if err != nil {
		return nil, fmt.Errorf("provider %q parameter %q: %w", owner, name, err)
	}

	if class.Kind == KindConfig {
		cfg, err := st.buildConfig(name, "", class.Type, class.Optional, nil)
		if err != nil {
			return nil, fmt.Errorf("provider %q parameter %q: %w", owner, name, err)
		}

		return &ConstructorParam{
			Name:   name,
			Type:   v.Type(),
			Source: &ConfigSource{Config: cfg},
		}, nil
	}

	// Non-config parameters resolve by reference: to the caller's chosen
	// name when the type was declared, otherwise to a placeholder that
	// discovery confirms or synthesizes.
	if target, ok := st.typeKeys[typeKey(v.Type())]; ok {
		return &ConstructorParam{
			Name:   name,
			Type:   v.Type(),
			Source: &RefSource{Target: target},
		}, nil
	}

	return &ConstructorParam{
		Name:   name,
		Type:   v.Type(),
		Source: &RefSource{Target: placeholderName(v.Type()), placeholder: true},
	}, nil
}

// buildConfig builds the schema shape for one configuration value. Record
// shapes expand into their exported fields; service-typed fields inside a
// record stay leaves rendered by their declared type. seen carries the named
// records already being expanded, so self-referential shapes terminate.
func (st *analysisState) buildConfig(name, goName string, t types.Type, optional bool, seen []*types.Named) (*ConfigProvider, error) {
	cfg := &ConfigProvider{
		Name:     name,
		GoName:   goName,
		Type:     t,
		Optional: optional,
	}

	record, ok := recordShape(t)
	if !ok {
		return cfg, nil
	}

	if named, isNamed := types.Unalias(t).(*types.Named); isNamed {
		for _, prev := range seen {
			if prev.Obj() == named.Obj() {
				return cfg, nil
			}
		}
		seen = append(seen, named)
	}

	for field := range record.Fields() {
		if !field.Exported() {
			continue
		}

		fieldClass, err := st.classifier.Classify(field.Type())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name(), err)
		}

		var sub *ConfigProvider
		if fieldClass.Kind == KindConfig {
			sub, err = st.buildConfig(strings.ToLowerCamel(field.Name()), field.Name(), fieldClass.Type, fieldClass.Optional, seen)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name(), err)
			}
		} else {
			sub = &ConfigProvider{
				Name:   strings.ToLowerCamel(field.Name()),
				GoName: field.Name(),
				Type:   field.Type(),
			}
		}

		cfg.Fields = append(cfg.Fields, sub)
	}

	return cfg, nil
}

// recordShape returns the struct behind a config record. Constructible
// types never reach here: a named struct in config position has no
// constructor.
func recordShape(t types.Type) (*types.Struct, bool) {
	switch typ := types.Unalias(t).(type) {
	case *types.Struct:
		return typ, true
	case *types.Named:
		record, ok := typ.Underlying().(*types.Struct)
		return record, ok
	}

	return nil, false
}

func (st *analysisState) discover() error {
	st.worklist.PushAll(st.analysis.Factories...)

	for f := range st.worklist.Iter {
		for _, param := range f.Params {
			ref, ok := param.Source.(*RefSource)
			if !ok || !ref.placeholder {
				continue
			}

			if err := st.resolvePlaceholder(f, param, ref); err != nil {
				return err
			}
		}
	}

	return nil
}

func (st *analysisState) resolvePlaceholder(owner *FactoryProvider, param *ConstructorParam, ref *RefSource) error {
	// An earlier synthesis may already cover this type.
	if target, ok := st.typeKeys[typeKey(param.Type)]; ok {
		ref.Target = target
		ref.placeholder = false
		return nil
	}

	if ref.Target == "" {
		// No declared name to synthesize a provider under.
		return &UnresolvedDependencyError{Provider: owner.Name, Param: param.Name}
	}

	class, err := st.classifier.Classify(param.Type)
	if err != nil {
		return fmt.Errorf("provider %q parameter %q: %w", owner.Name, param.Name, err)
	}

	name := st.names.GetName(ref.Target)

	switch class.Kind {
	case KindFactory:
		// Register the key before resolving parameters so self and mutual
		// references bind to this provider instead of synthesizing again.
		st.typeKeys[typeKey(param.Type)] = name

		slog.Debug("synthesizing factory provider",
			"name", name,
			"type", types.TypeString(class.Type, nil),
			"requiredBy", owner.Name,
		)

		f, err := st.buildFactory(name, class, true)
		if err != nil {
			return err
		}
		if err := st.addFactory(f); err != nil {
			return err
		}
		st.worklist.Push(f)

	case KindExternal:
		st.typeKeys[typeKey(param.Type)] = name

		slog.Debug("synthesizing external provider",
			"name", name,
			"type", types.TypeString(class.Type, nil),
			"requiredBy", owner.Name,
		)

		if err := st.addExternal(&ExternalProvider{
			Name:        name,
			Type:        class.Type,
			Required:    true,
			Synthesized: true,
		}); err != nil {
			return err
		}

	default:
		return &UnresolvedDependencyError{Provider: owner.Name, Param: param.Name}
	}

	ref.Target = name
	ref.placeholder = false
	return nil
}

func (st *analysisState) applyTransients(names []string) error {
	for _, name := range names {
		f, ok := st.analysis.Factory(name)
		if !ok {
			return fmt.Errorf("transient option names %q, which is not a factory provider", name)
		}

		f.Transient = true
	}

	return nil
}

func (st *analysisState) addFactory(f *FactoryProvider) error {
	if err := st.registerProvider(f); err != nil {
		return err
	}

	st.analysis.Factories = append(st.analysis.Factories, f)
	return nil
}

func (st *analysisState) addExternal(e *ExternalProvider) error {
	if err := st.registerProvider(e); err != nil {
		return err
	}

	st.analysis.Externals = append(st.analysis.Externals, e)
	return nil
}

func (st *analysisState) addConfig(c *ConfigProvider) error {
	if err := st.registerProvider(c); err != nil {
		return err
	}

	st.analysis.Configs = append(st.analysis.Configs, c)
	return nil
}

func (st *analysisState) registerProvider(p Provider) error {
	if _, exists := st.analysis.byName[p.Key()]; exists {
		return fmt.Errorf("duplicate provider name %q", p.Key())
	}

	st.analysis.byName[p.Key()] = p
	return nil
}

// unwrapPointer removes one pointer wrapper and any alias layers.
func unwrapPointer(t types.Type) types.Type {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		return types.Unalias(ptr.Elem())
	}

	return t
}

// typeKey returns the resolution key for a type: the qualified declared
// name when there is one, otherwise the canonical type text.
func typeKey(t types.Type) string {
	t = unwrapPointer(t)
	if named, ok := t.(*types.Named); ok {
		return namedKey(named)
	}

	return types.TypeString(t, nil)
}

func namedKey(named *types.Named) string {
	obj := named.Obj()
	if obj.Pkg() != nil {
		return obj.Pkg().Path() + "." + obj.Name()
	}

	return obj.Name()
}

// placeholderName derives a provider name for an undeclared type; empty when
// the type has no declared name to derive one from.
func placeholderName(t types.Type) string {
	if named, ok := unwrapPointer(t).(*types.Named); ok {
		return strings.ToLowerCamel(named.Obj().Name())
	}

	return ""
}
