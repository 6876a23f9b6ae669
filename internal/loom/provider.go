// Package loom implements the wiring compiler behind the loom command: type
// classification, provider analysis with transitive discovery, cycle
// detection and ordering, reachability reduction, and code generation.
package loom

import (
	"fmt"
	"go/token"
	"go/types"
)

// Kind partitions wired types by how their values come to exist.
type Kind int

const (
	// KindFactory marks constructible types: named structs whose defining
	// package declares a matching constructor.
	KindFactory Kind = iota
	// KindExternal marks types only the caller can supply: interfaces and
	// function shapes.
	KindExternal
	// KindConfig marks plain data: primitives, enum-like declarations, and
	// record shapes.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindFactory:
		return "factory"
	case KindExternal:
		return "external"
	case KindConfig:
		return "config"
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Classification is the classifier's verdict for one type.
type Classification struct {
	Kind Kind
	// Type is the type the verdict applies to, pointer wrappers removed.
	Type types.Type
	// Optional records that the declared type was wrapped in a pointer.
	// Factories never set it: a pointer there is the constructor's natural
	// return shape.
	Optional bool
	// Ctor is the constructor resolved for KindFactory.
	Ctor *types.Func
	// CtorReturnsErr records whether Ctor's last result is error.
	CtorReturnsErr bool
}

// Directive is one parsed loom.Wire call.
type Directive struct {
	// AssemblyName is the name of the generated assembly function.
	AssemblyName string
	// Spec is the wired aggregate: the type argument of the Wire call.
	Spec types.Type
	// Entry is the provider name chosen by loom.Entry, or empty.
	Entry string
	// Transients lists provider names marked by loom.Transient.
	Transients []string
	// PackageName and PackagePath identify the package the directive was
	// found in; the generated file joins the same package.
	PackageName string
	PackagePath string
	// Pos locates the Wire call for error reporting.
	Pos token.Position
}

// Provider is the closed set of provider records produced by analysis.
type Provider interface {
	provider()
	// Key returns the provider's registration name in the assembly.
	Key() string
}

// FactoryProvider is a provider the generated assembly constructs by calling
// the type's constructor.
type FactoryProvider struct {
	Name string
	// Type is the declared named type.
	Type types.Type
	Ctor *types.Func
	// Result is the constructor's value result type (T or *T), which is
	// what the assembly registers under Name.
	Result types.Type
	// ReturnsErr records whether Ctor's last result is error.
	ReturnsErr bool
	Params     []*ConstructorParam
	// Transient marks the provider for per-Get construction.
	Transient bool
	// Synthesized marks providers added by transitive discovery rather than
	// declared in the wired struct.
	Synthesized bool
}

// provider implements the Provider interface for FactoryProvider.
func (*FactoryProvider) provider() {}

func (p *FactoryProvider) Key() string { return p.Name }

// ExternalProvider is a provider the caller must supply through the
// providers schema: an interface or function shape with no constructor.
type ExternalProvider struct {
	Name string
	Type types.Type
	// Required is cleared when the wired field was a pointer.
	Required bool
	// Synthesized marks providers added for dangling constructor
	// parameters rather than declared in the wired struct.
	Synthesized bool
}

// provider implements the Provider interface for ExternalProvider.
func (*ExternalProvider) provider() {}

func (p *ExternalProvider) Key() string { return p.Name }

// ConfigProvider is a configuration value: either a top-level entry of the
// wired struct or an inlined constructor parameter. Record shapes carry
// their exported fields recursively.
type ConfigProvider struct {
	// Name is the schema name, lower camel.
	Name string
	// GoName is the original field identifier when the value mirrors a
	// struct field; empty for parameter-derived values.
	GoName   string
	Type     types.Type
	Optional bool
	// Fields lists the exported fields of a record shape in declaration
	// order; nil for leaf values.
	Fields []*ConfigProvider
}

// provider implements the Provider interface for ConfigProvider.
func (*ConfigProvider) provider() {}

func (p *ConfigProvider) Key() string { return p.Name }

// ConstructorParam is one constructor parameter and the strategy the
// generated assembly uses to fill it.
type ConstructorParam struct {
	Name   string
	Type   types.Type
	Source ParamSource
}

// ParamSource is the closed set of parameter fill strategies.
type ParamSource interface {
	paramSource()
}

// ConfigSource fills a parameter from the generated config schema.
type ConfigSource struct {
	Config *ConfigProvider
}

// paramSource implements the ParamSource interface for ConfigSource.
func (*ConfigSource) paramSource() {}

// RefSource fills a parameter by resolving another provider from the
// container.
type RefSource struct {
	// Target is the provider name to resolve.
	Target string
	// placeholder marks targets named during parameter resolution that
	// transitive discovery still has to confirm or synthesize. None remain
	// in a completed analysis.
	placeholder bool
}

// paramSource implements the ParamSource interface for RefSource.
func (*RefSource) paramSource() {}

// Analysis is the complete provider set for one directive.
type Analysis struct {
	Directive *Directive
	// PackageName is the package of the generated file.
	PackageName string
	// PackagePath is its import path; self-imports are elided when
	// rendering types.
	PackagePath string

	Factories []*FactoryProvider
	Externals []*ExternalProvider
	Configs   []*ConfigProvider

	byName map[string]Provider
}

// Provider returns the provider registered under name.
func (a *Analysis) Provider(name string) (Provider, bool) {
	p, ok := a.byName[name]
	return p, ok
}

// Factory returns the factory provider registered under name.
func (a *Analysis) Factory(name string) (*FactoryProvider, bool) {
	f, ok := a.byName[name].(*FactoryProvider)
	return f, ok
}

// Import records one import of the generated file.
type Import struct {
	// Name is the package identifier used in rendered expressions.
	Name string
	// IsDefaultName is cleared when Name is an alias the name pool had to
	// allocate to avoid a collision.
	IsDefaultName bool
}

// MetaData carries the output file's package identity and import table while
// the generator renders declarations.
type MetaData struct {
	PackageName string
	PackagePath string
	Imports     map[string]*Import
}

func NewMetaData(pkgName, pkgPath string) *MetaData {
	return &MetaData{
		PackageName: pkgName,
		PackagePath: pkgPath,
		Imports:     make(map[string]*Import),
	}
}
