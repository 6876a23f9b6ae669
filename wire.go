// Package loom provides type-directed dependency wiring for Go: declarative
// directives that drive code generation, and the runtime container that the
// generated assemblies build on.
package loom

// name represents an identifier for generated assembly functions.
type name string

// option is a marker interface implemented by all Wire directive options.
// Options are read statically by the loom code generator; their runtime
// values carry no behavior.
type option interface {
	option()
}

// entryOption narrows an assembly to one entry provider.
type entryOption struct {
	name string
}

// option implements the option interface for entryOption.
func (entryOption) option() {}

// Entry restricts the generated assembly to the named provider and the
// providers transitively reachable from it. Everything else declared in the
// wired struct is dropped from the generated file, including its
// configuration and override slots.
//
// Example:
//
//	var _ = loom.Wire[Services]("app", loom.Entry("userService"))
func Entry(name string) entryOption {
	return entryOption{name: name}
}

// transientOption marks providers that are rebuilt on every Get.
type transientOption struct {
	names []string
}

// option implements the option interface for transientOption.
func (transientOption) option() {}

// Transient marks the named providers as transient: every Get constructs a
// fresh value instead of caching one per scope.
//
// Example:
//
//	var _ = loom.Wire[Services]("app", loom.Transient("requestTracer"))
func Transient(names ...string) transientOption {
	return transientOption{names: names}
}

// Wire declares a wiring directive. The type argument is a struct whose
// fields name the services to assemble; the generator classifies each field,
// discovers transitively required constructors, rejects cycles, and emits a
// New<Name>Container assembly function into a *_loom.go file beside the
// directive.
//
// The generated file contains:
//  1. a config schema struct with one field per constructor that takes
//     primitive parameters,
//  2. a providers schema struct with one field per externally supplied
//     dependency and one optional override per generated factory,
//  3. the assembly function itself, registering every provider on a
//     Container in dependency order. Non-nil overrides replace the
//     generated factories after registration, so caller entries win.
//
// Example:
//
//	type Services struct {
//		DB          Database
//		UserService UserService
//		Logger      Logger
//	}
//
//	var _ = loom.Wire[Services]("app")
//
// Use go:generate to trigger code generation:
//
//	//go:generate go tool loom $GOFILE
func Wire[T any](name name, opts ...option) struct{} {
	// This call is analyzed statically by the loom code generator. The
	// assembly it describes is generated and written to *_loom.go files.
	return struct{}{}
}
