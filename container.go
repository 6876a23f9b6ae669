package loom

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

// Factory builds one value inside a container. Generated assemblies register
// one factory per provider.
type Factory func(c *Container) (any, error)

type registration struct {
	build     Factory
	transient bool
}

// definitions is the registration table shared by a root container and every
// scope created from it. Later registrations under the same key replace
// earlier ones, which is how assembly overrides win.
type definitions struct {
	mu   sync.RWMutex
	regs map[string]*registration
}

func (d *definitions) set(key string, reg *registration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.regs[key] = reg
}

func (d *definitions) get(key string) (*registration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	reg, ok := d.regs[key]
	return reg, ok
}

// entry holds one cached value. The sync.Once serializes concurrent Gets of
// the same key so the factory runs at most once per scope.
type entry struct {
	once sync.Once
	v    any
	err  error
}

// scopeState is the per-scope cache. Scopes created from the same root share
// definitions but never share scopeState.
type scopeState struct {
	mu      sync.Mutex
	entries map[string]*entry
	built   []string // keys in completion order, for Dispose
}

func newScopeState() *scopeState {
	return &scopeState{
		entries: make(map[string]*entry),
	}
}

func (s *scopeState) entry(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}

	return e
}

func (s *scopeState) recordBuilt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.built = append(s.built, key)
}

// Container is a lazy, cache-backed service locator. Values are constructed
// on first Get and cached for the lifetime of the scope; transient
// registrations are rebuilt on every Get. Containers are safe for concurrent
// use.
type Container struct {
	defs  *definitions
	scope *scopeState

	// chain lists the keys under construction in the current call chain.
	// Factories receive a child container carrying the extended chain, so a
	// re-entrant request for an in-flight key is reported as a cycle instead
	// of deadlocking.
	chain []string
}

// New returns an empty root container.
func New() *Container {
	return &Container{
		defs: &definitions{
			regs: make(map[string]*registration),
		},
		scope: newScopeState(),
	}
}

// CreateScope returns a container that shares this container's provider
// definitions but caches values independently. Disposing a scope never
// touches values cached by its parent or siblings.
func (c *Container) CreateScope() *Container {
	return &Container{
		defs:  c.defs,
		scope: newScopeState(),
	}
}

// Dispose drops every value cached in this scope, closing the ones that
// implement io.Closer in reverse completion order so dependents close before
// their dependencies. Close failures are collected and returned together.
// The container stays usable; subsequent Gets rebuild.
func (c *Container) Dispose() error {
	c.scope.mu.Lock()
	entries := c.scope.entries
	built := c.scope.built
	c.scope.entries = make(map[string]*entry)
	c.scope.built = nil
	c.scope.mu.Unlock()

	var errs error
	for i := len(built) - 1; i >= 0; i-- {
		key := built[i]
		e, ok := entries[key]
		if !ok || e.err != nil {
			continue
		}

		closer, ok := e.v.(io.Closer)
		if !ok {
			continue
		}

		if err := closer.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %q: %w", key, err))
		}
	}

	return errs
}

// Provide registers a singleton factory under key. Registering the same key
// again replaces the previous factory.
func Provide[T any](c *Container, key string, build func(*Container) (T, error)) {
	c.defs.set(key, &registration{
		build: func(c *Container) (any, error) {
			return build(c)
		},
	})
}

// ProvideTransient registers a factory whose value is rebuilt on every Get
// instead of cached.
func ProvideTransient[T any](c *Container, key string, build func(*Container) (T, error)) {
	c.defs.set(key, &registration{
		build: func(c *Container) (any, error) {
			return build(c)
		},
		transient: true,
	})
}

// ProvideValue registers an already-constructed value under key.
func ProvideValue[T any](c *Container, key string, v T) {
	Provide(c, key, func(*Container) (T, error) {
		return v, nil
	})
}

// Get returns the value registered under key, constructing it on first use.
// Singleton values are cached per scope; transient values are rebuilt on
// every call. A request for a key with no registration fails with
// MissingProviderError, and a factory that requests a key already under
// construction in the same call chain fails with CycleError.
func Get[T any](c *Container, key string) (T, error) {
	var zero T

	reg, ok := c.defs.get(key)
	if !ok {
		return zero, &MissingProviderError{Key: key}
	}

	for _, k := range c.chain {
		if k == key {
			return zero, &CycleError{Chain: append(append([]string{}, c.chain...), key)}
		}
	}

	child := &Container{
		defs:  c.defs,
		scope: c.scope,
		chain: append(c.chain[:len(c.chain):len(c.chain)], key),
	}

	if reg.transient {
		v, err := reg.build(child)
		if err != nil {
			return zero, fmt.Errorf("build %q: %w", key, err)
		}

		return assertType[T](key, v)
	}

	e := c.scope.entry(key)
	e.once.Do(func() {
		e.v, e.err = reg.build(child)
		if e.err == nil {
			c.scope.recordBuilt(key)
		}
	})
	if e.err != nil {
		return zero, fmt.Errorf("build %q: %w", key, e.err)
	}

	return assertType[T](key, e.v)
}

func assertType[T any](key string, v any) (T, error) {
	typed, ok := v.(T)
	if !ok {
		return typed, &TypeMismatchError{
			Key:  key,
			Want: reflect.TypeOf((*T)(nil)).Elem().String(),
			Got:  fmt.Sprintf("%T", v),
		}
	}

	return typed, nil
}

// MissingProviderError is returned by Get when no provider is registered
// under the requested key.
type MissingProviderError struct {
	Key string
}

func (e *MissingProviderError) Error() string {
	return fmt.Sprintf("no provider registered for %q", e.Key)
}

// CycleError is returned by Get when a factory requests a key that is
// already being constructed in the same call chain.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	msg := "dependency cycle"
	for i, key := range e.Chain {
		if i == 0 {
			msg += ": " + key
			continue
		}
		msg += " -> " + key
	}

	return msg
}

// TypeMismatchError is returned by Get when the requested type parameter
// does not match the registered provider's value.
type TypeMismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("provider %q built %s, requested %s", e.Key, e.Got, e.Want)
}
