// Package registry is a type-indexed dependency store: handlers pull out
// whatever shared state they need (a DB pool, a config struct, ...) by
// type rather than by name.
package registry

import "reflect"

// Registry holds at most one value per concrete type. It is built once
// and frozen before the server starts serving; reads never take a lock.
type Registry struct {
	values map[reflect.Type]any
}

// Builder accumulates values before Freeze produces an immutable Registry.
type Builder struct {
	values map[reflect.Type]any
}

func NewBuilder() *Builder {
	return &Builder{values: make(map[reflect.Type]any)}
}

// Insert records v under its own type, overwriting any prior value of
// the same type.
func Insert[T any](b *Builder, v T) *Builder {
	b.values[reflect.TypeOf(v)] = v
	return b
}

// Freeze produces the immutable Registry. The Builder must not be reused
// afterwards.
func (b *Builder) Freeze() *Registry {
	return &Registry{values: b.values}
}

// Get retrieves the value registered for type T, if any.
func Get[T any](r *Registry) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	v, ok := r.values[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// MustGet retrieves the value registered for type T, panicking if it is
// absent - for dependencies a handler cannot function without.
func MustGet[T any](r *Registry) T {
	v, ok := Get[T](r)
	if !ok {
		var zero T
		panic("registry: no value registered for type " + reflect.TypeOf(zero).String())
	}
	return v
}
