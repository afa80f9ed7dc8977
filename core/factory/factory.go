package factory

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// ErrUnknownType is returned for module types without a registered factory.
var ErrUnknownType = errors.New("unknown module type")

// ModuleConfig selects a module implementation and carries its settings.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory builds a module from its raw settings.
type Factory[T any] func(conf map[string]any) (T, error)

// Registry maps module types to factories. kind names what the registry
// builds in error messages ("metrics sink", "dispatch log store").
type Registry[T any] struct {
	kind string

	mu     sync.RWMutex
	byType map[string]Factory[T]
}

// NewRegistry returns an empty registry for modules of the given kind.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, byType: make(map[string]Factory[T])}
}

// Register binds typ to f. A type can be bound once.
func (r *Registry[T]) Register(typ string, f Factory[T]) error {
	switch {
	case typ == "":
		return fmt.Errorf("%s: empty type name", r.kind)
	case f == nil:
		return fmt.Errorf("%s %q: nil factory", r.kind, typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byType[typ]; dup {
		return fmt.Errorf("%s %q: already registered", r.kind, typ)
	}
	r.byType[typ] = f
	return nil
}

// MustRegister is Register for init functions. It panics on a duplicate.
func (r *Registry[T]) MustRegister(typ string, f Factory[T]) {
	if err := r.Register(typ, f); err != nil {
		panic(err)
	}
}

// Types returns the registered type names, sorted.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byType))
	for typ := range r.byType {
		names = append(names, typ)
	}
	slices.Sort(names)
	return names
}

// Create builds the module described by cfg.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	f, ok := r.byType[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w %q (registered: %s)",
			r.kind, ErrUnknownType, cfg.Type, strings.Join(r.Types(), ", "))
	}
	m, err := f(cfg.Conf)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", r.kind, cfg.Type, err)
	}
	return m, nil
}

// CreateAll builds every module. All failures are reported together and
// no module is returned when any fails.
func (r *Registry[T]) CreateAll(cfgs []ModuleConfig) ([]T, error) {
	out := make([]T, 0, len(cfgs))
	var errs []error
	for i, c := range cfgs {
		m, err := r.Create(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("#%d: %w", i, err))
			continue
		}
		out = append(out, m)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Decode copies conf into the struct pointed to by out using json tags.
// Scalars given as strings are converted, durations accept "500ms" style
// values, and keys the struct does not declare are rejected.
func Decode(conf map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(conf)
}
