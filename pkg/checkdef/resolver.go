package checkdef

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates no definition exists for the requested check.
var ErrNotFound = errors.New("check definition not found")

// NotFoundError names the definition that could not be resolved.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in check settings", e.Name)
}

// Is reports ErrNotFound equivalence so callers can match with errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Source fetches definitions that are not present locally.
type Source interface {
	Check(ctx context.Context, name string) (Definition, error)
}

// Resolver looks up the aggregate (cluster) check and the per-node (target)
// check definitions.
type Resolver struct {
	checks   map[string]Definition
	fallback Source
	override *Definition
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithFallback consults src for target checks missing from the local settings.
func WithFallback(src Source) ResolverOption {
	return func(r *Resolver) {
		r.fallback = src
	}
}

// WithClusterOverride replaces every cluster check lookup with def.
func WithClusterOverride(def Definition) ResolverOption {
	return func(r *Resolver) {
		copied := def
		r.override = &copied
	}
}

// NewResolver builds a resolver over locally configured definitions.
func NewResolver(checks map[string]Definition, opts ...ResolverOption) *Resolver {
	r := &Resolver{checks: checks}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClusterCheckName returns the settings key of the aggregate check.
func ClusterCheckName(cluster, check string) string {
	return cluster + "_" + check
}

// ClusterCheck returns the aggregate check definition for (cluster, check).
func (r *Resolver) ClusterCheck(cluster, check string) (Definition, error) {
	if r.override != nil {
		return *r.override, nil
	}
	name := ClusterCheckName(cluster, check)
	def, ok := r.checks[name]
	if !ok {
		return Definition{}, &NotFoundError{Name: name}
	}
	if def.Name == "" {
		def.Name = name
	}
	return def, nil
}

// TargetCheck returns the definition of the per-node check, consulting the
// fallback source when it is not configured locally.
func (r *Resolver) TargetCheck(ctx context.Context, check string) (Definition, error) {
	if def, ok := r.checks[check]; ok {
		if def.Name == "" {
			def.Name = check
		}
		return def, nil
	}
	if r.fallback == nil {
		return Definition{}, &NotFoundError{Name: check}
	}
	def, err := r.fallback.Check(ctx, check)
	if err != nil {
		return Definition{}, err
	}
	if def.Name == "" {
		def.Name = check
	}
	return def, nil
}
