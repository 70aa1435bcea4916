// Package recordstore defines the record store collaborators the planner
// executes against: a metadata API, the fixed DirectCall operations and a
// read-only query runner. Dialect-specific adapters live in subpackages and
// register themselves at init time.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Invoker runs one of the fixed DirectCall operations.
type Invoker interface {
	Invoke(ctx context.Context, call *models.DirectCall) (*models.ResultSet, error)
}

// ReadOnlyRunner runs a generated query so that it cannot change data,
// whatever the query text says.
type ReadOnlyRunner interface {
	RunReadOnly(ctx context.Context, query string) (*models.ResultSet, error)
}

// Store is a complete record store backend.
type Store interface {
	schema.Source
	Invoker
	ReadOnlyRunner

	Dialect() sql.Dialect
	Ping(ctx context.Context) error
	Close() error
}

// Options are the store behaviours shared by all dialects.
type Options struct {
	TablePrefix  string
	DefaultLimit int
	MaxLimit     int
	// DefaultOrderBy applies to search_records without order_by.
	DefaultOrderBy string
}

// DefaultSearchLimit is the search_records limit when the plan sets none.
const DefaultSearchLimit = 20

// OptionsFromConfig derives store options from planner configuration.
func OptionsFromConfig(cfg config.PlannerConfig) Options {
	return Options{
		TablePrefix:    cfg.TablePrefix,
		DefaultLimit:   DefaultSearchLimit,
		MaxLimit:       cfg.ResultLimit,
		DefaultOrderBy: "modified desc",
	}
}

// EffectiveLimit applies the default and the cap to a requested limit.
func (o Options) EffectiveLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = o.DefaultLimit
	}
	if o.MaxLimit > 0 && limit > o.MaxLimit {
		limit = o.MaxLimit
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return limit
}

// Registration describes a dialect adapter.
type Registration struct {
	Dialect     sql.Dialect
	DisplayName string
	// Enabled reports whether the configuration asks for this store.
	Enabled func(cfg *config.Config) bool
	Factory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[sql.Dialect]Registration)
)

// Register is called by each adapter's init function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Dialect] = reg
}

// Registered returns the registered dialects sorted by name.
func Registered() []sql.Dialect {
	registryMu.RLock()
	defer registryMu.RUnlock()

	dialects := make([]sql.Dialect, 0, len(registry))
	for d := range registry {
		dialects = append(dialects, d)
	}
	sort.Slice(dialects, func(i, j int) bool { return dialects[i] < dialects[j] })
	return dialects
}

// Lookup returns the registration for a dialect.
func Lookup(d sql.Dialect) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[d]
	return reg, ok
}

// Open creates every enabled store. The store for primary must be
// registered and enabled; it serves metadata and DirectCall operations.
func Open(ctx context.Context, cfg *config.Config, primary sql.Dialect, logger *zap.Logger) (*Set, error) {
	reg, ok := Lookup(primary)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDialectNotRegistered, primary)
	}
	if reg.Enabled != nil && !reg.Enabled(cfg) {
		return nil, fmt.Errorf("record store %s is not configured", primary)
	}

	primaryStore, err := reg.Factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s record store: %w", reg.DisplayName, err)
	}
	set := NewSet(primaryStore)

	for _, d := range Registered() {
		if d == primary {
			continue
		}
		other, _ := Lookup(d)
		if other.Enabled == nil || !other.Enabled(cfg) {
			continue
		}
		store, err := other.Factory(ctx, cfg, logger)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("open %s record store: %w", other.DisplayName, err)
		}
		set.Add(store)
	}
	return set, nil
}

// ErrDialectNotRegistered is returned when no adapter serves a dialect.
var ErrDialectNotRegistered = errors.New("no record store registered for dialect")

// Set holds the primary store plus read-only runners for other dialects.
type Set struct {
	primary   Store
	byDialect map[sql.Dialect]Store
}

// NewSet creates a set around the primary store.
func NewSet(primary Store, others ...Store) *Set {
	s := &Set{
		primary:   primary,
		byDialect: map[sql.Dialect]Store{primary.Dialect(): primary},
	}
	for _, o := range others {
		s.Add(o)
	}
	return s
}

// Add registers an additional store. The primary store is never replaced.
func (s *Set) Add(store Store) {
	if _, exists := s.byDialect[store.Dialect()]; exists {
		return
	}
	s.byDialect[store.Dialect()] = store
}

// Primary returns the store serving metadata and DirectCall operations.
func (s *Set) Primary() Store {
	return s.primary
}

// Runner returns the read-only runner for a dialect.
func (s *Set) Runner(d sql.Dialect) (ReadOnlyRunner, bool) {
	store, ok := s.byDialect[d]
	return store, ok
}

// Dialects returns the dialects with a runner, sorted.
func (s *Set) Dialects() []sql.Dialect {
	dialects := make([]sql.Dialect, 0, len(s.byDialect))
	for d := range s.byDialect {
		dialects = append(dialects, d)
	}
	sort.Slice(dialects, func(i, j int) bool { return dialects[i] < dialects[j] })
	return dialects
}

// Ping checks every store.
func (s *Set) Ping(ctx context.Context) error {
	for _, d := range s.Dialects() {
		if err := s.byDialect[d].Ping(ctx); err != nil {
			return fmt.Errorf("ping %s: %w", d, err)
		}
	}
	return nil
}

// Close closes every store.
func (s *Set) Close() error {
	var errs []error
	for _, store := range s.byDialect {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
