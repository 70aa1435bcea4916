// Package schema supplies entity schema context to the planner. It wraps the
// record store's metadata API with a short-TTL cache and per-call timeouts.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Source is the record store metadata API.
type Source interface {
	// GetSchema returns the fields and children of entityType, or an error
	// wrapping apperrors.ErrEntityUnknown if no such entity type exists.
	GetSchema(ctx context.Context, entityType string) (*models.EntitySchema, error)
	// Exists reports whether an entity type with this exact name exists.
	Exists(ctx context.Context, entityType string) (bool, error)
	// ListEntityTypes returns every entity type name.
	ListEntityTypes(ctx context.Context) ([]string, error)
}

// Config controls caching and timeouts.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	// Timeout bounds each call to the Source.
	Timeout time.Duration
	// MaxParallel bounds concurrent Source calls in GetSchemas.
	MaxParallel int
}

// CachedProvider serves schemas from a TTL cache, deduplicating concurrent
// fetches of the same entity type.
type CachedProvider struct {
	source  Source
	cfg     Config
	schemas *ttlCache[*models.EntitySchema]
	exists  *ttlCache[bool]
	group   singleflight.Group
	logger  *zap.Logger
}

// NewCachedProvider creates a provider over source.
func NewCachedProvider(source Source, cfg Config, logger *zap.Logger) *CachedProvider {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &CachedProvider{
		source:  source,
		cfg:     cfg,
		schemas: newTTLCache[*models.EntitySchema](cfg.MaxEntries, cfg.TTL),
		exists:  newTTLCache[bool](cfg.MaxEntries, cfg.TTL),
		logger:  logger.Named("schema"),
	}
}

func cacheKey(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}

func (p *CachedProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}

// GetSchema returns the schema for one entity type.
func (p *CachedProvider) GetSchema(ctx context.Context, entityType string) (*models.EntitySchema, error) {
	key := cacheKey(entityType)
	if s, ok := p.schemas.get(key); ok {
		return s, nil
	}

	// The shared fetch runs detached from any single caller's cancellation;
	// each caller still waits no longer than its own context allows.
	ch := p.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := p.withTimeout(context.WithoutCancel(ctx))
		defer cancel()

		s, err := p.source.GetSchema(fetchCtx, entityType)
		if err != nil {
			return nil, err
		}
		p.schemas.set(key, s)
		p.exists.set(key, true)
		return s, nil
	})

	timeoutCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("get schema %q: %w", entityType, res.Err)
		}
		return res.Val.(*models.EntitySchema), nil
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("get schema %q: %w", entityType, timeoutCtx.Err())
	}
}

// GetSchemas fetches schemas for entityTypes in parallel, preserving input
// order. Unknown entity types are left out and returned in unknown; any
// other failure fails the whole call.
func (p *CachedProvider) GetSchemas(ctx context.Context, entityTypes []string) (models.SchemaSet, []string, error) {
	results := make([]*models.EntitySchema, len(entityTypes))
	unknownFlags := make([]bool, len(entityTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxParallel)

	for i, name := range entityTypes {
		g.Go(func() error {
			s, err := p.GetSchema(gctx, name)
			if errors.Is(err, apperrors.ErrEntityUnknown) {
				unknownFlags[i] = true
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	set := make(models.SchemaSet, 0, len(entityTypes))
	var unknown []string
	for i, s := range results {
		if unknownFlags[i] {
			unknown = append(unknown, entityTypes[i])
			continue
		}
		if s != nil && !set.Contains(s.EntityType) {
			set = append(set, s)
		}
	}

	if len(unknown) > 0 {
		p.logger.Warn("Dropping unknown entity types from schema context",
			zap.Strings("unknown", unknown))
	}
	return set, unknown, nil
}

// Exists reports whether entityType exists, consulting the cache first.
func (p *CachedProvider) Exists(ctx context.Context, entityType string) (bool, error) {
	key := cacheKey(entityType)
	if ok, found := p.exists.get(key); found {
		return ok, nil
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	ok, err := p.source.Exists(callCtx, entityType)
	if err != nil {
		return false, fmt.Errorf("check entity %q: %w", entityType, err)
	}
	p.exists.set(key, ok)
	return ok, nil
}

// ListEntityTypes returns every entity type known to the source.
func (p *CachedProvider) ListEntityTypes(ctx context.Context) ([]string, error) {
	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	names, err := p.source.ListEntityTypes(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	return names, nil
}

// Invalidate drops cached data for one entity type.
func (p *CachedProvider) Invalidate(entityType string) {
	key := cacheKey(entityType)
	p.schemas.delete(key)
	p.exists.delete(key)
}

// Purge drops all cached data.
func (p *CachedProvider) Purge() {
	p.schemas.purge()
	p.exists.purge()
}
