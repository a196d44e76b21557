package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxParallelLookups bounds provider calls made by LookupMany.
const maxParallelLookups = 8

// Service fronts a Source with a short-lived cache and collapses
// concurrent lookups of the same symbol into one provider call.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	log    *zap.Logger
}

// NewService wires a source and cache. A ttl of zero disables caching.
func NewService(source Source, cache Cache, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{source: source, cache: cache, ttl: ttl, log: log}
}

func (s *Service) caching() bool {
	return s.cache != nil && s.ttl > 0
}

// Lookup returns the current quote for symbol. Unknown symbols yield ErrNotFound.
func (s *Service) Lookup(ctx context.Context, symbol string) (Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return Quote{}, ErrNotFound
	}

	if s.caching() {
		q, ok, err := s.cache.Get(ctx, symbol)
		if err != nil {
			s.log.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ok {
			return q, nil
		}
	}

	// The shared call outlives any single caller; the client timeout bounds it.
	ch := s.group.DoChan(symbol, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		q, err := s.source.Lookup(fctx, symbol)
		if err != nil {
			return Quote{}, err
		}
		if s.caching() {
			if cerr := s.cache.Set(fctx, symbol, q, s.ttl); cerr != nil {
				s.log.Warn("quote cache write failed", zap.String("symbol", symbol), zap.Error(cerr))
			}
		}
		return q, nil
	})

	select {
	case <-ctx.Done():
		return Quote{}, fmt.Errorf("quote.Lookup %s -> %w", symbol, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotFound) {
				return Quote{}, ErrNotFound
			}
			return Quote{}, fmt.Errorf("quote.Lookup %s -> %w", symbol, res.Err)
		}
		return res.Val.(Quote), nil
	}
}

// LookupMany prices every symbol in parallel. The first failure cancels the rest.
func (s *Service) LookupMany(ctx context.Context, symbols []string) (map[string]Quote, error) {
	results := make([]Quote, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := s.Lookup(gctx, sym)
			if err != nil {
				return err
			}
			results[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes := make(map[string]Quote, len(symbols))
	for i, sym := range symbols {
		quotes[Normalize(sym)] = results[i]
	}
	return quotes, nil
}
