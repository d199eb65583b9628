// Package codetables serves the registration service's code tables through
// a byte cache.
package codetables

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/cache"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
)

const DefaultTTL = 24 * time.Hour

type Fetcher interface {
	CodeTable(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error)
}

type Service struct {
	fetcher Fetcher
	cache   cache.BytesCache
	ttl     time.Duration
}

// New accepts a nil cache.
func New(f Fetcher, c cache.BytesCache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{fetcher: f, cache: c, ttl: ttl}
}

// Lookup returns the table from cache, fetching and storing it on a miss.
// Cache failures fall through to the service.
func (s *Service) Lookup(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	key := cacheKey(kind)
	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("code table cache get failed", "kind", string(kind), "error", err.Error())
	} else if ok {
		var entries []ubyport.CodeEntry
		if json.Unmarshal(b, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := s.fetcher.CodeTable(ctx, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch code table %s", kind)
	}
	if b, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			slog.Warn("code table cache set failed", "kind", string(kind), "error", err.Error())
		}
	}
	return entries, nil
}

func (s *Service) Invalidate(ctx context.Context, kinds ...ubyport.CodeTableKind) error {
	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, cacheKey(k))
	}
	return s.cache.Delete(ctx, keys...)
}

// CountryAliases maps every Czech and English country name of the Staty
// table to its alpha-3 code, for use as validator aliases.
func (s *Service) CountryAliases(ctx context.Context) (map[string]string, error) {
	entries, err := s.Lookup(ctx, ubyport.CodeTableCountries)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries)*4)
	for _, e := range entries {
		if len(e.Code3) != 3 {
			continue
		}
		for _, name := range []string{e.TextCZ, e.ShortCZ, e.TextEN, e.ShortEN} {
			if name != "" {
				out[name] = e.Code3
			}
		}
	}
	return out, nil
}

func cacheKey(kind ubyport.CodeTableKind) string {
	return "codetable:" + string(kind)
}
