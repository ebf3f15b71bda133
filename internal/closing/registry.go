package closing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeprecatedCheckKeys maps retired check keys to the key that absorbed them.
// Deprecated keys never appear in listings and never execute; their catalog
// rows stay in place for audit history.
var DeprecatedCheckKeys = map[string]string{
	"ar_uncleared": CheckKeyAROverdue,
}

const checkItemCacheTTL = 5 * time.Minute

// CatalogSource loads raw check item rows, global and tenant mixed.
type CatalogSource interface {
	CheckItemRows(ctx context.Context, companyCode string) ([]CheckItem, error)
}

// Registry serves the effective check item catalog for a tenant: active
// rows only, tenant definitions shadowing global ones per item key,
// deprecated keys dropped, ordered by (priority, itemKey). Results are
// cached in Redis; cache trouble falls through to Postgres.
type Registry struct {
	source CatalogSource
	cache  *redis.Client
	logger *slog.Logger
}

// NewRegistry constructs a Registry. cache may be nil.
func NewRegistry(source CatalogSource, cache *redis.Client, logger *slog.Logger) *Registry {
	return &Registry{source: source, cache: cache, logger: logger}
}

func checkItemCacheKey(companyCode string) string {
	return fmt.Sprintf("closing:check-items:%s", companyCode)
}

// ListCheckItems returns the effective catalog for one tenant.
func (reg *Registry) ListCheckItems(ctx context.Context, companyCode string) ([]CheckItem, error) {
	if reg.cache != nil {
		raw, err := reg.cache.Get(ctx, checkItemCacheKey(companyCode)).Bytes()
		if err == nil {
			var items []CheckItem
			if jsonErr := json.Unmarshal(raw, &items); jsonErr == nil {
				return items, nil
			}
		} else if err != redis.Nil {
			reg.logger.Warn("check item cache read failed", slog.Any("error", err))
		}
	}

	rows, err := reg.source.CheckItemRows(ctx, companyCode)
	if err != nil {
		return nil, err
	}
	items := effectiveCatalog(rows)

	if reg.cache != nil {
		if raw, err := json.Marshal(items); err == nil {
			if err := reg.cache.Set(ctx, checkItemCacheKey(companyCode), raw, checkItemCacheTTL).Err(); err != nil {
				reg.logger.Warn("check item cache write failed", slog.Any("error", err))
			}
		}
	}
	return items, nil
}

// Invalidate drops the cached catalog for one tenant.
func (reg *Registry) Invalidate(ctx context.Context, companyCode string) {
	if reg.cache == nil {
		return
	}
	if err := reg.cache.Del(ctx, checkItemCacheKey(companyCode)).Err(); err != nil {
		reg.logger.Warn("check item cache invalidate failed", slog.Any("error", err))
	}
}

func effectiveCatalog(rows []CheckItem) []CheckItem {
	byKey := make(map[string]CheckItem, len(rows))
	for _, row := range rows {
		existing, ok := byKey[row.ItemKey]
		if !ok {
			byKey[row.ItemKey] = row
			continue
		}
		// Tenant rows shadow global rows.
		if existing.CompanyCode == nil && row.CompanyCode != nil {
			byKey[row.ItemKey] = row
		}
	}

	items := make([]CheckItem, 0, len(byKey))
	for key, item := range byKey {
		if !item.IsActive {
			continue
		}
		if _, deprecated := DeprecatedCheckKeys[key]; deprecated {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].ItemKey < items[j].ItemKey
	})
	return items
}
