package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis based caching of predictor output, so dashboards can
// poll suggestions without re-running the aggregation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client degrades to
// pass-through loading.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func suggestionKey(companyID int64) string {
	return strings.Join([]string{"forecast", "suggestions", strconv.FormatInt(companyID, 10)}, ":")
}

// FetchSuggestions loads cached suggestions or populates them via loader.
func (c *Cache) FetchSuggestions(ctx context.Context, companyID int64, loader func(context.Context) ([]Suggestion, error)) ([]Suggestion, error) {
	if loader == nil {
		return nil, errors.New("forecast: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := suggestionKey(companyID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []Suggestion
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
		// fall through on corrupt payload
	} else if err != redis.Nil {
		return nil, err
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return value, nil
}

// Invalidate drops the cached suggestions after a fresh run.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, suggestionKey(companyID)).Err()
}
