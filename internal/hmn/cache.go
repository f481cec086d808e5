package hmn

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arclight-labs/maker/internal/model"
)

// queryCache memoises query_with_context results by (task, top_k) with a
// time-to-live, per spec §4.4: "results are memoised by (task, top_k) with a
// time-to-live."
type queryCache struct {
	entries *lru.Cache[string, cachedQuery]
	ttl     time.Duration
}

type cachedQuery struct {
	result  model.QueryResult
	expires time.Time
}

func newQueryCache(size int, ttl time.Duration) *queryCache {
	if size <= 0 {
		size = 1
	}
	entries, _ := lru.New[string, cachedQuery](size)
	return &queryCache{entries: entries, ttl: ttl}
}

func queryCacheKey(task string, topK int) string {
	return fmt.Sprintf("%d::%s", topK, task)
}

func (c *queryCache) get(task string, topK int) (model.QueryResult, bool) {
	entry, ok := c.entries.Get(queryCacheKey(task, topK))
	if !ok || time.Now().After(entry.expires) {
		return model.QueryResult{}, false
	}
	return entry.result, true
}

func (c *queryCache) put(task string, topK int, result model.QueryResult) {
	c.entries.Add(queryCacheKey(task, topK), cachedQuery{result: result, expires: time.Now().Add(c.ttl)})
}
