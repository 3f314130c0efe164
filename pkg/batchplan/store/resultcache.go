package store

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
)

// resultSchemaVersion participates in result cache keys so records from
// an incompatible layout never replay.
const resultSchemaVersion = 1

// ResultKey identifies one cached execution: which function, over how
// many items, under which schema.
type ResultKey struct {
	Task       string
	TotalItems int
	Schema     int
}

// NewResultKey builds a key for the current schema version.
func NewResultKey(task string, totalItems int) ResultKey {
	return ResultKey{Task: task, TotalItems: totalItems, Schema: resultSchemaVersion}
}

func (k ResultKey) String() string {
	return fmt.Sprintf("v%d/%s/%d", k.Schema, k.Task, k.TotalItems)
}

// ResultCache is a bounded in-memory cache of execution results.
// A miss behaves identically to the cache being absent.
type ResultCache struct {
	entries *lru.Cache[ResultKey, []pool.Result]
}

// NewResultCache creates a cache holding up to capacity entries,
// evicting least-recently-used ones beyond that.
func NewResultCache(capacity int) (*ResultCache, error) {
	entries, err := lru.New[ResultKey, []pool.Result](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &ResultCache{entries: entries}, nil
}

// Get returns the results cached under key, or ok=false on a miss.
func (c *ResultCache) Get(key ResultKey) ([]pool.Result, bool) {
	return c.entries.Get(key)
}

// Put stores results under key.
func (c *ResultCache) Put(key ResultKey, results []pool.Result) {
	c.entries.Add(key, results)
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}
