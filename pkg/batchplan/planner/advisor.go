package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// schemaVersion participates in decision cache keys so records written
// by an older planner are never replayed against a newer cost model.
const schemaVersion = 1

// Hint is a precomputed plan from an external advisor. The planner
// accepts it only above the caller's confidence threshold; otherwise it
// runs the full measurement path.
type Hint struct {
	// Workers is the advised worker count.
	Workers int

	// BatchSize is the advised batch size.
	BatchSize int

	// Confidence is the advisor's self-reported confidence in [0, 1].
	Confidence float64

	// Backend optionally names the advised backend. Empty defaults to
	// shared-memory workers, the choice with no transferability
	// precondition.
	Backend types.Backend
}

// acceptHint checks whether the constraints carry a usable hint.
func (p *Planner) acceptHint(cons Constraints) (types.Decision, bool) {
	h := cons.Hint
	if h == nil || cons.HintConfidence <= 0 || h.Confidence < cons.HintConfidence {
		return types.Decision{}, false
	}
	if h.Workers < 1 || h.BatchSize < 1 {
		return types.Decision{}, false
	}

	backend := h.Backend
	if backend == "" {
		backend = types.BackendShared
	}

	return types.Decision{
		ID:               uuid.NewString(),
		Workers:          h.Workers,
		BatchSize:        h.BatchSize,
		Backend:          backend,
		EstimatedSpeedup: float64(h.Workers),
		Reason:           types.ReasonAdvisorHint,
		Adaptive:         cons.EnableAdaptation && h.Workers > 1,
		Diagnostics:      types.Diagnostics{Backend: backend},
		CreatedAt:        time.Now(),
	}, true
}

// DecisionCache stores flat serialized decisions keyed by function
// identity, dataset size, and schema version. Implementations live
// outside the planning hot path; the store package provides one.
type DecisionCache interface {
	// Get returns the decision stored under key, or ok=false on miss.
	Get(key string) (types.Decision, bool, error)

	// Put stores the decision under key.
	Put(key string, d types.Decision) error
}

// cacheKey derives the decision cache key. Unregistered functions have
// no stable identity and are never cached.
func cacheKey(fn pool.Func, totalItems int) (string, bool) {
	name, ok := pool.NameOf(fn)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("v%d/%s/%d", schemaVersion, name, totalItems), true
}

// cachedDecision looks up a prior decision. Any cache error is a miss:
// the external layer must never abort planning.
func (p *Planner) cachedDecision(fn pool.Func, totalItems int) (types.Decision, bool) {
	if p.cache == nil {
		return types.Decision{}, false
	}
	key, ok := cacheKey(fn, totalItems)
	if !ok {
		return types.Decision{}, false
	}

	d, found, err := p.cache.Get(key)
	if err != nil {
		logging.Get("planner").Debug("decision cache error, treating as miss", "key", key, "error", err)
		return types.Decision{}, false
	}
	return d, found
}

// storeDecision persists a decision best-effort.
func (p *Planner) storeDecision(fn pool.Func, totalItems int, d types.Decision) {
	if p.cache == nil {
		return
	}
	key, ok := cacheKey(fn, totalItems)
	if !ok {
		return
	}
	if err := p.cache.Put(key, d); err != nil {
		logging.Get("planner").Debug("decision cache write failed", "key", key, "error", err)
	}
}
