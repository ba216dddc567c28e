package hub

import (
	"sort"

	"github.com/shubham-shewale/basis-hub/pkg/models"
)

// Registry maps subscribers to the symbols they watch and tracks the union.
// It is not safe for concurrent use; the Hub serializes access.
type Registry struct {
	maxSymbols int
	subs       map[string]map[string]bool
	union      map[string]bool
}

func NewRegistry(maxSymbols int) *Registry {
	return &Registry{
		maxSymbols: maxSymbols,
		subs:       make(map[string]map[string]bool),
		union:      make(map[string]bool),
	}
}

// Subscribe replaces the subscriber's symbol set and reports whether the union changed.
func (r *Registry) Subscribe(id string, symbols []string) bool {
	clean := models.NormalizeSymbols(symbols, r.maxSymbols)

	set := make(map[string]bool, len(clean))
	for _, s := range clean {
		set[s] = true
	}
	r.subs[id] = set

	return r.recompute()
}

// Unsubscribe drops the subscriber and reports whether the union changed.
func (r *Registry) Unsubscribe(id string) bool {
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return r.recompute()
}

func (r *Registry) recompute() bool {
	next := make(map[string]bool, len(r.union))
	for _, set := range r.subs {
		for s := range set {
			next[s] = true
		}
	}

	changed := len(next) != len(r.union)
	if !changed {
		for s := range next {
			if !r.union[s] {
				changed = true
				break
			}
		}
	}

	r.union = next
	return changed
}

// Union returns the sorted set of symbols needed by at least one subscriber.
func (r *Registry) Union() []string {
	return sortedKeys(r.union)
}

// Symbols returns the sorted symbols of one subscriber.
func (r *Registry) Symbols(id string) []string {
	return sortedKeys(r.subs[id])
}

func (r *Registry) Len() int { return len(r.subs) }

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
