// Package hierarchy derives the ancestor/descendant reachability relation
// over the asset forest.
package hierarchy

import (
	"fmt"

	"github.com/granduke/atlas/pkg/model"
)

// ErrCycle reports a parent loop in the asset data. A cycle is a fatal
// data-integrity condition: the rebuild aborts and the previous index
// stays in place.
var ErrCycle = fmt.Errorf("cycle detected in asset hierarchy")

// Index is an immutable snapshot of the reachability relation. Rebuilds
// produce a fresh Index that callers swap in atomically; readers holding
// an old snapshot see stale-but-consistent data, never a partial rebuild.
type Index struct {
	ancestors   map[model.ID][]model.ID
	descendants map[model.ID][]model.ID
}

// Build computes the index for the given asset universe.
//
// Ancestor chains are root-first and terminate at an asset with no
// parent, at the root sentinel, or at a dangling parent reference (the
// asset is then treated as a root; deliberately lenient). Walks are
// bounded by the asset count; exceeding the bound means a cycle.
func Build(assets map[model.ID]*model.Asset) (*Index, error) {
	idx := &Index{
		ancestors:   make(map[model.ID][]model.ID, len(assets)),
		descendants: make(map[model.ID][]model.ID),
	}

	for id, asset := range assets {
		chain, err := ancestorChain(assets, asset)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", id, err)
		}
		idx.ancestors[id] = chain
		for _, ancestorID := range chain {
			idx.descendants[ancestorID] = append(idx.descendants[ancestorID], id)
		}
	}
	return idx, nil
}

// ancestorChain walks parent links upward and returns the chain
// root-first.
func ancestorChain(assets map[model.ID]*model.Asset, asset *model.Asset) ([]model.ID, error) {
	var chain []model.ID
	current := asset
	for {
		parentID := current.Parent
		if parentID == 0 || parentID == model.RootSentinelID {
			break
		}
		parent, ok := assets[parentID]
		if !ok {
			// Dangling parent: treat the walk as finished.
			break
		}
		if len(chain) >= len(assets) {
			return nil, ErrCycle
		}
		chain = append(chain, parentID)
		current = parent
	}
	// Reverse in place so the chain reads root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Ancestors returns the ancestor chain of id, root-first. Nil when the
// asset is unknown or a root.
func (idx *Index) Ancestors(id model.ID) []model.ID {
	return idx.ancestors[id]
}

// Descendants returns every asset reachable downward from id. Order is
// not significant; callers treat the result as a set.
func (idx *Index) Descendants(id model.ID) []model.ID {
	return idx.descendants[id]
}

// Len returns the number of assets the index was built from.
func (idx *Index) Len() int {
	return len(idx.ancestors)
}
