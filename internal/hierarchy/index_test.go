package hierarchy

import (
	"errors"
	"reflect"
	"testing"

	"github.com/granduke/atlas/pkg/model"
)

// forest builds an asset universe from id → parent pairs.
func forest(parents map[int64]int64) map[model.ID]*model.Asset {
	assets := make(map[model.ID]*model.Asset, len(parents))
	for id, parent := range parents {
		assets[model.ID(id)] = &model.Asset{
			ID:     model.ID(id),
			Parent: model.ID(parent),
		}
	}
	return assets
}

func TestBuildAncestorsRootFirst(t *testing.T) {
	// 10 → 20 → 30 → 40 (root)
	assets := forest(map[int64]int64{40: 0, 30: 40, 20: 30, 10: 20})

	idx, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on Build: %v", err)
	}

	want := []model.ID{40, 30, 20}
	if got := idx.Ancestors(10); !reflect.DeepEqual(got, want) {
		t.Errorf("expected ancestors %v, got %v", want, got)
	}
	if got := idx.Ancestors(40); len(got) != 0 {
		t.Errorf("expected root to have no ancestors, got %v", got)
	}
}

func TestBuildDescendantsInverse(t *testing.T) {
	assets := forest(map[int64]int64{40: 0, 30: 40, 20: 30, 10: 20, 11: 20})

	idx, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on Build: %v", err)
	}

	got := idx.Descendants(40)
	want := map[model.ID]bool{30: true, 20: true, 10: true, 11: true}
	if len(got) != len(want) {
		t.Fatalf("expected %d descendants of 40, got %v", len(want), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected descendant %d of 40", id)
		}
	}

	// Every asset with an ancestor chain ending at the root appears in
	// the root's descendant set.
	for id := range assets {
		chain := idx.Ancestors(id)
		if len(chain) == 0 || chain[0] != 40 {
			continue
		}
		found := false
		for _, d := range idx.Descendants(40) {
			if d == id {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("asset %d missing from descendants of its root", id)
		}
	}
}

func TestBuildSentinelTerminatesChain(t *testing.T) {
	// Assets parented at the sentinel (id 1) are top-level.
	assets := forest(map[int64]int64{1: 0, 5: 1, 6: 5})

	idx, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on Build: %v", err)
	}

	if got := idx.Ancestors(5); len(got) != 0 {
		t.Errorf("expected sentinel-parented asset to be a root, got ancestors %v", got)
	}
	if got := idx.Ancestors(6); !reflect.DeepEqual(got, []model.ID{5}) {
		t.Errorf("expected ancestors [5], got %v", got)
	}
	if got := idx.Descendants(1); len(got) != 0 {
		t.Errorf("expected sentinel to have no indexed descendants, got %v", got)
	}
}

func TestBuildDanglingParentTreatedAsRoot(t *testing.T) {
	assets := forest(map[int64]int64{10: 999, 11: 10})

	idx, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on Build: %v", err)
	}

	if got := idx.Ancestors(10); len(got) != 0 {
		t.Errorf("expected dangling parent to yield no ancestors, got %v", got)
	}
	if got := idx.Ancestors(11); !reflect.DeepEqual(got, []model.ID{10}) {
		t.Errorf("expected ancestors [10], got %v", got)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	assets := forest(map[int64]int64{10: 20, 20: 30, 30: 10})

	if _, err := Build(assets); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestBuildIdempotent(t *testing.T) {
	assets := forest(map[int64]int64{40: 0, 30: 40, 20: 30, 10: 20, 11: 20, 50: 0, 51: 50})

	first, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on first Build: %v", err)
	}
	second, err := Build(assets)
	if err != nil {
		t.Fatalf("unexpected error on second Build: %v", err)
	}

	for id := range assets {
		if !reflect.DeepEqual(first.Ancestors(id), second.Ancestors(id)) {
			t.Errorf("ancestors of %d differ between rebuilds", id)
		}
		if !sameIDSet(first.Descendants(id), second.Descendants(id)) {
			t.Errorf("descendants of %d differ between rebuilds", id)
		}
	}
}

func sameIDSet(a, b []model.ID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[model.ID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
