package acfs

import (
	"errors"
	"testing"
)

func TestBitmapAllocateAscending(t *testing.T) {
	bm := newClusterBitmap(16, 2)
	if err := bm.rebuild(nil); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	list, err := bm.allocate(3)
	if err != nil {
		t.Fatalf("allocate error: %v", err)
	}
	for i, want := range []uint16{2, 3, 4} {
		if list[i] != want {
			t.Errorf("cluster %d allocated as %d instead of %d", i, list[i], want)
		}
	}
	for c := uint16(0); c < 5; c++ {
		if !bm.inUse(c) {
			t.Errorf("cluster %d should be in use", c)
		}
	}
}

func TestBitmapAllocateRollback(t *testing.T) {
	bm := newClusterBitmap(8, 2)
	if err := bm.rebuild(nil); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	// only 6 data clusters exist
	if _, err := bm.allocate(7); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace, got %v", err)
	}
	// the failed scan must not leak any set bits
	for c := uint16(2); c < 8; c++ {
		if bm.inUse(c) {
			t.Errorf("cluster %d leaked from a failed allocation", c)
		}
	}
}

func TestBitmapFreeAndReuse(t *testing.T) {
	bm := newClusterBitmap(8, 2)
	if err := bm.rebuild(nil); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	list, err := bm.allocate(4)
	if err != nil {
		t.Fatalf("allocate error: %v", err)
	}
	bm.free(list[1:3])
	again, err := bm.allocate(2)
	if err != nil {
		t.Fatalf("allocate after free error: %v", err)
	}
	if again[0] != list[1] || again[1] != list[2] {
		t.Errorf("freed clusters %v not reused first, got %v", list[1:3], again)
	}
}

func TestBitmapRebuildFromEntries(t *testing.T) {
	bm := newClusterBitmap(16, 2)
	entries := []*dataEntry{
		{id: "a", clusters: []uint16{2, 5}, valid: true},
		{id: "b", clusters: []uint16{3}, valid: true},
		{id: "stale", clusters: []uint16{4}, valid: false},
	}
	if err := bm.rebuild(entries); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	for _, c := range []uint16{0, 1, 2, 3, 5} {
		if !bm.inUse(c) {
			t.Errorf("cluster %d should be in use", c)
		}
	}
	// invalid entries do not own clusters
	if bm.inUse(4) {
		t.Errorf("cluster 4 claimed by an invalid entry")
	}
}

func TestBitmapRebuildDetectsAliasing(t *testing.T) {
	bm := newClusterBitmap(16, 2)
	entries := []*dataEntry{
		{id: "a", clusters: []uint16{3, 4}, valid: true},
		{id: "b", clusters: []uint16{4}, valid: true},
	}
	if err := bm.rebuild(entries); !errors.Is(err, ErrDataCorrupted) {
		t.Fatalf("expected ErrDataCorrupted for shared cluster, got %v", err)
	}
}

func TestBitmapRebuildRejectsSystemCluster(t *testing.T) {
	bm := newClusterBitmap(16, 2)
	entries := []*dataEntry{
		{id: "a", clusters: []uint16{1}, valid: true},
	}
	if err := bm.rebuild(entries); !errors.Is(err, ErrDataCorrupted) {
		t.Fatalf("expected ErrDataCorrupted for system cluster reference, got %v", err)
	}
}

func TestBitmapAllocateContiguous(t *testing.T) {
	bm := newClusterBitmap(16, 2)
	if err := bm.rebuild(nil); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	first, err := bm.allocate(4) // 2..5
	if err != nil {
		t.Fatalf("allocate error: %v", err)
	}
	bm.free(first[1:2]) // hole at 3

	run, err := bm.allocateContiguous(3)
	if err != nil {
		t.Fatalf("allocateContiguous error: %v", err)
	}
	for i, want := range []uint16{6, 7, 8} {
		if run[i] != want {
			t.Errorf("run index %d is %d instead of %d", i, run[i], want)
		}
	}

	if _, err := bm.allocateContiguous(16); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace for oversized run, got %v", err)
	}
}
