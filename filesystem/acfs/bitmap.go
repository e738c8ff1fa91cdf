package acfs

import (
	"fmt"

	bitset "github.com/bits-and-blooms/bitset"
)

// clusterBitmap tracks which clusters are in use. It is derived state:
// rebuilt from the directory on mount, mutated by every allocate/free, and
// never persisted. Bit c set means cluster c is taken, system clusters
// included.
type clusterBitmap struct {
	bits  *bitset.BitSet
	sys   uint16
	total uint16
}

func newClusterBitmap(total, sys uint16) *clusterBitmap {
	return &clusterBitmap{
		bits:  bitset.New(uint(total)),
		sys:   sys,
		total: total,
	}
}

// rebuild resets the bitmap from the directory: system clusters first,
// then every valid entry's list. A data bit that is already set when an
// entry claims it means two entries share a cluster, which the format
// forbids.
func (bm *clusterBitmap) rebuild(entries []*dataEntry) error {
	bm.bits.ClearAll()
	for c := uint(0); c < uint(bm.sys); c++ {
		bm.bits.Set(c)
	}
	for _, e := range entries {
		if !e.valid {
			continue
		}
		for _, c := range e.clusters {
			if c < bm.sys || c >= bm.total {
				return fmt.Errorf("entry %q references cluster %d outside data region [%d, %d): %w", e.id, c, bm.sys, bm.total, ErrDataCorrupted)
			}
			if bm.bits.Test(uint(c)) {
				return fmt.Errorf("cluster %d referenced twice, second owner %q: %w", c, e.id, ErrDataCorrupted)
			}
			bm.bits.Set(uint(c))
		}
	}
	return nil
}

// allocate takes the n lowest-indexed free data clusters, in ascending
// order. If fewer than n are free every bit set here is reverted and the
// allocation fails whole.
func (bm *clusterBitmap) allocate(n uint16) ([]uint16, error) {
	list := make([]uint16, 0, n)
	for c, ok := bm.bits.NextClear(uint(bm.sys)); ok && c < uint(bm.total) && len(list) < int(n); c, ok = bm.bits.NextClear(c + 1) {
		bm.bits.Set(c)
		list = append(list, uint16(c))
	}
	if len(list) < int(n) {
		for _, c := range list {
			bm.bits.Clear(uint(c))
		}
		return nil, fmt.Errorf("needed %d clusters, found %d free: %w", n, len(list), ErrNoSpace)
	}
	return list, nil
}

// allocateContiguous takes the lowest run of n consecutive free data
// clusters, or fails with no bits changed.
func (bm *clusterBitmap) allocateContiguous(n uint16) ([]uint16, error) {
	if n == 0 {
		return nil, fmt.Errorf("zero-length run: %w", ErrInvalidParam)
	}
	runStart, runLen := uint(0), uint(0)
	for c := uint(bm.sys); c < uint(bm.total); c++ {
		if bm.bits.Test(c) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = c
		}
		runLen++
		if runLen == uint(n) {
			list := make([]uint16, n)
			for i := uint(0); i < uint(n); i++ {
				bm.bits.Set(runStart + i)
				list[i] = uint16(runStart + i)
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("no run of %d free clusters: %w", n, ErrNoSpace)
}

// free releases every cluster in the list. Releasing a clear bit is not
// detected; callers own the accounting.
func (bm *clusterBitmap) free(list []uint16) {
	for _, c := range list {
		bm.bits.Clear(uint(c))
	}
}

// inUse reports whether cluster c is taken.
func (bm *clusterBitmap) inUse(c uint16) bool {
	return bm.bits.Test(uint(c))
}
