package acfs

import "fmt"

// The directory occupies the system region bytes after the header: the
// fixed records as a dense array at [headerSize, headerSize+n*entrySize),
// then every live entry's cluster list packed immediately after, each
// sized to its cluster count. Record listOffset fields point into the
// packed region and are recomputed on every save, so a delete-shift keeps
// records and lists consistent by construction.

// directoryBytes is the system-region footprint of a directory with n
// records and listWords total cluster indices across all lists.
func directoryBytes(n, listWords int) uint32 {
	return uint32(headerSize) + uint32(n)*entrySize + 2*uint32(listWords)
}

// sysBytes is the byte size of the system region.
func (fs *FileSystem) sysBytes() uint32 {
	return uint32(fs.header.sysClusters) * uint32(fs.header.clusterSize)
}

// listWords is the total cluster-index count across all entries.
func (fs *FileSystem) listWords() int {
	words := 0
	for _, e := range fs.entries {
		words += len(e.clusters)
	}
	return words
}

// loadDirectory reads the fixed record array, then each entry's cluster
// list from its recorded offset.
func (fs *FileSystem) loadDirectory() error {
	n := int(fs.header.dataEntries)
	entries := make([]*dataEntry, 0, n)
	if n == 0 {
		fs.entries = entries
		return nil
	}

	recBytes := make([]byte, n*entrySize)
	if err := fs.readRange(fs.geom.StartAddr+uint32(headerSize), recBytes); err != nil {
		return fmt.Errorf("could not read directory records: %w", err)
	}

	for i := 0; i < n; i++ {
		e, count, err := entryFromBytes(recBytes[i*entrySize : (i+1)*entrySize])
		if err != nil {
			return fmt.Errorf("could not decode directory record %d: %w", i, err)
		}
		if count > 0 {
			end := uint64(e.listOffset) + 2*uint64(count)
			if e.listOffset < uint32(headerSize) || end > uint64(fs.sysBytes()) {
				return fmt.Errorf("record %d cluster list [%#x, %#x) outside system region: %w", i, e.listOffset, end, ErrDataCorrupted)
			}
			listBytes := make([]byte, 2*int(count))
			if err := fs.readRange(fs.geom.StartAddr+e.listOffset, listBytes); err != nil {
				return fmt.Errorf("could not read cluster list for record %d: %w", i, err)
			}
			if e.clusters, err = listFromBytes(listBytes, count); err != nil {
				return err
			}
		}
		entries = append(entries, e)
	}
	fs.entries = entries
	return nil
}

// saveDirectory repacks list offsets and rewrites the whole directory
// region in one device write. A trailing record-sized run of zeroes keeps
// a shrinking directory from leaving a stale record at its old tail.
func (fs *FileSystem) saveDirectory() error {
	n := len(fs.entries)
	off := uint32(headerSize) + uint32(n)*entrySize
	for _, e := range fs.entries {
		e.listOffset = off
		off += 2 * uint32(len(e.clusters))
	}

	pad := uint32(entrySize)
	if off+pad > fs.sysBytes() {
		pad = fs.sysBytes() - off
	}

	buf := make([]byte, off-uint32(headerSize)+pad)
	for i, e := range fs.entries {
		copy(buf[i*entrySize:], e.toBytes())
		copy(buf[e.listOffset-uint32(headerSize):], e.listToBytes())
	}

	if err := fs.writeRange(fs.geom.StartAddr+uint32(headerSize), buf); err != nil {
		return fmt.Errorf("could not write directory region: %w", err)
	}
	return nil
}

// findEntry returns the index of the valid entry with this identifier, or
// -1. Identifiers compare case-sensitively and in full; Write rejects any
// identifier that does not fit the field, so stored ones are never cut.
func (fs *FileSystem) findEntry(id string) int {
	for i, e := range fs.entries {
		if e.valid && e.id == id {
			return i
		}
	}
	return -1
}
