package acfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// maxIDLen is the identifier field width; useful bytes are maxIDLen-1
	// because the field is NUL terminated.
	maxIDLen = 32

	// entrySize is the packed on-media directory record
	entrySize = 48

	// fixed record field offsets
	entryOffID           = 0
	entryOffDataSize     = 32
	entryOffClusterCount = 36
	entryOffListOffset   = 38
	entryOffCRC          = 42
	entryOffValid        = 46
	// byte 47 reserved
)

// dataEntry is the directory record for one stored blob. The cluster list
// is held inline; on media it lives in the packed list region at
// listOffset, refreshed on every directory save.
type dataEntry struct {
	id         string
	dataSize   uint32
	clusters   []uint16
	crc        uint32
	valid      bool
	listOffset uint32
}

func (e *dataEntry) equal(o *dataEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.id != o.id || e.dataSize != o.dataSize || e.crc != o.crc || e.valid != o.valid {
		return false
	}
	if len(e.clusters) != len(o.clusters) {
		return false
	}
	for i := range e.clusters {
		if e.clusters[i] != o.clusters[i] {
			return false
		}
	}
	return true
}

// entryFromBytes decodes the fixed record fields. The cluster list itself
// is read separately from listOffset; clusterCount tells the caller how
// many indices to fetch.
func entryFromBytes(b []byte) (*dataEntry, uint16, error) {
	if len(b) != entrySize {
		return nil, 0, fmt.Errorf("cannot read directory entry from %d bytes instead of expected %d: %w", len(b), entrySize, ErrInvalidParam)
	}

	idField := b[entryOffID : entryOffID+maxIDLen]
	id := idField
	if i := bytes.IndexByte(idField, 0); i >= 0 {
		id = idField[:i]
	}

	e := dataEntry{
		id:         string(id),
		dataSize:   binary.LittleEndian.Uint32(b[entryOffDataSize:]),
		crc:        binary.LittleEndian.Uint32(b[entryOffCRC:]),
		valid:      b[entryOffValid] != 0,
		listOffset: binary.LittleEndian.Uint32(b[entryOffListOffset:]),
	}
	count := binary.LittleEndian.Uint16(b[entryOffClusterCount:])
	return &e, count, nil
}

// toBytes encodes the fixed record. The identifier is truncated to the
// field width and NUL padded.
func (e *dataEntry) toBytes() []byte {
	b := make([]byte, entrySize)
	id := e.id
	if len(id) > maxIDLen-1 {
		id = id[:maxIDLen-1]
	}
	copy(b[entryOffID:entryOffID+maxIDLen], id)
	binary.LittleEndian.PutUint32(b[entryOffDataSize:], e.dataSize)
	binary.LittleEndian.PutUint16(b[entryOffClusterCount:], uint16(len(e.clusters)))
	binary.LittleEndian.PutUint32(b[entryOffListOffset:], e.listOffset)
	binary.LittleEndian.PutUint32(b[entryOffCRC:], e.crc)
	if e.valid {
		b[entryOffValid] = 1
	}
	return b
}

// listToBytes encodes the cluster list as little-endian 16-bit indices.
func (e *dataEntry) listToBytes() []byte {
	b := make([]byte, 2*len(e.clusters))
	for i, c := range e.clusters {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}

// listFromBytes decodes count cluster indices.
func listFromBytes(b []byte, count uint16) ([]uint16, error) {
	if len(b) < 2*int(count) {
		return nil, fmt.Errorf("cluster list needs %d bytes, have %d: %w", 2*int(count), len(b), ErrInvalidParam)
	}
	list := make([]uint16, count)
	for i := range list {
		list[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return list, nil
}
