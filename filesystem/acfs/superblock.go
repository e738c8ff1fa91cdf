package acfs

import (
	"encoding/binary"
	"fmt"
)

const (
	// headerMagic spells "ACFS"
	headerMagic uint32 = 0x41434653
	// format version, major<<8 | minor. Minor 1 declares the packed
	// cluster-list directory layout.
	versionMajor uint8 = 1
	versionMinor uint8 = 1

	headerSize int = 20

	minClusterSize uint16 = 64
	maxClusterSize uint16 = 4096
	// maxClusters bounds both the region and any entry's cluster count
	maxClusters uint32 = 65535
)

// superblock is the fixed header at device offset 0. The magic and CRC are
// not kept here; they are produced and checked by the codec.
type superblock struct {
	version       uint16
	clusterSize   uint16
	totalClusters uint16
	sysClusters   uint16
	dataEntries   uint16
	freeClusters  uint16
}

func (sb *superblock) equal(o *superblock) bool {
	if sb == nil || o == nil {
		return sb == o
	}
	return *sb == *o
}

// superblockFromBytes decodes and validates the 20-byte on-media header.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != headerSize {
		return nil, fmt.Errorf("cannot read superblock from %d bytes instead of expected %d: %w", len(b), headerSize, ErrInvalidParam)
	}

	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic != headerMagic {
		return nil, fmt.Errorf("erroneous magic %#x instead of expected %#x: %w", magic, headerMagic, ErrInvalidFilesystem)
	}

	stored := binary.LittleEndian.Uint32(b[16:20])
	if actual := checksum(b[0:16]); actual != stored {
		return nil, fmt.Errorf("invalid superblock checksum, actual was %#x, on media was %#x: %w", actual, stored, ErrDataCorrupted)
	}

	sb := superblock{
		version:       binary.LittleEndian.Uint16(b[4:6]),
		clusterSize:   binary.LittleEndian.Uint16(b[6:8]),
		totalClusters: binary.LittleEndian.Uint16(b[8:10]),
		sysClusters:   binary.LittleEndian.Uint16(b[10:12]),
		dataEntries:   binary.LittleEndian.Uint16(b[12:14]),
		freeClusters:  binary.LittleEndian.Uint16(b[14:16]),
	}
	return &sb, nil
}

// toBytes encodes the header, computing the CRC over the leading 16 bytes.
func (sb *superblock) toBytes() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], headerMagic)
	binary.LittleEndian.PutUint16(b[4:6], sb.version)
	binary.LittleEndian.PutUint16(b[6:8], sb.clusterSize)
	binary.LittleEndian.PutUint16(b[8:10], sb.totalClusters)
	binary.LittleEndian.PutUint16(b[10:12], sb.sysClusters)
	binary.LittleEndian.PutUint16(b[12:14], sb.dataEntries)
	binary.LittleEndian.PutUint16(b[14:16], sb.freeClusters)
	binary.LittleEndian.PutUint32(b[16:20], checksum(b[0:16]))
	return b
}

// validClusterSize reports whether s is a power of two within the format
// bounds.
func validClusterSize(s uint16) bool {
	return s >= minClusterSize && s <= maxClusterSize && s&(s-1) == 0
}
