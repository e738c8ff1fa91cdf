package acfs

import "hash/crc32"

// The format checksums with the reflected 0xEDB88320 polynomial, initial
// value 0xFFFFFFFF, final XOR 0xFFFFFFFF - the zlib/IEEE 802.3 variant.
var crcTable = crc32.MakeTable(crc32.IEEE)

func checksum(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}
