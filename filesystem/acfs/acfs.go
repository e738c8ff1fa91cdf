// Package acfs implements a flat key/value filesystem for small
// byte-addressable persistent media: EEPROM, NOR flash, battery-backed
// RAM. Named binary blobs are stored in fixed-size clusters under a
// CRC32-protected superblock and directory.
//
// The engine is single-threaded and non-reentrant; a multi-threaded host
// must serialize all calls on one instance.
package acfs

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/acfs/go-acfs/storage"
)

// Config is the mount/format configuration.
type Config struct {
	// ClusterSize is the allocation unit in bytes, a power of two in
	// [64, 4096]
	ClusterSize uint16
	// ReservedClusters is the requested system-region size; it is raised
	// to the format minimum when too small
	ReservedClusters uint16
	// FormatIfInvalid formats the device when no valid filesystem is found
	FormatIfInvalid bool
	// EnableCRCCheck verifies payload CRCs on every Read
	EnableCRCCheck bool
}

// Stats is the space accounting reported by Stats. Sizes are data-region
// bytes; the system region is not counted.
type Stats struct {
	TotalBytes uint32
	UsedBytes  uint32
	FreeBytes  uint32
	DataCount  uint16
}

// EntryInfo describes one stored blob.
type EntryInfo struct {
	ID       string
	Size     uint32
	Clusters int
}

// FileSystem is one mounted (or mountable) filesystem instance. It
// exclusively owns its header, directory, bitmap, and scratch buffer.
type FileSystem struct {
	dev         storage.Device
	geom        storage.Geometry
	header      *superblock
	entries     []*dataEntry
	maxEntries  int
	bitmap      *clusterBitmap
	buf         []byte
	crcCheck    bool
	initialized bool
}

// New creates an unmounted instance over a device. Call Mount or Format
// before anything else.
func New(dev storage.Device) *FileSystem {
	return &FileSystem{
		dev:  dev,
		geom: dev.Geometry(),
	}
}

// Mount loads the on-media state and brings the instance to the mounted
// state. A missing or mismatched filesystem is formatted when
// cfg.FormatIfInvalid is set, otherwise the load failure is returned:
// ErrInvalidFilesystem for a bad magic or a cluster size other than
// cfg.ClusterSize, ErrDataCorrupted for a bad header CRC, ErrIO for a
// device failure. A loaded header whose geometry does not fit the device
// fails with ErrDataCorrupted and is not reformatted.
func (fs *FileSystem) Mount(cfg Config) error {
	if fs.initialized {
		return ErrAlreadyInitialized
	}
	if !validClusterSize(cfg.ClusterSize) {
		return fmt.Errorf("cluster size %d must be a power of two in [%d, %d]: %w", cfg.ClusterSize, minClusterSize, maxClusterSize, ErrInvalidParam)
	}

	sb, err := fs.loadSuperblock()
	if err == nil && sb.clusterSize != cfg.ClusterSize {
		err = fmt.Errorf("on-media cluster size %d differs from configured %d: %w", sb.clusterSize, cfg.ClusterSize, ErrInvalidFilesystem)
	}
	if err != nil {
		if !cfg.FormatIfInvalid {
			return err
		}
		if err := fs.format(cfg); err != nil {
			return err
		}
		sb = fs.header
	}
	fs.header = sb

	if uint32(sb.totalClusters)*uint32(sb.clusterSize) > fs.geom.Size {
		return fmt.Errorf("header claims %d clusters of %d bytes on a %d-byte device: %w", sb.totalClusters, sb.clusterSize, fs.geom.Size, ErrDataCorrupted)
	}
	if sb.sysClusters < 1 || sb.sysClusters >= sb.totalClusters {
		return fmt.Errorf("header claims %d system clusters of %d total: %w", sb.sysClusters, sb.totalClusters, ErrDataCorrupted)
	}

	fs.maxEntries = int((fs.sysBytes() - uint32(headerSize)) / entrySize)
	fs.buf = make([]byte, sb.clusterSize)
	fs.crcCheck = cfg.EnableCRCCheck

	if err := fs.loadDirectory(); err != nil {
		return err
	}

	fs.bitmap = newClusterBitmap(sb.totalClusters, sb.sysClusters)
	if err := fs.bitmap.rebuild(fs.entries); err != nil {
		return err
	}

	// the directory is the source of truth for space accounting; a header
	// count left behind by an interrupted write is corrected here
	fs.header.freeClusters = sb.totalClusters - sb.sysClusters - uint16(fs.listWords())

	fs.initialized = true
	log.WithFields(log.Fields{
		"media":    fs.geom.Media,
		"clusters": sb.totalClusters,
		"sys":      sb.sysClusters,
		"entries":  sb.dataEntries,
	}).Debug("acfs: mounted")
	return nil
}

// Unmount discards the in-memory state and returns the instance to the
// uninitialized state. Nothing is written: every mutating operation
// already persisted its effects.
func (fs *FileSystem) Unmount() error {
	if !fs.initialized {
		return ErrNotInitialized
	}
	fs.header = nil
	fs.entries = nil
	fs.bitmap = nil
	fs.buf = nil
	fs.initialized = false
	return nil
}

// Format writes a fresh, empty filesystem to the device. The instance
// must be unmounted; Format does not mount.
func (fs *FileSystem) Format(cfg Config) error {
	if fs.initialized {
		return ErrAlreadyInitialized
	}
	if !validClusterSize(cfg.ClusterSize) {
		return fmt.Errorf("cluster size %d must be a power of two in [%d, %d]: %w", cfg.ClusterSize, minClusterSize, maxClusterSize, ErrInvalidParam)
	}
	return fs.format(cfg)
}

func (fs *FileSystem) format(cfg Config) error {
	total := fs.geom.Size / uint32(cfg.ClusterSize)
	if total == 0 {
		return fmt.Errorf("device of %d bytes cannot hold a single %d-byte cluster: %w", fs.geom.Size, cfg.ClusterSize, ErrInvalidParam)
	}
	if total > maxClusters {
		total = maxClusters
	}

	sys := cfg.ReservedClusters
	if hdr := uint16((headerSize + int(cfg.ClusterSize) - 1) / int(cfg.ClusterSize)); sys < hdr {
		sys = hdr
	}
	if sys < 2 {
		sys = 2
	}
	if uint32(sys) >= total {
		return fmt.Errorf("%d system clusters leave no data region in %d total: %w", sys, total, ErrInvalidParam)
	}

	sb := &superblock{
		version:       uint16(versionMajor)<<8 | uint16(versionMinor),
		clusterSize:   cfg.ClusterSize,
		totalClusters: uint16(total),
		sysClusters:   sys,
		dataEntries:   0,
		freeClusters:  uint16(total) - sys,
	}
	fs.header = sb
	if err := fs.saveSuperblock(); err != nil {
		return err
	}

	zero := make([]byte, cfg.ClusterSize)
	for c := uint16(1); c < sys; c++ {
		if err := fs.writeRange(fs.clusterAddr(c), zero); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"media":    fs.geom.Media,
		"clusters": total,
		"sys":      sys,
	}).Debug("acfs: formatted")
	return nil
}

// Write stores data under id, creating the entry or replacing whatever it
// held. The identifier must be non-empty, NUL-free, and shorter than the
// 32-byte field; data must be non-empty.
func (fs *FileSystem) Write(id string, data []byte) error {
	if !fs.initialized {
		return ErrNotInitialized
	}
	if id == "" || len(id) > maxIDLen-1 || strings.IndexByte(id, 0) >= 0 || len(data) == 0 {
		return ErrInvalidParam
	}

	cs := int(fs.header.clusterSize)
	needed := (len(data) + cs - 1) / cs
	if uint32(needed) > maxClusters {
		return fmt.Errorf("%d bytes need %d clusters, format maximum is %d: %w", len(data), needed, maxClusters, ErrInvalidParam)
	}
	k := uint16(needed)

	var entry *dataEntry
	if idx := fs.findEntry(id); idx >= 0 {
		entry = fs.entries[idx]
		if len(entry.clusters) != int(k) {
			if directoryBytes(len(fs.entries), fs.listWords()-len(entry.clusters)+int(k)) > fs.sysBytes() {
				return fmt.Errorf("cluster list for %q does not fit the system region: %w", id, ErrNoSpace)
			}
			fs.bitmap.free(entry.clusters)
			fs.header.freeClusters += uint16(len(entry.clusters))
			list, err := fs.bitmap.allocate(k)
			if err != nil {
				// the old clusters are already released; the entry keeps
				// its stale size until the caller rewrites or deletes it
				entry.clusters = nil
				return err
			}
			entry.clusters = list
			fs.header.freeClusters -= k
		}
	} else {
		if len(fs.entries) >= fs.maxEntries {
			return fmt.Errorf("directory is full at %d entries: %w", fs.maxEntries, ErrClusterFull)
		}
		if directoryBytes(len(fs.entries)+1, fs.listWords()+int(k)) > fs.sysBytes() {
			return fmt.Errorf("cluster list for %q does not fit the system region: %w", id, ErrNoSpace)
		}
		list, err := fs.bitmap.allocate(k)
		if err != nil {
			return err
		}
		entry = &dataEntry{id: id, clusters: list, valid: true}
		fs.entries = append(fs.entries, entry)
		fs.header.dataEntries++
		fs.header.freeClusters -= k
	}

	entry.dataSize = uint32(len(data))
	entry.crc = checksum(data)

	if err := fs.writeClusters(entry.clusters, data); err != nil {
		return err
	}
	if err := fs.saveSuperblock(); err != nil {
		return err
	}
	if err := fs.saveDirectory(); err != nil {
		return err
	}

	log.WithFields(log.Fields{"id": id, "bytes": len(data), "clusters": k}).Debug("acfs: wrote entry")
	return nil
}

// Read copies the blob stored under id into buf and returns its size. A
// buffer smaller than the blob fails with ErrInvalidParam; the returned
// size still reports how many bytes are required.
func (fs *FileSystem) Read(id string, buf []byte) (int, error) {
	if !fs.initialized {
		return 0, ErrNotInitialized
	}
	if id == "" {
		return 0, ErrInvalidParam
	}
	idx := fs.findEntry(id)
	if idx < 0 {
		return 0, fmt.Errorf("no entry %q: %w", id, ErrDataNotFound)
	}
	entry := fs.entries[idx]

	if len(buf) < int(entry.dataSize) {
		return int(entry.dataSize), fmt.Errorf("buffer of %d bytes cannot hold %d: %w", len(buf), entry.dataSize, ErrInvalidParam)
	}
	if err := fs.readClusters(entry.clusters, buf[:entry.dataSize]); err != nil {
		return 0, err
	}
	if fs.crcCheck {
		if actual := checksum(buf[:entry.dataSize]); actual != entry.crc {
			return int(entry.dataSize), fmt.Errorf("entry %q checksum was %#x, stored %#x: %w", id, actual, entry.crc, ErrCRCMismatch)
		}
	}
	return int(entry.dataSize), nil
}

// ReadAll reads the blob stored under id into a fresh buffer.
func (fs *FileSystem) ReadAll(id string) ([]byte, error) {
	size, err := fs.Size(id)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := fs.Read(id, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Delete removes the entry stored under id, releasing its clusters and
// compacting the directory.
func (fs *FileSystem) Delete(id string) error {
	if !fs.initialized {
		return ErrNotInitialized
	}
	if id == "" {
		return ErrInvalidParam
	}
	idx := fs.findEntry(id)
	if idx < 0 {
		return fmt.Errorf("no entry %q: %w", id, ErrDataNotFound)
	}
	entry := fs.entries[idx]

	fs.bitmap.free(entry.clusters)
	fs.header.freeClusters += uint16(len(entry.clusters))
	fs.entries = append(fs.entries[:idx], fs.entries[idx+1:]...)
	fs.header.dataEntries--

	if err := fs.saveSuperblock(); err != nil {
		return err
	}
	if err := fs.saveDirectory(); err != nil {
		return err
	}

	log.WithFields(log.Fields{"id": id}).Debug("acfs: deleted entry")
	return nil
}

// Exists reports whether an entry is stored under id. It is false on an
// unmounted instance.
func (fs *FileSystem) Exists(id string) bool {
	if !fs.initialized || id == "" {
		return false
	}
	return fs.findEntry(id) >= 0
}

// Size returns the stored byte size of the entry under id.
func (fs *FileSystem) Size(id string) (int, error) {
	if !fs.initialized {
		return 0, ErrNotInitialized
	}
	if id == "" {
		return 0, ErrInvalidParam
	}
	idx := fs.findEntry(id)
	if idx < 0 {
		return 0, fmt.Errorf("no entry %q: %w", id, ErrDataNotFound)
	}
	return int(fs.entries[idx].dataSize), nil
}

// FreeSpace returns the free data-region bytes.
func (fs *FileSystem) FreeSpace() (uint32, error) {
	if !fs.initialized {
		return 0, ErrNotInitialized
	}
	return uint32(fs.header.freeClusters) * uint32(fs.header.clusterSize), nil
}

// Stats returns the data-region space accounting.
func (fs *FileSystem) Stats() (Stats, error) {
	if !fs.initialized {
		return Stats{}, ErrNotInitialized
	}
	total := uint32(fs.header.totalClusters-fs.header.sysClusters) * uint32(fs.header.clusterSize)
	free := uint32(fs.header.freeClusters) * uint32(fs.header.clusterSize)
	return Stats{
		TotalBytes: total,
		UsedBytes:  total - free,
		FreeBytes:  free,
		DataCount:  fs.header.dataEntries,
	}, nil
}

// List returns every stored entry in directory order.
func (fs *FileSystem) List() ([]EntryInfo, error) {
	if !fs.initialized {
		return nil, ErrNotInitialized
	}
	infos := make([]EntryInfo, 0, len(fs.entries))
	for _, e := range fs.entries {
		if !e.valid {
			continue
		}
		infos = append(infos, EntryInfo{ID: e.id, Size: e.dataSize, Clusters: len(e.clusters)})
	}
	return infos, nil
}

// CheckIntegrity re-reads every stored payload and verifies it against
// its recorded CRC, failing with ErrDataCorrupted on the first mismatch.
// It verifies regardless of the EnableCRCCheck setting.
func (fs *FileSystem) CheckIntegrity() error {
	if !fs.initialized {
		return ErrNotInitialized
	}
	for _, e := range fs.entries {
		if !e.valid {
			continue
		}
		data := make([]byte, e.dataSize)
		if err := fs.readClusters(e.clusters, data); err != nil {
			return err
		}
		if actual := checksum(data); actual != e.crc {
			return fmt.Errorf("entry %q checksum was %#x, stored %#x: %w", e.id, actual, e.crc, ErrDataCorrupted)
		}
	}
	return nil
}

// Defragment rewrites entries whose clusters are scattered into
// contiguous runs. Entries for which no run is currently free are left in
// place; each relocated entry is persisted before the next is touched.
func (fs *FileSystem) Defragment() error {
	if !fs.initialized {
		return ErrNotInitialized
	}
	moved := 0
	for _, e := range fs.entries {
		if !e.valid || contiguous(e.clusters) {
			continue
		}
		run, err := fs.bitmap.allocateContiguous(uint16(len(e.clusters)))
		if err != nil {
			if errors.Is(err, ErrNoSpace) {
				continue
			}
			return err
		}
		data := make([]byte, e.dataSize)
		if err := fs.readClusters(e.clusters, data); err != nil {
			fs.bitmap.free(run)
			return err
		}
		if err := fs.writeClusters(run, data); err != nil {
			fs.bitmap.free(run)
			return err
		}
		fs.bitmap.free(e.clusters)
		e.clusters = run
		if err := fs.saveSuperblock(); err != nil {
			return err
		}
		if err := fs.saveDirectory(); err != nil {
			return err
		}
		moved++
	}
	log.WithFields(log.Fields{"moved": moved}).Debug("acfs: defragmented")
	return nil
}

// clusterAddr is the device address of the first byte of cluster c.
func (fs *FileSystem) clusterAddr(c uint16) uint32 {
	return fs.geom.StartAddr + uint32(c)*uint32(fs.header.clusterSize)
}

// readRange reads len(p) bytes at addr, mapping device failures to ErrIO.
func (fs *FileSystem) readRange(addr uint32, p []byte) error {
	if err := fs.dev.ReadAt(addr, p); err != nil {
		return fmt.Errorf("device read of %d bytes at %#x: %v: %w", len(p), addr, err, ErrIO)
	}
	return nil
}

// writeRange writes p at addr. Media that demand erase-before-write get
// the exact target range erased first; block-level wear policy stays with
// the device driver.
func (fs *FileSystem) writeRange(addr uint32, p []byte) error {
	if fs.geom.NeedErase {
		if err := fs.dev.Erase(addr, uint32(len(p))); err != nil {
			return fmt.Errorf("device erase of %d bytes at %#x: %v: %w", len(p), addr, err, ErrIO)
		}
	}
	if err := fs.dev.WriteAt(addr, p); err != nil {
		return fmt.Errorf("device write of %d bytes at %#x: %v: %w", len(p), addr, err, ErrIO)
	}
	return nil
}

// readClusters reassembles a payload from its cluster list into data,
// which may be shorter than the cluster total; the tail cluster is
// clipped to it.
func (fs *FileSystem) readClusters(list []uint16, data []byte) error {
	cs := int(fs.header.clusterSize)
	for i, c := range list {
		if err := fs.readRange(fs.clusterAddr(c), fs.buf); err != nil {
			return err
		}
		copy(data[i*cs:], fs.buf)
	}
	return nil
}

// writeClusters stores data across its cluster list. Every cluster is
// written whole; bytes past the payload in the tail cluster are
// meaningless and excluded from the CRC.
func (fs *FileSystem) writeClusters(list []uint16, data []byte) error {
	cs := int(fs.header.clusterSize)
	for i, c := range list {
		n := copy(fs.buf, data[i*cs:])
		for j := n; j < cs; j++ {
			fs.buf[j] = 0
		}
		if err := fs.writeRange(fs.clusterAddr(c), fs.buf); err != nil {
			return err
		}
	}
	return nil
}

// loadSuperblock reads and validates the header at offset 0.
func (fs *FileSystem) loadSuperblock() (*superblock, error) {
	b := make([]byte, headerSize)
	if err := fs.readRange(fs.geom.StartAddr, b); err != nil {
		return nil, err
	}
	return superblockFromBytes(b)
}

// saveSuperblock recomputes the header CRC and writes it at offset 0.
func (fs *FileSystem) saveSuperblock() error {
	return fs.writeRange(fs.geom.StartAddr, fs.header.toBytes())
}

func contiguous(list []uint16) bool {
	for i := 1; i < len(list); i++ {
		if list[i] != list[i-1]+1 {
			return false
		}
	}
	return true
}
