// Package storage defines the flat byte-addressable device contract that
// the filesystem layers above run on, together with concrete devices for
// the common embedded media: RAM and EEPROM (freely rewritable), NOR-style
// flash (erase-before-write), and a file-backed image for tooling.
//
// Every access is addressed in the device's own address space: a device
// spans [StartAddr, StartAddr+Size) and rejects anything outside it.
package storage

import (
	"errors"
	"fmt"
)

// MediaType tags what kind of medium backs a device.
type MediaType int

const (
	// MediaEEPROM is byte-rewritable persistent memory
	MediaEEPROM MediaType = iota
	// MediaFlash requires an erase before cells can be rewritten
	MediaFlash
	// MediaRAM is battery-backed or plain RAM
	MediaRAM
	// MediaCustom is anything supplied by the host
	MediaCustom
)

func (m MediaType) String() string {
	switch m {
	case MediaEEPROM:
		return "eeprom"
	case MediaFlash:
		return "flash"
	case MediaRAM:
		return "ram"
	default:
		return "custom"
	}
}

// erasedByte is the cell value of erased EEPROM/flash
const erasedByte = 0xFF

var (
	// ErrOutOfRange means an access fell outside [StartAddr, StartAddr+Size)
	ErrOutOfRange = errors.New("storage: access out of device range")
	// ErrNotErased means a flash write targeted cells that were not erased first
	ErrNotErased = errors.New("storage: write to non-erased flash cells")
	// ErrEraseUnsupported means Erase was called on a device without erase support
	ErrEraseUnsupported = errors.New("storage: device does not support erase")
)

// Geometry describes a device: where it starts, how big it is, and what
// the medium demands of its users.
type Geometry struct {
	StartAddr      uint32
	Size           uint32
	Media          MediaType
	NeedErase      bool
	EraseBlockSize uint32
}

// Device is the contract the filesystem consumes. Addresses are absolute
// within the device's address space; implementations must bounds-check
// every access against their geometry.
type Device interface {
	ReadAt(addr uint32, p []byte) error
	WriteAt(addr uint32, p []byte) error
	Erase(addr uint32, size uint32) error
	Geometry() Geometry
}

// checkRange validates that [addr, addr+n) lies inside the geometry.
func checkRange(g Geometry, addr uint32, n int) error {
	end := uint64(addr) + uint64(n)
	if addr < g.StartAddr || end > uint64(g.StartAddr)+uint64(g.Size) {
		return fmt.Errorf("[%#x, %#x) outside device [%#x, %#x): %w",
			addr, end, g.StartAddr, uint64(g.StartAddr)+uint64(g.Size), ErrOutOfRange)
	}
	return nil
}

// Exercise runs a quick write/read/erase self-test against the first bytes
// of a device. It is destructive: whatever lived there is gone afterwards.
func Exercise(dev Device) error {
	g := dev.Geometry()
	pattern := []byte{0x55, 0xAA, 0x33, 0xCC}
	got := make([]byte, len(pattern))

	if g.NeedErase {
		if err := dev.Erase(g.StartAddr, uint32(len(pattern))); err != nil {
			return fmt.Errorf("pre-erase failed: %v", err)
		}
	}
	if err := dev.WriteAt(g.StartAddr, pattern); err != nil {
		return fmt.Errorf("write failed: %v", err)
	}
	if err := dev.ReadAt(g.StartAddr, got); err != nil {
		return fmt.Errorf("read failed: %v", err)
	}
	for i := range pattern {
		if got[i] != pattern[i] {
			return fmt.Errorf("readback mismatch at byte %d: wrote %#x, read %#x", i, pattern[i], got[i])
		}
	}

	if g.NeedErase {
		size := g.EraseBlockSize
		if size == 0 || size > g.Size {
			size = uint32(len(pattern))
		}
		if err := dev.Erase(g.StartAddr, size); err != nil {
			return fmt.Errorf("erase failed: %v", err)
		}
		if err := dev.ReadAt(g.StartAddr, got); err != nil {
			return fmt.Errorf("read after erase failed: %v", err)
		}
		for i, b := range got {
			if b != erasedByte {
				return fmt.Errorf("byte %d not erased: %#x", i, b)
			}
		}
	}
	return nil
}
