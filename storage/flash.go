package storage

import "fmt"

// FlashDevice simulates NOR-style flash: reads are free, erases reset whole
// ranges to 0xFF, and writes fail over any cell that is not erased. The
// filesystem is expected to erase a target range before rewriting it.
type FlashDevice struct {
	geom Geometry
	buf  []byte
}

// NewFlashDevice creates a flash device spanning [startAddr, startAddr+size)
// with the given erase block size. All cells start erased.
func NewFlashDevice(startAddr, size, eraseBlockSize uint32) *FlashDevice {
	d := &FlashDevice{
		geom: Geometry{
			StartAddr:      startAddr,
			Size:           size,
			Media:          MediaFlash,
			NeedErase:      true,
			EraseBlockSize: eraseBlockSize,
		},
		buf: make([]byte, size),
	}
	for i := range d.buf {
		d.buf[i] = erasedByte
	}
	return d
}

// Geometry returns the device description.
func (d *FlashDevice) Geometry() Geometry {
	return d.geom
}

// ReadAt copies len(p) bytes starting at addr into p.
func (d *FlashDevice) ReadAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	copy(p, d.buf[addr-d.geom.StartAddr:])
	return nil
}

// WriteAt stores p at addr. Every target cell must be in the erased state,
// otherwise the write is rejected whole.
func (d *FlashDevice) WriteAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	off := addr - d.geom.StartAddr
	for i := range p {
		if d.buf[off+uint32(i)] != erasedByte {
			return fmt.Errorf("cell %#x holds %#x: %w", addr+uint32(i), d.buf[off+uint32(i)], ErrNotErased)
		}
	}
	copy(d.buf[off:], p)
	return nil
}

// Erase resets [addr, addr+size) to the erased state.
func (d *FlashDevice) Erase(addr uint32, size uint32) error {
	if err := checkRange(d.geom, addr, int(size)); err != nil {
		return err
	}
	off := addr - d.geom.StartAddr
	for i := off; i < off+size; i++ {
		d.buf[i] = erasedByte
	}
	return nil
}
