package storage

// MemDevice is a memory-backed device with EEPROM/RAM semantics: any cell
// can be rewritten at will. Useful as a simulated medium in tests and as
// the backing for battery-backed RAM regions.
type MemDevice struct {
	geom Geometry
	buf  []byte
}

// NewMemDevice creates a memory-backed device of the given media type
// spanning [startAddr, startAddr+size). Cells start in the erased state.
func NewMemDevice(media MediaType, startAddr, size uint32) *MemDevice {
	d := &MemDevice{
		geom: Geometry{
			StartAddr: startAddr,
			Size:      size,
			Media:     media,
		},
		buf: make([]byte, size),
	}
	for i := range d.buf {
		d.buf[i] = erasedByte
	}
	return d
}

// Geometry returns the device description.
func (d *MemDevice) Geometry() Geometry {
	return d.geom
}

// ReadAt copies len(p) bytes starting at addr into p.
func (d *MemDevice) ReadAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	copy(p, d.buf[addr-d.geom.StartAddr:])
	return nil
}

// WriteAt stores p at addr.
func (d *MemDevice) WriteAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	copy(d.buf[addr-d.geom.StartAddr:], p)
	return nil
}

// Erase resets [addr, addr+size) to the erased state.
func (d *MemDevice) Erase(addr uint32, size uint32) error {
	if err := checkRange(d.geom, addr, int(size)); err != nil {
		return err
	}
	off := addr - d.geom.StartAddr
	for i := off; i < off+size; i++ {
		d.buf[i] = erasedByte
	}
	return nil
}

// Corrupt flips the byte at addr. It exists so integrity tests can damage
// the medium out-of-band without going through WriteAt.
func (d *MemDevice) Corrupt(addr uint32) error {
	if err := checkRange(d.geom, addr, 1); err != nil {
		return err
	}
	d.buf[addr-d.geom.StartAddr] ^= 0xFF
	return nil
}
