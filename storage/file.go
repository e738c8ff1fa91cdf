package storage

import (
	"fmt"
	"os"
)

// FileDevice backs a device with an image file on the host, so command-line
// tooling can work on the same layout the embedded target sees. It behaves
// like EEPROM: no erase discipline is enforced.
type FileDevice struct {
	geom Geometry
	f    *os.File
}

// OpenFileDevice opens (or creates) an image file and sizes it to size
// bytes. An existing larger image is not truncated.
func OpenFileDevice(path string, size uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open image %s: %v", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat image %s: %v", path, err)
	}
	if st.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not size image %s to %d bytes: %v", path, size, err)
		}
	}
	return &FileDevice{
		geom: Geometry{
			Size:  size,
			Media: MediaCustom,
		},
		f: f,
	}, nil
}

// Geometry returns the device description.
func (d *FileDevice) Geometry() Geometry {
	return d.geom
}

// ReadAt copies len(p) bytes starting at addr into p.
func (d *FileDevice) ReadAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(p, int64(addr-d.geom.StartAddr)); err != nil {
		return fmt.Errorf("image read at %#x: %v", addr, err)
	}
	return nil
}

// WriteAt stores p at addr.
func (d *FileDevice) WriteAt(addr uint32, p []byte) error {
	if err := checkRange(d.geom, addr, len(p)); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(p, int64(addr-d.geom.StartAddr)); err != nil {
		return fmt.Errorf("image write at %#x: %v", addr, err)
	}
	return nil
}

// Erase resets [addr, addr+size) to the erased state.
func (d *FileDevice) Erase(addr uint32, size uint32) error {
	if err := checkRange(d.geom, addr, int(size)); err != nil {
		return err
	}
	blank := make([]byte, size)
	for i := range blank {
		blank[i] = erasedByte
	}
	if _, err := d.f.WriteAt(blank, int64(addr-d.geom.StartAddr)); err != nil {
		return fmt.Errorf("image erase at %#x: %v", addr, err)
	}
	return nil
}

// Close flushes and closes the underlying image file.
func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return fmt.Errorf("could not sync image: %v", err)
	}
	return d.f.Close()
}
