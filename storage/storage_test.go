package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceRoundTrip(t *testing.T) {
	dev := NewMemDevice(MediaEEPROM, 0x1000, 4096)
	data := []byte{1, 2, 3, 4, 5}
	require.NoError(t, dev.WriteAt(0x1000, data))

	got := make([]byte, len(data))
	require.NoError(t, dev.ReadAt(0x1000, got))
	assert.Equal(t, data, got)

	// rewrites need no erase on EEPROM
	require.NoError(t, dev.WriteAt(0x1000, []byte{9, 9, 9, 9, 9}))
}

func TestMemDeviceBounds(t *testing.T) {
	dev := NewMemDevice(MediaRAM, 0x1000, 256)
	buf := make([]byte, 16)

	assert.ErrorIs(t, dev.ReadAt(0x0FFF, buf), ErrOutOfRange)
	assert.ErrorIs(t, dev.WriteAt(0x1100, buf), ErrOutOfRange)
	assert.ErrorIs(t, dev.Erase(0x10F8, 16), ErrOutOfRange)
	assert.NoError(t, dev.ReadAt(0x10F0, buf))
}

func TestMemDeviceStartsErased(t *testing.T) {
	dev := NewMemDevice(MediaEEPROM, 0, 64)
	got := make([]byte, 64)
	require.NoError(t, dev.ReadAt(0, got))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64), got)
}

func TestMemDeviceCorrupt(t *testing.T) {
	dev := NewMemDevice(MediaRAM, 0, 64)
	require.NoError(t, dev.WriteAt(10, []byte{0x42}))
	require.NoError(t, dev.Corrupt(10))
	got := make([]byte, 1)
	require.NoError(t, dev.ReadAt(10, got))
	assert.Equal(t, byte(0x42^0xFF), got[0])
}

func TestFlashEraseDiscipline(t *testing.T) {
	dev := NewFlashDevice(0, 4096, 512)
	data := []byte{0xAB, 0xCD}

	// fresh cells are erased, first write is fine
	require.NoError(t, dev.WriteAt(0, data))

	// rewriting programmed cells must fail
	assert.ErrorIs(t, dev.WriteAt(0, data), ErrNotErased)
	assert.ErrorIs(t, dev.WriteAt(1, []byte{1}), ErrNotErased)

	// after an erase the same range accepts writes again
	require.NoError(t, dev.Erase(0, 512))
	require.NoError(t, dev.WriteAt(0, data))

	got := make([]byte, 2)
	require.NoError(t, dev.ReadAt(0, got))
	assert.Equal(t, data, got)
}

func TestFlashGeometry(t *testing.T) {
	dev := NewFlashDevice(0x2000, 8192, 1024)
	g := dev.Geometry()
	assert.Equal(t, uint32(0x2000), g.StartAddr)
	assert.Equal(t, uint32(8192), g.Size)
	assert.Equal(t, MediaFlash, g.Media)
	assert.True(t, g.NeedErase)
	assert.Equal(t, uint32(1024), g.EraseBlockSize)
}

func TestExercise(t *testing.T) {
	require.NoError(t, Exercise(NewMemDevice(MediaEEPROM, 0, 1024)))
	require.NoError(t, Exercise(NewMemDevice(MediaRAM, 0x400, 1024)))
	require.NoError(t, Exercise(NewFlashDevice(0, 4096, 512)))
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acfs.img")
	dev, err := OpenFileDevice(path, 4096)
	require.NoError(t, err)
	defer dev.Close()

	data := []byte("image-backed bytes")
	require.NoError(t, dev.WriteAt(100, data))

	got := make([]byte, len(data))
	require.NoError(t, dev.ReadAt(100, got))
	assert.Equal(t, data, got)

	require.NoError(t, dev.Erase(100, uint32(len(data))))
	require.NoError(t, dev.ReadAt(100, got))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, len(data)), got)

	assert.ErrorIs(t, dev.ReadAt(4090, make([]byte, 16)), ErrOutOfRange)
}

func TestFileDeviceReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acfs.img")
	dev, err := OpenFileDevice(path, 1024)
	require.NoError(t, err)
	require.NoError(t, dev.WriteAt(0, []byte("persisted")))
	require.NoError(t, dev.Close())

	dev2, err := OpenFileDevice(path, 1024)
	require.NoError(t, err)
	defer dev2.Close()
	got := make([]byte, 9)
	require.NoError(t, dev2.ReadAt(0, got))
	assert.Equal(t, []byte("persisted"), got)
}
