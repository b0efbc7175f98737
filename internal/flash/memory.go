package flash

import (
	"io"

	"github.com/pkg/errors"
)

// Memory is an in-memory NOR flash. Erasing sets a sector to ErasedByte;
// programming can only clear bits, as on the real part.
type Memory struct {
	data []byte

	Erases   int
	Programs int
}

// NewMemory returns an erased flash of size bytes, rounded up to a whole
// number of blocks.
func NewMemory(size uint32) *Memory {
	m := &Memory{data: make([]byte, AlignUp(size, BlockSize))}
	for i := range m.data {
		m.data[i] = ErasedByte
	}
	return m
}

// Size returns the flash size in bytes.
func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing store. Writes to it bypass erase semantics.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Load copies data into flash at addr without erase/program accounting.
// Used to seed an image before a run.
func (m *Memory) Load(addr uint32, data []byte) error {
	if err := m.check(addr, len(data)); err != nil {
		return err
	}
	copy(m.data[addr:], data)
	return nil
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// EraseSector implements Device.
func (m *Memory) EraseSector(addr uint32) error {
	if addr%BlockSize != 0 {
		return errors.Wrapf(ErrUnaligned, "erase 0x%08X", addr)
	}
	if err := m.check(addr, BlockSize); err != nil {
		return err
	}
	sector := m.data[addr : addr+BlockSize]
	for i := range sector {
		sector[i] = ErasedByte
	}
	m.Erases++
	return nil
}

// ProgramSector implements Device.
func (m *Memory) ProgramSector(addr uint32, data []byte) error {
	if addr%BlockSize != 0 {
		return errors.Wrapf(ErrUnaligned, "program 0x%08X", addr)
	}
	if len(data) > BlockSize {
		return errors.Wrapf(ErrTooLarge, "program %d bytes", len(data))
	}
	if err := m.check(addr, len(data)); err != nil {
		return err
	}
	for i, b := range data {
		m.data[addr+uint32(i)] &= b
	}
	m.Programs++
	return nil
}

// WriteAt programs p at off. Like ProgramSector it only clears bits, so
// the range must have been erased first for the data to read back.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, errors.Wrapf(ErrOutOfRange, "write at %d", off)
	}
	if err := m.check(uint32(off), len(p)); err != nil {
		return 0, err
	}
	for i, b := range p {
		m.data[off+int64(i)] &= b
	}
	m.Programs++
	return len(p), nil
}

// WriteBlockSize returns the program page size.
func (m *Memory) WriteBlockSize() int64 {
	return PageSize
}

// EraseBlockSize returns the erase sector size.
func (m *Memory) EraseBlockSize() int64 {
	return BlockSize
}

// EraseBlocks erases n sectors starting at sector start.
func (m *Memory) EraseBlocks(start, n int64) error {
	if start < 0 || n < 0 || (start+n)*BlockSize > int64(len(m.data)) {
		return errors.Wrapf(ErrOutOfRange, "erase sectors %d+%d", start, n)
	}
	for i := start; i < start+n; i++ {
		if err := m.EraseSector(uint32(i * BlockSize)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(len(m.data)) {
		return errors.Wrapf(ErrOutOfRange, "0x%08X+%d beyond 0x%X", addr, n, len(m.data))
	}
	return nil
}
