package flash

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Flash geometry
const (
	BlockSize  = 0x1000 // 4KB erase sector
	PageSize   = 0x100  // program page
	ErasedByte = 0xFF
)

var (
	ErrUnaligned  = errors.New("flash address is not block aligned")
	ErrTooLarge   = errors.New("data exceeds flash block size")
	ErrOutOfRange = errors.New("flash access out of range")
)

// Device is the low-level flash erase/program primitive set.
// Addresses are offsets from the start of flash, not XIP addresses.
type Device interface {
	io.ReaderAt

	// EraseSector erases the BlockSize sector starting at addr.
	EraseSector(addr uint32) error

	// ProgramSector programs a full BlockSize sector starting at addr.
	ProgramSector(addr uint32, data []byte) error
}

// State is the opaque token returned when interrupts are disabled.
type State uint32

// Interrupts disables and restores the processor interrupt state.
type Interrupts interface {
	Disable() State
	Restore(State)
}

// Region performs block-sized flash mutations as interrupts-disabled
// critical sections.
type Region struct {
	dev  Device
	irq  Interrupts
	page [BlockSize]byte
}

// NewRegion creates a Region over dev, masking interrupts through irq.
func NewRegion(dev Device, irq Interrupts) *Region {
	if irq == nil {
		irq = NoInterrupts{}
	}
	return &Region{dev: dev, irq: irq}
}

// CommitBlock erases the block at addr and programs data into it.
// Data shorter than a block is padded with ErasedByte. Interrupts stay
// disabled from before the erase until after the program.
func (r *Region) CommitBlock(addr uint32, data []byte) (err error) {
	if addr%BlockSize != 0 {
		return errors.Wrapf(ErrUnaligned, "commit 0x%08X", addr)
	}
	if len(data) > BlockSize {
		return errors.Wrapf(ErrTooLarge, "commit %d bytes", len(data))
	}

	n := copy(r.page[:], data)
	for i := n; i < BlockSize; i++ {
		r.page[i] = ErasedByte
	}

	state := r.irq.Disable()
	defer r.irq.Restore(state)

	if err := r.dev.EraseSector(addr); err != nil {
		return errors.Wrapf(err, "erase 0x%08X", addr)
	}
	if err := r.dev.ProgramSector(addr, r.page[:]); err != nil {
		return errors.Wrapf(err, "program 0x%08X", addr)
	}
	return nil
}

// EraseBlock erases the block at addr with interrupts disabled.
func (r *Region) EraseBlock(addr uint32) error {
	if addr%BlockSize != 0 {
		return errors.Wrapf(ErrUnaligned, "erase 0x%08X", addr)
	}

	state := r.irq.Disable()
	defer r.irq.Restore(state)

	return errors.Wrapf(r.dev.EraseSector(addr), "erase 0x%08X", addr)
}

// NoInterrupts is used where there is no interrupt controller to mask,
// such as the host simulation.
type NoInterrupts struct{}

func (NoInterrupts) Disable() State { return 0 }
func (NoInterrupts) Restore(State)  {}

// AlignDown rounds v down to a multiple of align. align must be a power of two.
func AlignDown[T constraints.Unsigned](v, align T) T {
	return v &^ (align - 1)
}

// AlignUp rounds v up to a multiple of align. align must be a power of two.
func AlignUp[T constraints.Unsigned](v, align T) T {
	return AlignDown(v+align-1, align)
}

// Blocks returns the number of size-byte blocks needed to hold n bytes.
func Blocks[T constraints.Unsigned](n, size T) T {
	return (n + size - 1) / size
}
