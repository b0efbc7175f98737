//go:build tinygo && rp2040

package flash

import (
	"machine"
	"runtime/interrupt"
)

const xipBase = 0x10000000

// Interrupt masks processor interrupts through the TinyGo runtime.
type Interrupt struct{}

func (Interrupt) Disable() State  { return State(interrupt.Disable()) }
func (Interrupt) Restore(s State) { interrupt.Restore(interrupt.State(s)) }

// Onboard is the RP2040 QSPI flash addressed from the start of flash.
// machine.Flash numbers its blocks from the end of the program image, so
// offsets are rebased onto that.
type Onboard struct {
	base int64
}

// NewOnboard returns the onboard flash device.
func NewOnboard() *Onboard {
	return &Onboard{base: int64(machine.FlashDataStart()) - xipBase}
}

// ReadAt implements io.ReaderAt.
func (o *Onboard) ReadAt(p []byte, off int64) (int, error) {
	return machine.Flash.ReadAt(p, off-o.base)
}

// EraseSector implements Device.
func (o *Onboard) EraseSector(addr uint32) error {
	return machine.Flash.EraseBlocks((int64(addr)-o.base)/BlockSize, 1)
}

// ProgramSector implements Device.
func (o *Onboard) ProgramSector(addr uint32, data []byte) error {
	_, err := machine.Flash.WriteAt(data, int64(addr)-o.base)
	return err
}
