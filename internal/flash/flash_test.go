package flash

import (
	"bytes"
	"errors"
	"testing"
)

// trackingIRQ records the order of interrupt and flash operations.
type trackingIRQ struct {
	disabled bool
	log      *[]string
}

func (t *trackingIRQ) Disable() State {
	t.disabled = true
	*t.log = append(*t.log, "disable")
	return 0x5A
}

func (t *trackingIRQ) Restore(s State) {
	t.disabled = false
	*t.log = append(*t.log, "restore")
}

// trackingDevice wraps Memory and checks that interrupts are off.
type trackingDevice struct {
	*Memory
	irq        *trackingIRQ
	log        *[]string
	eraseErr   error
	programErr error
	unmasked   int
}

func (d *trackingDevice) EraseSector(addr uint32) error {
	*d.log = append(*d.log, "erase")
	if !d.irq.disabled {
		d.unmasked++
	}
	if d.eraseErr != nil {
		return d.eraseErr
	}
	return d.Memory.EraseSector(addr)
}

func (d *trackingDevice) ProgramSector(addr uint32, data []byte) error {
	*d.log = append(*d.log, "program")
	if !d.irq.disabled {
		d.unmasked++
	}
	if d.programErr != nil {
		return d.programErr
	}
	return d.Memory.ProgramSector(addr, data)
}

func newTracking(size uint32) (*Region, *trackingDevice) {
	var log []string
	irq := &trackingIRQ{log: &log}
	dev := &trackingDevice{Memory: NewMemory(size), irq: irq, log: &log}
	return NewRegion(dev, irq), dev
}

func TestCommitBlock_CriticalSectionSpansEraseAndProgram(t *testing.T) {
	r, dev := newTracking(4 * BlockSize)

	if err := r.CommitBlock(BlockSize, []byte{1, 2, 3}); err != nil {
		t.Fatalf("CommitBlock() error = %v", err)
	}

	want := []string{"disable", "erase", "program", "restore"}
	if len(*dev.log) != len(want) {
		t.Fatalf("operations = %v, want %v", *dev.log, want)
	}
	for i := range want {
		if (*dev.log)[i] != want[i] {
			t.Errorf("operations[%d] = %q, want %q", i, (*dev.log)[i], want[i])
		}
	}
	if dev.unmasked != 0 {
		t.Errorf("%d flash operations ran with interrupts enabled", dev.unmasked)
	}
}

func TestCommitBlock_PadsPartialBlock(t *testing.T) {
	r, dev := newTracking(2 * BlockSize)
	data := []byte{0x00, 0x11, 0x22}

	if err := r.CommitBlock(0, data); err != nil {
		t.Fatalf("CommitBlock() error = %v", err)
	}

	got := dev.Bytes()[:BlockSize]
	if !bytes.Equal(got[:len(data)], data) {
		t.Errorf("block prefix = %v, want %v", got[:len(data)], data)
	}
	for i := len(data); i < BlockSize; i++ {
		if got[i] != ErasedByte {
			t.Fatalf("block[%d] = 0x%02X, want 0x%02X", i, got[i], ErasedByte)
		}
	}
}

func TestCommitBlock_OverwritesPreviousContents(t *testing.T) {
	r, dev := newTracking(BlockSize)
	if err := dev.Load(0, bytes.Repeat([]byte{0x0F}, BlockSize)); err != nil {
		t.Fatal(err)
	}

	if err := r.CommitBlock(0, []byte{0xF0}); err != nil {
		t.Fatalf("CommitBlock() error = %v", err)
	}
	if dev.Bytes()[0] != 0xF0 {
		t.Errorf("byte 0 = 0x%02X, want 0xF0", dev.Bytes()[0])
	}
	if dev.Bytes()[1] != ErasedByte {
		t.Errorf("byte 1 = 0x%02X, want 0x%02X", dev.Bytes()[1], ErasedByte)
	}
}

func TestCommitBlock_Preconditions(t *testing.T) {
	tests := []struct {
		name string
		addr uint32
		size int
		want error
	}{
		{"unaligned", 0x10, 1, ErrUnaligned},
		{"too large", 0, BlockSize + 1, ErrTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, dev := newTracking(2 * BlockSize)
			err := r.CommitBlock(tc.addr, make([]byte, tc.size))
			if !errors.Is(err, tc.want) {
				t.Errorf("CommitBlock() error = %v, want %v", err, tc.want)
			}
			if len(*dev.log) != 0 {
				t.Errorf("operations = %v, want none", *dev.log)
			}
		})
	}
}

func TestCommitBlock_RestoresInterruptsOnFailure(t *testing.T) {
	failure := errors.New("flash fault")

	for _, stage := range []string{"erase", "program"} {
		t.Run(stage, func(t *testing.T) {
			r, dev := newTracking(BlockSize)
			if stage == "erase" {
				dev.eraseErr = failure
			} else {
				dev.programErr = failure
			}

			err := r.CommitBlock(0, []byte{1})
			if !errors.Is(err, failure) {
				t.Fatalf("CommitBlock() error = %v, want %v", err, failure)
			}
			if dev.irq.disabled {
				t.Error("interrupts left disabled after failure")
			}
			last := (*dev.log)[len(*dev.log)-1]
			if last != "restore" {
				t.Errorf("last operation = %q, want restore", last)
			}
		})
	}
}

func TestEraseBlock(t *testing.T) {
	r, dev := newTracking(2 * BlockSize)
	if err := dev.Load(BlockSize, []byte("Pico OTA")); err != nil {
		t.Fatal(err)
	}

	if err := r.EraseBlock(BlockSize); err != nil {
		t.Fatalf("EraseBlock() error = %v", err)
	}
	if dev.Erases != 1 || dev.Programs != 0 {
		t.Errorf("erases=%d programs=%d, want 1 and 0", dev.Erases, dev.Programs)
	}
	if dev.Bytes()[BlockSize] != ErasedByte {
		t.Errorf("erased byte = 0x%02X, want 0x%02X", dev.Bytes()[BlockSize], ErasedByte)
	}
	if dev.unmasked != 0 {
		t.Error("erase ran with interrupts enabled")
	}

	if err := r.EraseBlock(1); !errors.Is(err, ErrUnaligned) {
		t.Errorf("EraseBlock(1) error = %v, want %v", err, ErrUnaligned)
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		v, down, up uint32
	}{
		{0, 0, 0},
		{1, 0, BlockSize},
		{BlockSize, BlockSize, BlockSize},
		{BlockSize + 1, BlockSize, 2 * BlockSize},
	}
	for _, tc := range tests {
		if got := AlignDown(tc.v, BlockSize); got != tc.down {
			t.Errorf("AlignDown(%d) = %d, want %d", tc.v, got, tc.down)
		}
		if got := AlignUp(tc.v, BlockSize); got != tc.up {
			t.Errorf("AlignUp(%d) = %d, want %d", tc.v, got, tc.up)
		}
	}

	if got := Blocks(uint32(4097), BlockSize); got != 2 {
		t.Errorf("Blocks(4097) = %d, want 2", got)
	}
	if got := Blocks(uint32(0), BlockSize); got != 0 {
		t.Errorf("Blocks(0) = %d, want 0", got)
	}
}
