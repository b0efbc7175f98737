package hexfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"

	"github.com/bigbag/pico-ota/internal/flash"
)

// Segment is a contiguous run of bytes at an absolute (XIP) address.
type Segment struct {
	Address uint32
	Data    []byte
}

// IsHex reports whether name looks like an Intel HEX file.
func IsHex(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihex", ".ihx":
		return true
	}
	return false
}

// Decode parses Intel HEX from r.
func Decode(r io.Reader) ([]Segment, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "parse intel hex")
	}
	var segs []Segment
	for _, s := range mem.GetDataSegments() {
		segs = append(segs, Segment{Address: s.Address, Data: s.Data})
	}
	return segs, nil
}

// Encode writes segs as Intel HEX with 16-byte records.
func Encode(w io.Writer, segs ...Segment) error {
	mem := gohex.NewMemory()
	for _, s := range segs {
		if err := mem.AddBinary(s.Address, s.Data); err != nil {
			return errors.Wrapf(err, "segment at 0x%08X", s.Address)
		}
	}
	return errors.Wrap(mem.DumpIntelHex(w, 16), "dump intel hex")
}

// Extract returns size bytes at addr from segs, or an error if any byte is
// missing.
func Extract(segs []Segment, addr, size uint32) ([]byte, error) {
	out := make([]byte, size)
	have := make([]bool, size)
	for _, s := range segs {
		for i, b := range s.Data {
			a := uint64(s.Address) + uint64(i)
			if a >= uint64(addr) && a < uint64(addr)+uint64(size) {
				out[a-uint64(addr)] = b
				have[a-uint64(addr)] = true
			}
		}
	}
	for i, ok := range have {
		if !ok {
			return nil, errors.Errorf("no data at 0x%08X", addr+uint32(i))
		}
	}
	return out, nil
}

// LoadFlash seeds mem from a file: Intel HEX records are placed by address
// relative to xipBase, anything else is treated as a raw image starting at
// flash offset 0.
func LoadFlash(path string, mem *flash.Memory, xipBase uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !IsHex(path) {
		return mem.Load(0, data)
	}

	segs, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for _, s := range segs {
		if s.Address < xipBase {
			return errors.Errorf("segment at 0x%08X below flash base 0x%08X", s.Address, xipBase)
		}
		if err := mem.Load(s.Address-xipBase, s.Data); err != nil {
			return err
		}
	}
	return nil
}

// DumpFlash writes the programmed blocks of mem as Intel HEX at XIP
// addresses. Fully erased blocks are left out.
func DumpFlash(w io.Writer, mem *flash.Memory, xipBase uint32) error {
	var segs []Segment
	data := mem.Bytes()
	for off := 0; off < len(data); off += flash.BlockSize {
		block := data[off : off+flash.BlockSize]
		if erased(block) {
			continue
		}
		addr := xipBase + uint32(off)
		if n := len(segs); n > 0 && segs[n-1].Address+uint32(len(segs[n-1].Data)) == addr {
			segs[n-1].Data = append(segs[n-1].Data, block...)
			continue
		}
		segs = append(segs, Segment{Address: addr, Data: append([]byte(nil), block...)})
	}
	return Encode(w, segs...)
}

func erased(b []byte) bool {
	for _, x := range b {
		if x != flash.ErasedByte {
			return false
		}
	}
	return true
}
