package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoSignature means the page does not hold a command table.
	ErrNoSignature = errors.New("no ota signature")
	// ErrEmpty means the table carries no commands.
	ErrEmpty = errors.New("no ota count")
	// ErrChecksum means the stored CRC does not match the table bytes.
	ErrChecksum = errors.New("ota table checksum mismatch")
)

// FormatError reports a table that carries the signature but cannot be
// trusted.
type FormatError struct {
	Entry  int // -1 for header fields
	Reason string
}

func (e *FormatError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("malformed ota table: %s", e.Reason)
	}
	return fmt.Sprintf("malformed ota table entry %d: %s", e.Entry, e.Reason)
}

// Entry is one command of the table.
type Entry struct {
	Kind byte

	// Write fields, valid when Kind == KindWrite.
	Filename     string
	FileOffset   uint32
	FileLength   uint32
	FlashAddress uint32

	// Raw holds the encoded entry as read, so unknown kinds round-trip.
	Raw [EntrySize]byte
}

// Table is a decoded command table.
type Table struct {
	Entries []Entry

	FSStart     uint32
	FSBlockSize uint32
	FSSize      uint32

	CRC uint32
}

// NewWrite creates a validated write-file entry.
func NewWrite(name string, offset, length, addr uint32) (Entry, error) {
	if err := checkName(name); err != nil {
		return Entry{}, err
	}
	return Entry{
		Kind:         KindWrite,
		Filename:     name,
		FileOffset:   offset,
		FileLength:   length,
		FlashAddress: addr,
	}, nil
}

func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("empty filename")
	case len(name) > MaxNameLen:
		return errors.Errorf("filename %q longer than %d bytes", name, MaxNameLen)
	case strings.IndexByte(name, 0) >= 0:
		return errors.Errorf("filename %q contains NUL", name)
	}
	return nil
}

// Decode parses a command table from buf. ErrNoSignature and ErrEmpty mean
// no update is pending; any *FormatError means the table is unusable.
func Decode(buf []byte) (*Table, error) {
	if len(buf) < offCount+4 {
		return nil, &FormatError{Entry: -1, Reason: fmt.Sprintf("short header: %d bytes", len(buf))}
	}
	if string(buf[offSignature:offCount]) != Signature {
		return nil, ErrNoSignature
	}

	count := binary.LittleEndian.Uint32(buf[offCount:])
	if count == 0 {
		return nil, ErrEmpty
	}
	if len(buf) < Size {
		return nil, &FormatError{Entry: -1, Reason: fmt.Sprintf("short table: %d bytes, need %d", len(buf), Size)}
	}
	if count > MaxEntries {
		return nil, &FormatError{Entry: -1, Reason: fmt.Sprintf("count %d exceeds %d", count, MaxEntries)}
	}

	t := &Table{
		Entries:     make([]Entry, count),
		FSStart:     binary.LittleEndian.Uint32(buf[offFSStart:]),
		FSBlockSize: binary.LittleEndian.Uint32(buf[offFSBlock:]),
		FSSize:      binary.LittleEndian.Uint32(buf[offFSSize:]),
		CRC:         binary.LittleEndian.Uint32(buf[offCRC:]),
	}

	for i := range t.Entries {
		start := offEntries + i*EntrySize
		if err := decodeEntry(&t.Entries[i], buf[start:start+EntrySize]); err != nil {
			return nil, &FormatError{Entry: i, Reason: err.Error()}
		}
	}

	return t, nil
}

func decodeEntry(e *Entry, raw []byte) error {
	copy(e.Raw[:], raw)
	e.Kind = raw[entKind]
	if e.Kind != KindWrite {
		return nil
	}

	field := raw[entName : entName+NameField]
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		return errors.New("unterminated filename")
	}
	e.Filename = string(field[:n])
	if e.Filename == "" {
		return errors.New("empty filename")
	}
	e.FileOffset = binary.LittleEndian.Uint32(raw[entOffset:])
	e.FileLength = binary.LittleEndian.Uint32(raw[entLength:])
	e.FlashAddress = binary.LittleEndian.Uint32(raw[entAddr:])
	return nil
}

// Encode serializes the table and stores the computed CRC in t.CRC.
func (t *Table) Encode() ([]byte, error) {
	if len(t.Entries) == 0 {
		return nil, ErrEmpty
	}
	if len(t.Entries) > MaxEntries {
		return nil, errors.Errorf("%d entries exceed %d", len(t.Entries), MaxEntries)
	}

	buf := make([]byte, Size)
	copy(buf[offSignature:], Signature)
	binary.LittleEndian.PutUint32(buf[offCount:], uint32(len(t.Entries)))

	for i, e := range t.Entries {
		raw := buf[offEntries+i*EntrySize : offEntries+(i+1)*EntrySize]
		if e.Kind != KindWrite {
			copy(raw, e.Raw[:])
			raw[entKind] = e.Kind
			continue
		}
		if err := checkName(e.Filename); err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		raw[entKind] = e.Kind
		copy(raw[entName:], e.Filename)
		binary.LittleEndian.PutUint32(raw[entOffset:], e.FileOffset)
		binary.LittleEndian.PutUint32(raw[entLength:], e.FileLength)
		binary.LittleEndian.PutUint32(raw[entAddr:], e.FlashAddress)
	}

	binary.LittleEndian.PutUint32(buf[offFSStart:], t.FSStart)
	binary.LittleEndian.PutUint32(buf[offFSBlock:], t.FSBlockSize)
	binary.LittleEndian.PutUint32(buf[offFSSize:], t.FSSize)

	t.CRC = Checksum(buf)
	binary.LittleEndian.PutUint32(buf[offCRC:], t.CRC)

	return buf, nil
}

// Checksum computes the CRC-32 (IEEE) over the table bytes preceding the
// CRC field.
func Checksum(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf[:offCRC])
}

// VerifyChecksum checks the stored CRC against the bytes it was decoded
// from. This is an integrity check only; it does not authenticate.
func (t *Table) VerifyChecksum(buf []byte) error {
	if len(buf) < Size {
		return &FormatError{Entry: -1, Reason: "short table"}
	}
	if got := Checksum(buf); got != t.CRC {
		return errors.Wrapf(ErrChecksum, "stored 0x%08X, computed 0x%08X", t.CRC, got)
	}
	return nil
}

// Writes returns the number of write-file entries.
func (t *Table) Writes() int {
	n := 0
	for _, e := range t.Entries {
		if e.Kind == KindWrite {
			n++
		}
	}
	return n
}
