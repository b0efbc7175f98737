package hexfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigbag/pico-ota/internal/flash"
)

const xip = 0x10000000

func TestIsHex(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"image.hex", true},
		{"IMAGE.HEX", true},
		{"table.ihex", true},
		{"firmware.bin", false},
		{"noext", false},
	}
	for _, tc := range tests {
		if got := IsHex(tc.name); got != tc.want {
			t.Errorf("IsHex(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	segs := []Segment{
		{Address: 0x10004000, Data: []byte("Pico OTA")},
		{Address: 0x10005000, Data: []byte{0x00, 0x20, 0x04, 0x20}},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, segs...); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), ":") {
		t.Fatalf("Encode() output is not Intel HEX: %q", buf.String())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	data, err := Extract(got, 0x10004000, 8)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if string(data) != "Pico OTA" {
		t.Errorf("Extract() = %q", data)
	}
}

func TestExtract_Missing(t *testing.T) {
	segs := []Segment{{Address: 0x100, Data: []byte{1, 2}}}
	if _, err := Extract(segs, 0x100, 3); err == nil {
		t.Error("Extract() past segment end succeeded, want error")
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode(strings.NewReader("not hex\n")); err == nil {
		t.Error("Decode() of garbage succeeded, want error")
	}
}

func TestDumpAndLoadFlash(t *testing.T) {
	mem := flash.NewMemory(0x10000)
	if err := mem.Load(0x5000, []byte{0xDE, 0xAD}); err != nil {
		t.Fatal(err)
	}
	if err := mem.Load(0x9000, []byte{0xBE, 0xEF}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := DumpFlash(&buf, mem, xip); err != nil {
		t.Fatalf("DumpFlash() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "flash.hex")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := flash.NewMemory(0x10000)
	if err := LoadFlash(path, loaded, xip); err != nil {
		t.Fatalf("LoadFlash() error = %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), mem.Bytes()) {
		t.Error("flash contents differ after dump and load")
	}
}

func TestLoadFlash_Binary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	mem := flash.NewMemory(0x1000)
	if err := LoadFlash(path, mem, xip); err != nil {
		t.Fatalf("LoadFlash() error = %v", err)
	}
	if !bytes.Equal(mem.Bytes()[:3], []byte{1, 2, 3}) {
		t.Errorf("flash = %v", mem.Bytes()[:3])
	}
}

func TestLoadFlash_BelowBase(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Segment{Address: 0x100, Data: []byte{1}}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "low.hex")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadFlash(path, flash.NewMemory(0x1000), xip); err == nil {
		t.Error("LoadFlash() below base succeeded, want error")
	}
}
