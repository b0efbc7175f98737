package fsimage

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrNotMounted = errors.New("filesystem not mounted")
	ErrMount      = errors.New("filesystem mount failed")
	ErrBusy       = errors.New("a file is already open")
	ErrNotOpen    = errors.New("no file open")
	ErrOpen       = errors.New("file open failed")
	ErrSeek       = errors.New("file seek failed")
	ErrRead       = errors.New("file read failed")
)

// Filesystem is the embedded read-only filesystem as exposed to the
// updater. Only one file may be open at a time.
type Filesystem interface {
	Mount(start, blockSize, size uint32) bool
	Open(name string) bool
	Seek(offset uint32) bool

	// Read returns up to maxLen bytes, or nil at end of file or on error.
	Read(maxLen int) []byte

	Close()
}

// Adapter gives sequential, single-file access to a Filesystem with Go
// error values.
type Adapter struct {
	fs      Filesystem
	mounted bool
	open    string
}

// NewAdapter wraps fs.
func NewAdapter(fs Filesystem) *Adapter {
	return &Adapter{fs: fs}
}

// Mount mounts the filesystem image at start. It must succeed before any
// other call.
func (a *Adapter) Mount(start, blockSize, size uint32) error {
	if !a.fs.Mount(start, blockSize, size) {
		return errors.Wrapf(ErrMount, "start=0x%08X block=0x%X size=0x%X", start, blockSize, size)
	}
	a.mounted = true
	return nil
}

// Open opens name for reading.
func (a *Adapter) Open(name string) error {
	if !a.mounted {
		return ErrNotMounted
	}
	if a.open != "" {
		return errors.Wrapf(ErrBusy, "open %q while %q", name, a.open)
	}
	if !a.fs.Open(name) {
		return errors.Wrapf(ErrOpen, "%q", name)
	}
	a.open = name
	return nil
}

// Seek moves the read cursor of the open file to offset.
func (a *Adapter) Seek(offset uint32) error {
	if a.open == "" {
		return ErrNotOpen
	}
	if !a.fs.Seek(offset) {
		return errors.Wrapf(ErrSeek, "%q to %d", a.open, offset)
	}
	return nil
}

// Read returns the next chunk of at most maxLen bytes. It returns io.EOF
// when the filesystem reports no more data.
func (a *Adapter) Read(maxLen int) ([]byte, error) {
	if a.open == "" {
		return nil, ErrNotOpen
	}
	p := a.fs.Read(maxLen)
	if len(p) == 0 {
		return nil, io.EOF
	}
	if len(p) > maxLen {
		return nil, errors.Wrapf(ErrRead, "%q returned %d bytes, asked %d", a.open, len(p), maxLen)
	}
	return p, nil
}

// ReadFull fills buf from the open file. A file that ends first is
// reported as ErrRead.
func (a *Adapter) ReadFull(buf []byte) (int, error) {
	got := 0
	for got < len(buf) {
		p, err := a.Read(len(buf) - got)
		if err == io.EOF {
			return got, errors.Wrapf(ErrRead, "%q ended after %d of %d bytes", a.open, got, len(buf))
		}
		if err != nil {
			return got, err
		}
		got += copy(buf[got:], p)
	}
	return got, nil
}

// Close closes the open file. It is safe to call when nothing is open.
func (a *Adapter) Close() {
	if a.open == "" {
		return
	}
	a.fs.Close()
	a.open = ""
}

// Current returns the name of the open file, or "".
func (a *Adapter) Current() string {
	return a.open
}
