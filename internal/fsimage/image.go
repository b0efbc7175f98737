package fsimage

import (
	"io"
	"io/fs"
	"math/bits"

	"github.com/sirupsen/logrus"
)

// XIP window the image must be mapped into.
const (
	XIPBase = 0x10000000
	XIPSize = 0x01000000
)

// Image is a host Filesystem backed by an fs.FS, standing in for the
// LittleFS partition the device mounts.
type Image struct {
	root fs.FS
	log  logrus.FieldLogger

	mounted bool
	start   uint32
	size    uint32

	file fs.File
	data []byte
	pos  int
}

// NewImage returns an unmounted image over root.
func NewImage(root fs.FS, log logrus.FieldLogger) *Image {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Image{root: root, log: log}
}

// Mount validates the partition geometry and that the root is readable.
func (im *Image) Mount(start, blockSize, size uint32) bool {
	log := im.log.WithFields(logrus.Fields{"start": start, "block_size": blockSize, "size": size})

	switch {
	case blockSize == 0 || bits.OnesCount32(blockSize) != 1:
		log.Debug("fsimage: block size is not a power of two")
		return false
	case size == 0 || size%blockSize != 0:
		log.Debug("fsimage: size is not a whole number of blocks")
		return false
	case start < XIPBase || uint64(start)+uint64(size) > XIPBase+XIPSize:
		log.Debug("fsimage: partition outside XIP window")
		return false
	}

	if _, err := fs.ReadDir(im.root, "."); err != nil {
		log.WithError(err).Debug("fsimage: root unreadable")
		return false
	}

	im.mounted = true
	im.start = start
	im.size = size
	return true
}

// Open loads name. It fails if the image is not mounted, the name does not
// exist or is a directory, or another file is open.
func (im *Image) Open(name string) bool {
	if !im.mounted || im.file != nil || !fs.ValidPath(name) {
		return false
	}

	f, err := im.root.Open(name)
	if err != nil {
		im.log.WithError(err).Debugf("fsimage: open %q", name)
		return false
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() || st.Size() > int64(im.size) {
		f.Close()
		return false
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return false
	}

	im.file = f
	im.data = data
	im.pos = 0
	return true
}

// Seek positions the read cursor. Seeking to the end is allowed.
func (im *Image) Seek(offset uint32) bool {
	if im.file == nil || uint64(offset) > uint64(len(im.data)) {
		return false
	}
	im.pos = int(offset)
	return true
}

// Read returns up to maxLen bytes from the cursor in a new buffer.
func (im *Image) Read(maxLen int) []byte {
	if im.file == nil || maxLen <= 0 || im.pos >= len(im.data) {
		return nil
	}
	n := min(maxLen, len(im.data)-im.pos)
	p := make([]byte, n)
	copy(p, im.data[im.pos:])
	im.pos += n
	return p
}

// Close releases the open file.
func (im *Image) Close() {
	if im.file == nil {
		return
	}
	if err := im.file.Close(); err != nil {
		im.log.WithError(err).Debug("fsimage: close")
	}
	im.file = nil
	im.data = nil
	im.pos = 0
}
