// Package lfs binds the LittleFS partition the updater reads its payload
// files from. The same code runs on the device over machine.Flash and on
// the host over a simulated flash.
package lfs

import (
	"io"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

// LittleFS tuning, matching the Arduino-Pico core that writes the
// partition.
const (
	cacheSize     = 256
	lookaheadSize = 256
	blockCycles   = 16
)

func newLFS(dev tinyfs.BlockDevice) *littlefs.LFS {
	l := littlefs.New(dev)
	l.Configure(&littlefs.Config{
		CacheSize:     cacheSize,
		LookaheadSize: lookaheadSize,
		BlockCycles:   blockCycles,
	})
	return l
}

// FS is a read-only view of a LittleFS partition. It implements
// fsimage.Filesystem.
type FS struct {
	dev    tinyfs.BlockDevice
	origin uint32 // XIP address of dev offset 0
	log    logrus.FieldLogger

	lfs  *littlefs.LFS
	file tinyfs.File
}

// New returns an unmounted filesystem over dev. origin is the XIP address
// that dev offset 0 is mapped at; partition addresses in Mount are XIP
// addresses.
func New(dev tinyfs.BlockDevice, origin uint32, log logrus.FieldLogger) *FS {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &FS{dev: dev, origin: origin, log: log}
}

// Mount mounts the partition at start.
func (f *FS) Mount(start, blockSize, size uint32) bool {
	log := f.log.WithFields(logrus.Fields{"start": start, "block_size": blockSize, "size": size})
	if f.lfs != nil {
		log.Debug("lfs: already mounted")
		return false
	}
	if start < f.origin {
		log.Debug("lfs: partition before device start")
		return false
	}

	part, err := NewPartition(f.dev, int64(start-f.origin), int64(size), int64(blockSize))
	if err != nil {
		log.WithError(err).Debug("lfs: partition")
		return false
	}
	l := newLFS(part)
	if err := l.Mount(); err != nil {
		log.WithError(err).Debug("lfs: mount")
		return false
	}
	f.lfs = l
	return true
}

// Open opens name for reading. Directories are refused.
func (f *FS) Open(name string) bool {
	if f.lfs == nil || f.file != nil {
		return false
	}
	file, err := f.lfs.Open(name)
	if err != nil {
		f.log.WithError(err).Debugf("lfs: open %q", name)
		return false
	}
	if file.IsDir() {
		file.Close()
		return false
	}
	f.file = file
	return true
}

// Seek positions the read cursor from the start of the file.
func (f *FS) Seek(offset uint32) bool {
	if f.file == nil {
		return false
	}
	s, ok := f.file.(io.Seeker)
	if !ok {
		return false
	}
	if _, err := s.Seek(int64(offset), io.SeekStart); err != nil {
		f.log.WithError(err).Debug("lfs: seek")
		return false
	}
	return true
}

// Read returns up to maxLen bytes, or nil at end of file or on error.
func (f *FS) Read(maxLen int) []byte {
	if f.file == nil || maxLen <= 0 {
		return nil
	}
	buf := make([]byte, maxLen)
	n, err := f.file.Read(buf)
	if err != nil && err != io.EOF {
		f.log.WithError(err).Debug("lfs: read")
	}
	if n <= 0 {
		return nil
	}
	return buf[:n]
}

// Close closes the open file.
func (f *FS) Close() {
	if f.file == nil {
		return
	}
	if err := f.file.Close(); err != nil {
		f.log.WithError(err).Debug("lfs: close")
	}
	f.file = nil
}
