package lfs

import (
	"io/fs"
	"os"
	"strings"

	"github.com/pkg/errors"
	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

// Writer fills a freshly formatted partition.
type Writer struct {
	lfs   *littlefs.LFS
	files int
}

// Format creates an empty filesystem in the partition at start and mounts
// it for writing. Addresses are as for New.
func Format(dev tinyfs.BlockDevice, origin, start, blockSize, size uint32) (*Writer, error) {
	if start < origin {
		return nil, errors.Wrapf(ErrGeometry, "start 0x%08X before device origin 0x%08X", start, origin)
	}
	part, err := NewPartition(dev, int64(start-origin), int64(size), int64(blockSize))
	if err != nil {
		return nil, err
	}

	l := newLFS(part)
	if err := l.Format(); err != nil {
		return nil, errors.Wrap(err, "format")
	}
	if err := l.Mount(); err != nil {
		return nil, errors.Wrap(err, "mount after format")
	}
	return &Writer{lfs: l}, nil
}

// WriteFile stores data as name in the root directory.
func (w *Writer) WriteFile(name string, data []byte) error {
	if name == "" || strings.Contains(name, "/") {
		return errors.Errorf("invalid file name %q", name)
	}
	f, err := w.lfs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", name)
	}
	w.files++
	return nil
}

// AddFS copies the regular files at the root of fsys. Subdirectories are
// skipped: the updater only opens root-level names.
func (w *Writer) AddFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return errors.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return errors.Wrapf(err, "read %s", e.Name())
		}
		if err := w.WriteFile(e.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// Files returns the number of files written.
func (w *Writer) Files() int {
	return w.files
}

// Close unmounts the filesystem, flushing its metadata.
func (w *Writer) Close() error {
	return errors.Wrap(w.lfs.Unmount(), "unmount")
}
