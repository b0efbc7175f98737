package lfs

import (
	"github.com/pkg/errors"
	"tinygo.org/x/tinyfs"
)

var (
	ErrGeometry   = errors.New("invalid partition geometry")
	ErrOutOfRange = errors.New("partition access out of range")
)

// Partition exposes a window of a block device as a device of its own.
// Its erase block is the filesystem block size, which must be a whole
// number of device erase blocks.
type Partition struct {
	dev       tinyfs.BlockDevice
	base      int64
	size      int64
	blockSize int64
	ratio     int64
}

// NewPartition returns the size bytes of dev starting at base.
func NewPartition(dev tinyfs.BlockDevice, base, size, blockSize int64) (*Partition, error) {
	erase := dev.EraseBlockSize()
	switch {
	case blockSize <= 0 || blockSize%erase != 0:
		return nil, errors.Wrapf(ErrGeometry, "block size %d is not a multiple of %d", blockSize, erase)
	case base < 0 || base%erase != 0:
		return nil, errors.Wrapf(ErrGeometry, "base %d is not erase aligned", base)
	case size <= 0 || size%blockSize != 0:
		return nil, errors.Wrapf(ErrGeometry, "size %d is not a whole number of blocks", size)
	case base+size > dev.Size():
		return nil, errors.Wrapf(ErrGeometry, "%d+%d beyond device size %d", base, size, dev.Size())
	}
	return &Partition{
		dev:       dev,
		base:      base,
		size:      size,
		blockSize: blockSize,
		ratio:     blockSize / erase,
	}, nil
}

func (p *Partition) check(off int64, n int) error {
	if off < 0 || off+int64(n) > p.size {
		return errors.Wrapf(ErrOutOfRange, "%d+%d in %d", off, n, p.size)
	}
	return nil
}

// ReadAt implements tinyfs.BlockDevice.
func (p *Partition) ReadAt(buf []byte, off int64) (int, error) {
	if err := p.check(off, len(buf)); err != nil {
		return 0, err
	}
	return p.dev.ReadAt(buf, p.base+off)
}

// WriteAt implements tinyfs.BlockDevice.
func (p *Partition) WriteAt(buf []byte, off int64) (int, error) {
	if err := p.check(off, len(buf)); err != nil {
		return 0, err
	}
	return p.dev.WriteAt(buf, p.base+off)
}

func (p *Partition) Size() int64           { return p.size }
func (p *Partition) WriteBlockSize() int64 { return p.dev.WriteBlockSize() }
func (p *Partition) EraseBlockSize() int64 { return p.blockSize }

// EraseBlocks erases n filesystem blocks starting at block start.
func (p *Partition) EraseBlocks(start, n int64) error {
	if start < 0 || n < 0 || (start+n)*p.blockSize > p.size {
		return errors.Wrapf(ErrOutOfRange, "erase blocks %d+%d", start, n)
	}
	first := p.base/p.dev.EraseBlockSize() + start*p.ratio
	return p.dev.EraseBlocks(first, n*p.ratio)
}
