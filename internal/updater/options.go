package updater

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Layout describes where the updater finds things in flash. Offsets are
// relative to the start of flash; XIPBase maps them into the address space.
type Layout struct {
	XIPBase     uint32
	TableOffset uint32 // command page, one block
	AppOffset   uint32 // application image, vector table first
}

// DefaultLayout returns the RP2040 layout: a 4KB command page directly in
// front of the application at 0x10005000.
func DefaultLayout() Layout {
	return Layout{
		XIPBase:     0x10000000,
		TableOffset: 0x4000,
		AppOffset:   0x5000,
	}
}

// AppBase returns the XIP address of the application vector table.
func (l Layout) AppBase() uint32 {
	return l.XIPBase + l.AppOffset
}

// Progress is reported after every committed block.
type Progress struct {
	Entry   int // index into the table
	Entries int
	Block   int // blocks committed for this entry so far
	Blocks  int // blocks this entry needs
	Total   int // blocks committed in this run
}

// ProgressCallback receives progress updates. It must return quickly.
type ProgressCallback func(Progress)

// Config holds executor configuration.
type Config struct {
	Layout   Layout
	Logger   logrus.FieldLogger
	Progress ProgressCallback

	// VerifyChecksum rejects tables whose CRC does not match. Off by
	// default: the CRC is a placeholder and provisioning tools may leave it
	// zero.
	VerifyChecksum bool
}

func defaultConfig() Config {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return Config{
		Layout: DefaultLayout(),
		Logger: l,
	}
}

// Option configures an Executor.
type Option func(*Config)

// WithLayout overrides the flash layout.
func WithLayout(l Layout) Option {
	return func(c *Config) {
		c.Layout = l
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	}
}

// WithProgressCallback sets a callback invoked after each committed block.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// WithChecksum enables or disables table CRC verification.
func WithChecksum(verify bool) Option {
	return func(c *Config) {
		c.VerifyChecksum = verify
	}
}
