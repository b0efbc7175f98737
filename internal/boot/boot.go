package boot

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/updater"
)

// Vector is what the handoff needs from the application image.
type Vector struct {
	Table        uint32 // vector table base, written to VTOR
	StackPointer uint32 // initial MSP, word 0 of the table
	Entry        uint32 // reset handler, word 1 of the table
}

// Blank reports whether the vector was read from erased flash.
func (v Vector) Blank() bool {
	return v.StackPointer == 0xFFFFFFFF && v.Entry == 0xFFFFFFFF
}

// Target transfers control to the application. Hardware targets never
// return from Handoff.
type Target interface {
	Handoff(v Vector)
}

// ReadVector reads the application's initial stack pointer and reset
// vector from flash.
func ReadVector(mem io.ReaderAt, layout updater.Layout) (Vector, error) {
	var words [8]byte
	if _, err := mem.ReadAt(words[:], int64(layout.AppOffset)); err != nil {
		return Vector{}, errors.Wrapf(err, "read vector table at %s", diag.Hex(layout.AppBase()))
	}
	return Vector{
		Table:        layout.AppBase(),
		StackPointer: binary.LittleEndian.Uint32(words[0:4]),
		Entry:        binary.LittleEndian.Uint32(words[4:8]),
	}, nil
}

// Runner is the part of the updater the boot sequence drives.
type Runner interface {
	Run() (updater.Result, error)
}

// Sequence is the updater's main: run the update once, then hand off to
// the application whatever the outcome.
type Sequence struct {
	Updater Runner
	Memory  io.ReaderAt
	Target  Target
	Layout  updater.Layout
	Log     logrus.FieldLogger
}

// Run never fails. It returns the update result for host callers; on
// hardware the Target does not return.
func (s *Sequence) Run() updater.Result {
	log := s.Log
	if log == nil {
		log = diag.New(nil)
	}

	log.Info("starting ota")
	res, err := s.Updater.Run()
	if err != nil {
		log.WithError(err).Error("ota aborted")
	}
	log.Info("ota completed")

	v, err := ReadVector(s.Memory, s.Layout)
	if err != nil {
		log.WithError(err).Error("vector read failed")
		v = Vector{Table: s.Layout.AppBase()}
	}
	s.Target.Handoff(v)

	return res
}

// Recorder is a host Target that stores the vector it was handed.
type Recorder struct {
	Called bool
	Vector Vector
}

// Handoff implements Target.
func (r *Recorder) Handoff(v Vector) {
	r.Called = true
	r.Vector = v
}
