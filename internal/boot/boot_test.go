package boot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/flash"
	"github.com/bigbag/pico-ota/internal/fsimage"
	"github.com/bigbag/pico-ota/internal/table"
	"github.com/bigbag/pico-ota/internal/updater"
)

func vectorImage(sp, entry uint32) []byte {
	img := make([]byte, 256)
	binary.LittleEndian.PutUint32(img[0:4], sp)
	binary.LittleEndian.PutUint32(img[4:8], entry)
	return img
}

func TestReadVector(t *testing.T) {
	layout := updater.DefaultLayout()
	mem := flash.NewMemory(0x10000)
	if err := mem.Load(layout.AppOffset, vectorImage(0x20042000, 0x100050C1)); err != nil {
		t.Fatal(err)
	}

	v, err := ReadVector(mem, layout)
	if err != nil {
		t.Fatalf("ReadVector() error = %v", err)
	}
	want := Vector{Table: 0x10005000, StackPointer: 0x20042000, Entry: 0x100050C1}
	if v != want {
		t.Errorf("ReadVector() = %+v, want %+v", v, want)
	}
	if v.Blank() {
		t.Error("Blank() = true for a programmed vector")
	}
}

func TestReadVector_Blank(t *testing.T) {
	v, err := ReadVector(flash.NewMemory(0x10000), updater.DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	if !v.Blank() {
		t.Errorf("Blank() = false for erased flash: %+v", v)
	}
}

func TestReadVector_OutOfRange(t *testing.T) {
	if _, err := ReadVector(flash.NewMemory(0x1000), updater.DefaultLayout()); err == nil {
		t.Error("ReadVector() beyond flash succeeded, want error")
	}
}

type fakeRunner struct {
	res updater.Result
	err error
	ran int
}

func (f *fakeRunner) Run() (updater.Result, error) {
	f.ran++
	return f.res, f.err
}

func TestSequence_HandsOffAfterFailure(t *testing.T) {
	mem := flash.NewMemory(0x10000)
	layout := updater.DefaultLayout()
	if err := mem.Load(layout.AppOffset, vectorImage(0x20040000, 0x10005101)); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	runner := &fakeRunner{err: errors.New("mount failed"), res: updater.Result{Outcome: updater.Failed}}
	target := &Recorder{}
	seq := &Sequence{Updater: runner, Memory: mem, Target: target, Layout: layout, Log: diag.New(&out)}

	res := seq.Run()
	if res.Outcome != updater.Failed {
		t.Errorf("Run() outcome = %v, want %v", res.Outcome, updater.Failed)
	}
	if runner.ran != 1 {
		t.Errorf("updater ran %d times, want 1", runner.ran)
	}
	if !target.Called || target.Vector.Entry != 0x10005101 {
		t.Errorf("handoff = %+v", target)
	}

	want := "starting ota\nerror: ota aborted error=mount failed\nota completed\n"
	if out.String() != want {
		t.Errorf("diagnostics = %q, want %q", out.String(), want)
	}
}

func TestSequence_VectorReadFailureStillHandsOff(t *testing.T) {
	layout := updater.DefaultLayout()
	target := &Recorder{}
	seq := &Sequence{Updater: &fakeRunner{}, Memory: flash.NewMemory(0x1000), Target: target, Layout: layout}

	seq.Run()
	if !target.Called {
		t.Fatal("handoff not invoked")
	}
	if target.Vector.Table != layout.AppBase() {
		t.Errorf("VTOR = 0x%X, want 0x%X", target.Vector.Table, layout.AppBase())
	}
}

// End to end: a provisioned table updates the application image and the
// handoff sees the new vector.
func TestSequence_UpdatesApplication(t *testing.T) {
	layout := updater.DefaultLayout()
	mem := flash.NewMemory(0x40000)
	if err := mem.Load(layout.AppOffset, vectorImage(0x20040000, 0x10005101)); err != nil {
		t.Fatal(err)
	}

	app := vectorImage(0x20042000, 0x100051F1)
	tbl := &table.Table{
		FSStart:     0x10100000,
		FSBlockSize: 4096,
		FSSize:      0x40000,
	}
	e, err := table.NewWrite("app.bin", 0, uint32(len(app)), layout.AppOffset)
	if err != nil {
		t.Fatal(err)
	}
	tbl.Entries = []table.Entry{e}
	buf, err := tbl.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.Load(layout.TableOffset, buf); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	log := diag.New(&out)
	fs := fsimage.NewImage(fstest.MapFS{"app.bin": {Data: app}}, nil)
	exec := updater.New(flash.NewRegion(mem, nil), mem, fs, updater.WithLogger(log))
	target := &Recorder{}
	seq := &Sequence{Updater: exec, Memory: mem, Target: target, Layout: layout, Log: log}

	res := seq.Run()
	if res.Outcome != updater.Completed {
		t.Fatalf("outcome = %v, diagnostics:\n%s", res.Outcome, out.String())
	}
	if target.Vector.Entry != 0x100051F1 || target.Vector.StackPointer != 0x20042000 {
		t.Errorf("handoff vector = %+v", target.Vector)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "starting ota" || lines[len(lines)-1] != "ota completed" {
		t.Errorf("diagnostics = %q", lines)
	}

	// A second boot finds no table and goes straight to the application.
	target = &Recorder{}
	seq.Target = target
	if res := seq.Run(); res.Outcome != updater.NoUpdate {
		t.Errorf("second boot outcome = %v, want %v", res.Outcome, updater.NoUpdate)
	}
	if !target.Called {
		t.Error("second boot did not hand off")
	}
}
