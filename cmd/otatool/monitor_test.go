package main

import (
	"errors"
	"testing"
)

type fakePort struct {
	flushErr error
	flushed  int
	rts      int
}

func (p *fakePort) Flush() error {
	p.flushed++
	return p.flushErr
}

func (p *fakePort) ResetRTS() error {
	p.rts++
	return nil
}

func TestResetBoard_None(t *testing.T) {
	p := &fakePort{}
	if err := resetBoard(p, false, -1, false); err != nil {
		t.Fatalf("resetBoard() error = %v", err)
	}
	if p.flushed != 0 || p.rts != 0 {
		t.Errorf("port touched without a reset: %+v", p)
	}
}

func TestResetBoard_RTS(t *testing.T) {
	p := &fakePort{}
	if err := resetBoard(p, false, -1, true); err != nil {
		t.Fatalf("resetBoard() error = %v", err)
	}
	if p.flushed != 1 || p.rts != 1 {
		t.Errorf("port = %+v, want one flush and one RTS pulse", p)
	}
}

func TestResetBoard_FlushError(t *testing.T) {
	p := &fakePort{flushErr: errors.New("port gone")}
	err := resetBoard(p, false, -1, true)
	if err == nil || !errors.Is(err, p.flushErr) {
		t.Fatalf("resetBoard() error = %v, want %v", err, p.flushErr)
	}
	if p.rts != 0 {
		t.Error("RTS pulsed after a failed flush")
	}
}

func TestResetBoard_GPIOErrorBeforeRTS(t *testing.T) {
	p := &fakePort{}
	if err := resetBoard(p, true, -1, true); err == nil {
		t.Fatal("resetBoard() with invalid gpio succeeded, want error")
	}
	if p.rts != 0 {
		t.Error("RTS pulsed when a gpio reset was requested")
	}
}

func TestMonitorFlags_GPIOZeroIsSelectable(t *testing.T) {
	cmd := newMonitorCmd()
	if cmd.Flags().Changed("reset-gpio") {
		t.Fatal("reset-gpio reported as set by default")
	}
	if err := cmd.Flags().Set("reset-gpio", "0"); err != nil {
		t.Fatal(err)
	}
	if !cmd.Flags().Changed("reset-gpio") || resetGPIOFlag != 0 {
		t.Errorf("reset-gpio 0: changed=%v value=%d", cmd.Flags().Changed("reset-gpio"), resetGPIOFlag)
	}
}
