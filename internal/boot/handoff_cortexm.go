//go:build tinygo && cortexm

package boot

import (
	"device"
	"device/arm"
)

// CortexM is the hardware Target for ARMv6-M/ARMv7-M cores.
type CortexM struct{}

// Handoff points VTOR at the application, loads its initial stack pointer
// and branches to its reset handler. The application's runtime copies the
// vectors to RAM itself.
func (CortexM) Handoff(v Vector) {
	arm.SCB.VTOR.Set(v.Table)
	device.AsmFull(`
		msr msp, {sp}
		bx {entry}
	`, map[string]interface{}{
		"sp":    v.StackPointer,
		"entry": v.Entry,
	})
	for {
	}
}
