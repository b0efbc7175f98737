//go:build tinygo && rp2040

// Command updater is the pre-boot firmware. It applies a pending command
// table from the LittleFS partition, then starts the application.
package main

import (
	"machine"

	"github.com/bigbag/pico-ota/internal/boot"
	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/flash"
	"github.com/bigbag/pico-ota/internal/lfs"
	"github.com/bigbag/pico-ota/internal/updater"
)

const baudRate = 115200

func main() {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: baudRate,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	log := diag.New(uart)

	layout := updater.DefaultLayout()
	dev := flash.NewOnboard()
	fs := lfs.New(machine.Flash, uint32(machine.FlashDataStart()), log)

	exec := updater.New(
		flash.NewRegion(dev, flash.Interrupt{}),
		dev,
		fs,
		updater.WithLayout(layout),
		updater.WithLogger(log),
	)

	seq := &boot.Sequence{
		Updater: exec,
		Memory:  dev,
		Target:  boot.CortexM{},
		Layout:  layout,
		Log:     log,
	}
	seq.Run()
}
