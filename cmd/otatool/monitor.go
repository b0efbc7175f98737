package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigbag/pico-ota/internal/serial"
	"github.com/bigbag/pico-ota/internal/target"
)

var (
	portFlag      string
	baudFlag      int
	resetGPIOFlag int
	resetRTSFlag  bool
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show updater diagnostics from the device UART",
		Long: `Print the device's UART output until interrupted.

With --reset-gpio or --reset-rts the board is reset first so the updater's
output from the next boot is captured from the start.`,
		Args: cobra.NoArgs,
		RunE: runMonitor,
	}
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (default: first available)")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	cmd.Flags().IntVar(&resetGPIOFlag, "reset-gpio", -1, "Host GPIO that power-cycles the board")
	cmd.Flags().BoolVar(&resetRTSFlag, "reset-rts", false, "Pulse RTS to reset the board")

	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	portName := portFlag
	if portName == "" {
		ports, err := serial.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return fmt.Errorf("no serial ports found")
		}
		portName = ports[0]
	}

	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Printf("Monitoring %s at %d baud (Ctrl-C to stop)\n", port.PortName(), port.BaudRate())

	if err := resetBoard(port, cmd.Flags().Changed("reset-gpio"), resetGPIOFlag, resetRTSFlag); err != nil {
		return err
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		close(stop)
	}()

	return port.Copy(os.Stdout, stop)
}

type resetPort interface {
	Flush() error
	ResetRTS() error
}

// resetBoard restarts the board so the monitor sees the updater from its
// first line. The GPIO power cycle wins over RTS when both are asked for.
func resetBoard(port resetPort, useGPIO bool, pin int, rts bool) error {
	if !useGPIO && !rts {
		return nil
	}
	if err := port.Flush(); err != nil {
		return fmt.Errorf("failed to flush port: %w", err)
	}

	if useGPIO {
		rst, err := target.OpenReset(pin)
		if err != nil {
			return err
		}
		defer rst.Close()
		return rst.PowerCycle()
	}

	if err := port.ResetRTS(); err != nil {
		return fmt.Errorf("failed to reset via RTS: %w", err)
	}
	return nil
}
