package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bigbag/pico-ota/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var verboseFlag bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "otatool",
		Short: "Provision and test Pico OTA command tables",
		Long: `otatool prepares and checks updates for the Pico OTA pre-boot updater.

The updater copies files from the device's LittleFS partition into
application flash when it finds a command table in its reserved flash
page. otatool builds and inspects those tables, runs the updater against
a simulated flash image, and shows the updater's diagnostic output.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verboseFlag {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("otatool %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(newTableCmd(), newFSCmd(), newSimulateCmd(), newMonitorCmd(), versionCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}
