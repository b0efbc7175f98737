package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/pico-ota/internal/boot"
	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/flash"
	"github.com/bigbag/pico-ota/internal/fsimage"
	"github.com/bigbag/pico-ota/internal/hexfile"
	"github.com/bigbag/pico-ota/internal/lfs"
	"github.com/bigbag/pico-ota/internal/table"
	"github.com/bigbag/pico-ota/internal/updater"
)

var (
	flashFlags    []string
	flashSizeFlag uint32
	fsDirFlag     string
	tableFlag     string
	checksumFlag  bool
	simOutFlag    string
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the updater against a simulated flash",
		Long: `Run one boot of the updater against an in-memory flash.

The flash starts erased, optionally seeded from one or more --flash images
(Intel HEX at XIP addresses or a raw image from offset 0) and --table.
Files named by the table are read from the LittleFS partition in the
simulated flash (see "otatool fs build"), or from the --fs directory when
given. Diagnostics are printed as the device would print them; the
resulting flash is written to --output.`,
		Args: cobra.NoArgs,
		RunE: runSimulate,
	}
	cmd.Flags().StringArrayVar(&flashFlags, "flash", nil, "Initial flash image (.hex or .bin, repeatable)")
	cmd.Flags().Uint32Var(&flashSizeFlag, "flash-size", 2*1024*1024, "Flash size in bytes")
	cmd.Flags().StringVar(&fsDirFlag, "fs", "", "Directory standing in for the LittleFS partition")
	cmd.Flags().StringVar(&tableFlag, "table", "", "Command table to place in the command page (.bin or .hex)")
	cmd.Flags().BoolVar(&checksumFlag, "checksum", false, "Reject tables with a bad CRC")
	cmd.Flags().StringVarP(&simOutFlag, "output", "o", "", "Write the resulting flash as Intel HEX")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	layout := updater.DefaultLayout()
	mem := flash.NewMemory(flashSizeFlag)

	for _, path := range flashFlags {
		if err := hexfile.LoadFlash(path, mem, layout.XIPBase); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	if tableFlag != "" {
		buf, err := readTable(tableFlag)
		if err != nil {
			return err
		}
		if err := mem.Load(layout.TableOffset, buf); err != nil {
			return fmt.Errorf("failed to place table: %w", err)
		}
	}

	fmt.Printf("Flash: %d KB, command page %s, application %s\n",
		mem.Size()/1024, diag.Hex(layout.XIPBase+layout.TableOffset), diag.Hex(layout.AppBase()))

	log := diag.New(os.Stdout)
	opts := []updater.Option{
		updater.WithLayout(layout),
		updater.WithLogger(log),
		updater.WithChecksum(checksumFlag),
	}

	if total := pendingBlocks(mem, layout); total > 0 {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Updating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		opts = append(opts, updater.WithProgressCallback(func(p updater.Progress) {
			bar.Set(p.Total)
		}))
	}

	var fs fsimage.Filesystem = lfs.New(mem, layout.XIPBase, log)
	if fsDirFlag != "" {
		fs = fsimage.NewImage(os.DirFS(fsDirFlag), log)
	}
	exec := updater.New(flash.NewRegion(mem, nil), mem, fs, opts...)
	target := &boot.Recorder{}
	seq := &boot.Sequence{Updater: exec, Memory: mem, Target: target, Layout: layout, Log: log}

	start := time.Now()
	res := seq.Run()

	fmt.Printf("\nResult:   %s (%d written, %d skipped, %d blocks) in %v\n",
		res.Outcome, res.Written, res.Skipped, res.Blocks, time.Since(start).Round(time.Millisecond))
	fmt.Printf("Table:    %s\n", consumed(res.Consumed))
	fmt.Printf("Handoff:  VTOR %s, SP %s, entry %s\n",
		diag.Hex(target.Vector.Table), diag.Hex(target.Vector.StackPointer), diag.Hex(target.Vector.Entry))
	if target.Vector.Blank() {
		fmt.Println("Warning: application vector is blank")
	}

	if simOutFlag != "" {
		var out bytes.Buffer
		if err := hexfile.DumpFlash(&out, mem, layout.XIPBase); err != nil {
			return err
		}
		if err := os.WriteFile(simOutFlag, out.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write flash image: %w", err)
		}
		fmt.Printf("Flash image: %s\n", simOutFlag)
	}

	if res.Outcome == updater.Failed || res.Outcome == updater.Rejected {
		return fmt.Errorf("update %s", res.Outcome)
	}
	return nil
}

// pendingBlocks returns the number of blocks the table in mem will commit,
// or 0 when there is nothing to do.
func pendingBlocks(mem *flash.Memory, layout updater.Layout) int {
	buf := make([]byte, table.Size)
	if _, err := mem.ReadAt(buf, int64(layout.TableOffset)); err != nil {
		return 0
	}
	tbl, err := table.Decode(buf)
	if err != nil {
		return 0
	}
	var n uint32
	for _, e := range tbl.Entries {
		if e.Kind == table.KindWrite {
			n += flash.Blocks(e.FileLength, flash.BlockSize)
		}
	}
	return int(n)
}

func consumed(ok bool) string {
	if ok {
		return "consumed"
	}
	return "left in place"
}
