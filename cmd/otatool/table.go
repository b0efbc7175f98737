package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/hexfile"
	"github.com/bigbag/pico-ota/internal/table"
	"github.com/bigbag/pico-ota/internal/updater"
)

var (
	fsStartFlag     uint32
	fsBlockSizeFlag uint32
	fsSizeFlag      uint32
	writeFlags      []string
	outFlag         string
	hexFlag         bool
)

func newTableCmd() *cobra.Command {
	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "Build or inspect command tables",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Encode a command table",
		Long: `Encode a command table for the updater's reserved flash page.

Each --write adds a command copying a file range into flash:
  --write firmware.bin:0:123456:0x5000
fields are name:file-offset:length:flash-offset. Numbers accept 0x.

With --hex the table is written as Intel HEX at the command page address,
ready to be flashed alongside the filesystem image.`,
		Args: cobra.NoArgs,
		RunE: runTableBuild,
	}
	buildCmd.Flags().Uint32Var(&fsStartFlag, "fs-start", 0x10100000, "Filesystem partition start (XIP address)")
	buildCmd.Flags().Uint32Var(&fsBlockSizeFlag, "fs-block-size", 4096, "Filesystem block size")
	buildCmd.Flags().Uint32Var(&fsSizeFlag, "fs-size", 0x100000, "Filesystem partition size")
	buildCmd.Flags().StringArrayVarP(&writeFlags, "write", "w", nil, "Write command name:offset:length:address (repeatable)")
	buildCmd.Flags().StringVarP(&outFlag, "output", "o", "ota_command.bin", "Output file")
	buildCmd.Flags().BoolVar(&hexFlag, "hex", false, "Write Intel HEX instead of raw binary")
	buildCmd.MarkFlagRequired("write")

	inspectCmd := &cobra.Command{
		Use:   "inspect <table.bin|table.hex>",
		Short: "Decode and print a command table",
		Args:  cobra.ExactArgs(1),
		RunE:  runTableInspect,
	}

	tableCmd.AddCommand(buildCmd, inspectCmd)
	return tableCmd
}

func runTableBuild(cmd *cobra.Command, args []string) error {
	tbl := &table.Table{
		FSStart:     fsStartFlag,
		FSBlockSize: fsBlockSizeFlag,
		FSSize:      fsSizeFlag,
	}
	for _, w := range writeFlags {
		e, err := parseWrite(w)
		if err != nil {
			return err
		}
		tbl.Entries = append(tbl.Entries, e)
	}

	buf, err := tbl.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}

	if hexFlag {
		var out bytes.Buffer
		layout := updater.DefaultLayout()
		seg := hexfile.Segment{Address: layout.XIPBase + layout.TableOffset, Data: buf}
		if err := hexfile.Encode(&out, seg); err != nil {
			return err
		}
		buf = out.Bytes()
	}

	if err := os.WriteFile(outFlag, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}

	fmt.Printf("Table: %s (%d commands, crc %s)\n", outFlag, len(tbl.Entries), diag.Hex(tbl.CRC))
	return nil
}

// parseWrite parses name:offset:length:address.
func parseWrite(s string) (table.Entry, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return table.Entry{}, fmt.Errorf("invalid write %q: want name:offset:length:address", s)
	}

	var nums [3]uint32
	for i, p := range parts[1:] {
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			return table.Entry{}, fmt.Errorf("invalid write %q: %w", s, err)
		}
		nums[i] = uint32(v)
	}

	e, err := table.NewWrite(parts[0], nums[0], nums[1], nums[2])
	if err != nil {
		return table.Entry{}, fmt.Errorf("invalid write %q: %w", s, err)
	}
	return e, nil
}

func runTableInspect(cmd *cobra.Command, args []string) error {
	buf, err := readTable(args[0])
	if err != nil {
		return err
	}

	tbl, err := table.Decode(buf)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	crc := "ok"
	if err := tbl.VerifyChecksum(buf); err != nil {
		crc = "MISMATCH"
	}

	fmt.Printf("Filesystem: start %s, block %s, size %s\n",
		diag.Hex(tbl.FSStart), diag.Hex(tbl.FSBlockSize), diag.Hex(tbl.FSSize))
	fmt.Printf("CRC:        %s (%s)\n", diag.Hex(tbl.CRC), crc)
	fmt.Printf("Commands:   %d (%d writes)\n", len(tbl.Entries), tbl.Writes())
	for i, e := range tbl.Entries {
		if e.Kind != table.KindWrite {
			fmt.Printf("  %d: %s (0x%02X), skipped by the updater\n", i, table.KindName(e.Kind), e.Kind)
			continue
		}
		fmt.Printf("  %d: write %s [%d+%d] -> %s\n",
			i, e.Filename, e.FileOffset, e.FileLength, diag.Hex(e.FlashAddress))
	}

	return nil
}

// readTable loads table bytes from a raw file or from an Intel HEX file at
// the command page address.
func readTable(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	if !hexfile.IsHex(path) {
		return data, nil
	}

	segs, err := hexfile.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	layout := updater.DefaultLayout()
	return hexfile.Extract(segs, layout.XIPBase+layout.TableOffset, table.Size)
}
