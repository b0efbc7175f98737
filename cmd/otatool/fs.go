package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/flash"
	"github.com/bigbag/pico-ota/internal/hexfile"
	"github.com/bigbag/pico-ota/internal/lfs"
)

var (
	fsBuildDir   string
	fsBuildStart uint32
	fsBuildBlock uint32
	fsBuildSize  uint32
	fsBuildOut   string
)

func newFSCmd() *cobra.Command {
	fsCmd := &cobra.Command{
		Use:   "fs",
		Short: "Build LittleFS partition images",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Pack a directory into a LittleFS partition",
		Long: `Pack the files at the root of --dir into a LittleFS partition image.

A .hex output is placed at the partition's XIP address and can be passed to
"otatool simulate --flash" or flashed directly; any other name gets the
raw partition bytes.`,
		Args: cobra.NoArgs,
		RunE: runFSBuild,
	}
	buildCmd.Flags().StringVarP(&fsBuildDir, "dir", "d", "", "Directory to pack")
	buildCmd.Flags().Uint32Var(&fsBuildStart, "fs-start", 0x10100000, "Filesystem partition start (XIP address)")
	buildCmd.Flags().Uint32Var(&fsBuildBlock, "fs-block-size", 4096, "Filesystem block size")
	buildCmd.Flags().Uint32Var(&fsBuildSize, "fs-size", 0x100000, "Filesystem partition size")
	buildCmd.Flags().StringVarP(&fsBuildOut, "output", "o", "littlefs.hex", "Output file")
	buildCmd.MarkFlagRequired("dir")

	fsCmd.AddCommand(buildCmd)
	return fsCmd
}

func runFSBuild(cmd *cobra.Command, args []string) error {
	img, files, err := buildPartition(os.DirFS(fsBuildDir), fsBuildStart, fsBuildBlock, fsBuildSize)
	if err != nil {
		return err
	}

	data := img.Bytes()
	if hexfile.IsHex(fsBuildOut) {
		var out bytes.Buffer
		if err := hexfile.DumpFlash(&out, img, fsBuildStart); err != nil {
			return err
		}
		data = out.Bytes()
	}
	if err := os.WriteFile(fsBuildOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write partition: %w", err)
	}

	fmt.Printf("Partition: %s (%d files at %s, %d KB)\n",
		fsBuildOut, files, diag.Hex(fsBuildStart), fsBuildSize/1024)
	return nil
}

// buildPartition formats a partition-sized flash and fills it from dir.
func buildPartition(dir fs.FS, start, blockSize, size uint32) (*flash.Memory, int, error) {
	img := flash.NewMemory(size)
	w, err := lfs.Format(img, start, start, blockSize, size)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to format partition: %w", err)
	}
	if err := w.AddFS(dir); err != nil {
		w.Close()
		return nil, 0, fmt.Errorf("failed to pack files: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to finish partition: %w", err)
	}
	return img, w.Files(), nil
}
