package cli

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

// InfoCmd returns the info command.
func InfoCmd(cfg Config, log *slog.Logger) *Command {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.Bool("debug", false, "Hex dump the raw structure bytes alongside the decoded fields")

	return &Command{
		Flags: fs,
		Usage: "info <file> [flags]",
		Short: "Describe one cache file",
		Long: "Identify the file by its signature and print the decoded header:\n" +
			"an index file gets the header and table summary, a data_N block\n" +
			"file the header and allocation summary.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execInfo(o, cfg, log, fs, args)
		},
	}
}

func execInfo(o *IO, cfg Config, log *slog.Logger, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one file path, got %d", len(args))
	}

	debug, _ := fs.GetBool("debug")

	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.EffectiveCwd, path)
	}

	magicBuf, err := readPrefix(path, 4)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	magic := binary.LittleEndian.Uint32(magicBuf)

	switch magic {
	case blockfile.IndexSignature:
		log.Debug("file identified", "path", path, "kind", "index")

		return infoIndex(o, cfg, path, debug)
	case blockfile.DataSignature:
		log.Debug("file identified", "path", path, "kind", "data")

		return infoData(o, path, debug)
	default:
		return fmt.Errorf("%s: unrecognized signature 0x%08x (neither index nor block file)", path, magic)
	}
}

func infoIndex(o *IO, cfg Config, path string, debug bool) error {
	idx, err := blockfile.OpenIndex(path)
	if err != nil {
		return err
	}

	o.Println("Index file:", path)
	o.Printf("  Version:     %s\n", idx.Version())
	o.Printf("  Entries:     %d\n", idx.NumEntries)
	o.Printf("  Stored size: %d bytes\n", idx.StoredSize)
	o.Printf("  Last file:   %s\n", idx.LastCreatedFileName())
	o.Printf("  Table:       %d slots declared, %d occupied\n", idx.TableSize, len(idx.Table))
	o.Printf("  Created:     %s\n", cfg.FormatTime(idx.CreatedAt()))
	o.Printf("  Eviction:    filled=%v sizes=%v\n", idx.Lru.FilledFlag != 0, idx.Lru.Sizes)

	if !debug {
		return nil
	}

	raw, err := readPrefix(path, blockfile.IndexHeaderSize+blockfile.LruDataSize)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	o.Println()
	o.Println("Header data:")
	o.Printf("%s", hex.Dump(raw[:blockfile.IndexHeaderSize]))
	o.Println()
	o.Println("Eviction block data:")
	o.Printf("%s", hex.Dump(raw[blockfile.IndexHeaderSize:]))

	return nil
}

func infoData(o *IO, path string, debug bool) error {
	f, err := blockfile.OpenDataFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	next := "none"
	if f.NextFileNumber != 0 {
		next = fmt.Sprintf("data_%d", f.NextFileNumber)
	}

	alloc := f.Allocated()
	ranges := f.BlockRanges()

	o.Println("Block file:", path)
	o.Printf("  Version:     %s\n", f.Version())
	o.Printf("  File:        data_%d (next: %s)\n", f.FileNumber, next)
	o.Printf("  Block size:  %d bytes\n", f.BlockSize)
	o.Printf("  Entries:     %d of %d\n", f.NumEntries, f.MaxEntries)
	o.Printf("  Allocated:   %d blocks in %d runs\n", alloc.GetCardinality(), len(ranges))

	if len(ranges) > 0 {
		o.Printf("  Runs:        %s\n", formatRuns(ranges, 8))
	}

	if !debug {
		return nil
	}

	raw, err := readPrefix(path, blockfile.DataHeaderSize)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	o.Println()
	o.Println("Header data:")
	o.Printf("%s", hex.Dump(raw))

	return nil
}

// formatRuns renders up to max allocation runs as half-open intervals.
func formatRuns(ranges []blockfile.BlockRange, max int) string {
	var b strings.Builder

	for i, r := range ranges {
		if i == max {
			fmt.Fprintf(&b, " +%d more", len(ranges)-max)

			break
		}

		if i > 0 {
			b.WriteByte(' ')
		}

		fmt.Fprintf(&b, "[%d,%d)", r.Start, r.End)
	}

	return b.String()
}

// readPrefix reads the first n bytes of the file at path.
func readPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("reading first %d bytes: %w", n, err)
	}

	return buf, nil
}
