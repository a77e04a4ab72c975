package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

// ExportCmd returns the export command.
func ExportCmd(cfg Config, log *slog.Logger) *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.StringP("out", "o", "", "Output file (required)")
	fs.String("format", "jsonl", "Output format: jsonl or csv")

	return &Command{
		Flags: fs,
		Usage: "export <cache-dir> -o <file> [flags]",
		Short: "Export cache entries to a file",
		Long: "Walk every bucket chain and write one row per entry to the output\n" +
			"file, atomically: the file appears complete or not at all. Chains\n" +
			"that cannot be followed are reported as warnings.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execExport(ctx, o, cfg, log, fs, args)
		},
	}
}

// exportRow is one exported entry. Field order matches the CSV header.
type exportRow struct {
	Time    string `json:"time"`
	Key     string `json:"key"`
	Hash    string `json:"hash"`
	Address string `json:"address"`
	State   uint32 `json:"state"`
	Size    uint64 `json:"size"`
}

var errInterrupted = errors.New("interrupted, no output written")

func execExport(ctx context.Context, o *IO, cfg Config, log *slog.Logger, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errMissingCacheDir
	}

	out, _ := fs.GetString("out")
	if out == "" {
		return errors.New("--out is required")
	}

	format, _ := fs.GetString("format")
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unsupported format %q (jsonl or csv)", format)
	}

	dir := args[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.EffectiveCwd, dir)
	}

	if !filepath.IsAbs(out) {
		out = filepath.Join(cfg.EffectiveCwd, out)
	}

	c, err := blockfile.OpenDir(dir)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", dir, err)
	}
	defer c.Close()

	warnMissingFiles(o, c)

	var rows []exportRow

	for v := range c.Entries() {
		if ctx.Err() != nil {
			return errInterrupted
		}

		if v.Err != nil {
			warnChain(o, v.Err)

			continue
		}

		key, clean := v.Entry.KeyText()
		if !clean {
			o.Warn(
				fmt.Sprintf("entry %s (bucket %d): key is not clean text", v.Addr, v.Bucket),
				"non-text bytes are exported as U+FFFD",
			)
		}

		var total uint64
		for _, n := range v.Entry.DataSizes {
			total += uint64(n)
		}

		rows = append(rows, exportRow{
			Time:    cfg.FormatTime(v.Entry.CreatedAt()),
			Key:     key,
			Hash:    fmt.Sprintf("%08x", v.Entry.Hash),
			Address: v.Addr.String(),
			State:   v.Entry.State,
			Size:    total,
		})
	}

	buf, err := encodeRows(rows, format)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(out, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	log.Debug("export written", "path", out, "format", format, "rows", len(rows))
	o.Printf("exported %d entries to %s (%s)\n", len(rows), out, format)

	return nil
}

func encodeRows(rows []exportRow, format string) ([]byte, error) {
	var buf bytes.Buffer

	if format == "jsonl" {
		enc := json.NewEncoder(&buf)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return nil, fmt.Errorf("encode row: %w", err)
			}
		}

		return buf.Bytes(), nil
	}

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"time", "key", "hash", "address", "state", "size"}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	for _, row := range rows {
		rec := []string{
			row.Time,
			row.Key,
			row.Hash,
			row.Address,
			strconv.FormatUint(uint64(row.State), 10),
			strconv.FormatUint(row.Size, 10),
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("encode row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	return buf.Bytes(), nil
}
