package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

// LsCmd returns the ls command.
func LsCmd(cfg Config, log *slog.Logger) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.Int("limit", cfg.Limit, "Maximum entries to show (0 = no limit)")
	fs.Int("offset", 0, "Skip first N entries")
	fs.Bool("long", false, "Show hash, address, state and size columns")

	return &Command{
		Flags: fs,
		Usage: "ls <cache-dir> [flags]",
		Short: "List cache entries",
		Long: "Walk every index bucket chain and print one line per entry:\n" +
			"creation time and key, tab separated. Chains that cannot be\n" +
			"followed are reported as warnings and the listing continues.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execLs(ctx, o, cfg, log, fs, args)
		},
	}
}

var errMissingCacheDir = errors.New("missing cache directory argument")

func execLs(ctx context.Context, o *IO, cfg Config, log *slog.Logger, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errMissingCacheDir
	}

	limit, _ := fs.GetInt("limit")
	if limit < 0 {
		return errors.New("--limit must be non-negative")
	}

	offset, _ := fs.GetInt("offset")
	if offset < 0 {
		return errors.New("--offset must be non-negative")
	}

	long, _ := fs.GetBool("long")

	dir := args[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.EffectiveCwd, dir)
	}

	c, err := blockfile.OpenDir(dir)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", dir, err)
	}
	defer c.Close()

	log.Debug("cache opened",
		"dir", dir,
		"version", c.Index.Version(),
		"buckets", len(c.Index.Table),
		"data_files", len(c.DataFiles()),
		"missing_files", len(c.MissingFiles()))

	warnMissingFiles(o, c)

	var seen, shown int

	for v := range c.Entries() {
		if ctx.Err() != nil {
			o.Warn("listing interrupted", "output is incomplete; rerun to list every entry")

			break
		}

		if v.Err != nil {
			warnChain(o, v.Err)

			continue
		}

		seen++
		if seen <= offset {
			continue
		}

		if limit > 0 && shown >= limit {
			break
		}

		shown++
		printEntry(o, cfg, v, long)
	}

	log.Debug("listing done", "entries", seen, "shown", shown)

	return nil
}

// warnMissingFiles reports block files the index references but the
// directory does not contain.
func warnMissingFiles(o *IO, c *blockfile.Cache) {
	for _, name := range c.MissingFiles() {
		o.Warn(
			fmt.Sprintf("referenced block file missing: %s", name),
			"entries chained into it cannot be listed; work on a complete copy of the cache directory",
		)
	}
}

// warnChain turns a traversal diagnostic into an actionable warning.
func warnChain(o *IO, err error) {
	switch {
	case errors.Is(err, blockfile.ErrChainTooLong):
		o.Warn(err.Error(), "the chain is cyclic or corrupt; entries before the bound are listed")
	case errors.Is(err, blockfile.ErrMissingDataFile):
		o.Warn(err.Error(), "recover the missing block file to list the rest of this chain")
	default:
		o.Warn(err.Error(), "the rest of this chain is not listed")
	}
}

func printEntry(o *IO, cfg Config, v blockfile.Visit, long bool) {
	key, clean := v.Entry.KeyText()
	if !clean {
		o.Warn(
			fmt.Sprintf("entry %s (bucket %d): key is not clean text", v.Addr, v.Bucket),
			"non-text bytes are shown as U+FFFD; inspect the raw record for the exact key",
		)
	}

	if v.Entry.KeyTruncated() {
		o.Warn(
			fmt.Sprintf("entry %s (bucket %d): key longer than the inline field (%d bytes)", v.Addr, v.Bucket, v.Entry.KeySize),
			"only the first 160 bytes are shown; the full key lives in a separate block",
		)
	}

	when := cfg.FormatTime(v.Entry.CreatedAt())

	if !long {
		o.Printf("%s\t%s\n", when, key)

		return
	}

	var total uint64
	for _, n := range v.Entry.DataSizes {
		total += uint64(n)
	}

	o.Printf("%s\t%08x\t%s\t%d\t%d\t%s\n", when, v.Entry.Hash, v.Addr, v.Entry.State, total, key)
}
