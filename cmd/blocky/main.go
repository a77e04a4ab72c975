// blocky is an interactive explorer for Chrome blockfile cache directories.
//
// Usage:
//
//	blocky <cache-dir>   Open a cache directory (must contain an index file)
//
// Commands (in REPL):
//
//	info             Show index header summary
//	lru              Show the eviction control block
//	buckets [n]      List occupied index buckets
//	chain <bucket>   Walk one bucket chain
//	entry <addr>     Decode the entry record at a cache address
//	ranges <file>    Show allocated block runs of a data file
//	hash <key>       Hash a key the way the cache does
//	addr <hex>       Decode a cache address
//	help             Show this help
//	exit / quit / q  Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing cache directory path")
	}

	dir := os.Args[1]

	if _, err := os.Stat(filepath.Join(dir, "index")); os.IsNotExist(err) {
		return fmt.Errorf("no index file in %s: not a cache directory", dir)
	}

	cache, err := blockfile.OpenDir(dir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer cache.Close()

	repl := &REPL{cache: cache, dir: dir}

	return repl.Run()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  blocky <cache-dir>   Open a cache directory\n")
}

// REPL is the interactive command loop.
type REPL struct {
	cache *blockfile.Cache
	dir   string
	liner *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".blocky_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	// Set up liner for readline-style input
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	// Configure liner
	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	// Load history
	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	idx := r.cache.Index
	fmt.Printf("blocky - blockfile cache explorer (version=%s, entries=%d, data files=%d)\n",
		idx.Version(), idx.NumEntries, len(r.cache.DataFiles()))

	if missing := r.cache.MissingFiles(); len(missing) > 0 {
		fmt.Printf("Warning: referenced block files missing: %s\n", strings.Join(missing, ", "))
	}

	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("blocky> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Add to history
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "info":
			r.cmdInfo()

		case "lru":
			r.cmdLru()

		case "buckets", "ls", "list":
			r.cmdBuckets(args)

		case "chain":
			r.cmdChain(args)

		case "entry":
			r.cmdEntry(args)

		case "ranges":
			r.cmdRanges(args)

		case "hash":
			r.cmdHash(args)

		case "addr":
			r.cmdAddr(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands.
func (r *REPL) completer(line string) []string {
	commands := []string{
		"info", "lru", "buckets", "ls", "list",
		"chain", "entry", "ranges",
		"hash", "addr", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  info             Show index header summary")
	fmt.Println("  lru              Show the eviction control block")
	fmt.Println("  buckets [n]      List occupied index buckets (default: first 20)")
	fmt.Println("  chain <bucket>   Walk one bucket chain")
	fmt.Println("  entry <addr>     Decode the entry record at a cache address")
	fmt.Println("  ranges <file>    Show allocated block runs of a data file")
	fmt.Println("  hash <key>       Hash a key the way the cache does")
	fmt.Println("  addr <hex>       Decode a cache address")
	fmt.Println("  help             Show this help")
	fmt.Println("  exit / quit / q  Exit")
	fmt.Println()
	fmt.Println("Addresses: hex with or without 0x (e.g., 'a1010002' or '0xa1010002').")
}

// parseAddr parses a cache address from user input.
func parseAddr(s string) (blockfile.CacheAddress, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("not a 32-bit hex value: %q", s)
	}

	return blockfile.CacheAddress(v), nil
}

func (r *REPL) cmdInfo() {
	idx := r.cache.Index

	fmt.Printf("Cache:       %s\n", r.dir)
	fmt.Printf("Version:     %s\n", idx.Version())
	fmt.Printf("Entries:     %d\n", idx.NumEntries)
	fmt.Printf("Stored size: %d bytes\n", idx.StoredSize)
	fmt.Printf("Last file:   %s\n", idx.LastCreatedFileName())
	fmt.Printf("Table:       %d slots declared, %d occupied\n", idx.TableSize, len(idx.Table))
	fmt.Printf("Created:     %s\n", idx.CreatedAt().Format(time.RFC3339))
	fmt.Printf("Data files:  %s\n", joinOrNone(r.cache.DataFiles()))
	fmt.Printf("Missing:     %s\n", joinOrNone(r.cache.MissingFiles()))
}

func (r *REPL) cmdLru() {
	lru := r.cache.Index.Lru

	fmt.Printf("Filled:      %v\n", lru.FilledFlag != 0)
	fmt.Printf("Transaction: %s\n", lru.Transaction)
	fmt.Printf("Operation:   %d (list %d)\n", lru.Operation, lru.OperationList)

	for i := range lru.Heads {
		fmt.Printf("List %d:      size=%-8d head=%s tail=%s\n",
			i, lru.Sizes[i], lru.Heads[i], lru.Tails[i])
	}
}

func (r *REPL) cmdBuckets(args []string) {
	limit := 20

	if len(args) >= 1 {
		var err error

		limit, err = strconv.Atoi(args[0])
		if err != nil || limit < 1 {
			fmt.Println("Error: limit must be a positive integer")

			return
		}
	}

	buckets := r.cache.Index.Table.Buckets()
	if len(buckets) == 0 {
		fmt.Println("(empty table)")

		return
	}

	shown := 0
	for _, bucket := range buckets {
		if shown == limit {
			fmt.Printf("... (showing first %d of %d, use 'buckets <limit>' for more)\n", limit, len(buckets))

			return
		}

		fmt.Printf("%7d -> %s\n", bucket, r.cache.Index.Table[bucket])
		shown++
	}
}

func (r *REPL) cmdChain(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: chain <bucket>")

		return
	}

	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing bucket: %v\n", err)

		return
	}

	bucket := uint32(n)
	if _, ok := r.cache.Index.Table[bucket]; !ok {
		fmt.Println("(empty bucket)")

		return
	}

	for v := range r.cache.Entries() {
		if v.Bucket != bucket {
			continue
		}

		if v.Err != nil {
			fmt.Printf("hop %d: %v\n", v.Hop, v.Err)

			continue
		}

		key, _ := v.Entry.KeyText()
		fmt.Printf("hop %d: %s  hash=%08x  %s\n", v.Hop, v.Addr, v.Entry.Hash, key)
	}
}

func (r *REPL) cmdEntry(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: entry <addr>")

		return
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	name, ok := addr.Filename()
	if !ok || !addr.Type().IsBlock() {
		fmt.Printf("Error: %s does not address a block file record\n", addr)

		return
	}

	f := r.cache.DataFile(name)
	if f == nil {
		fmt.Printf("Error: %s is not open (missing or not referenced by the index)\n", name)

		return
	}

	e, err := f.ReadRecord(addr.BlockOffset())
	if err != nil {
		fmt.Printf("Error reading record: %v\n", err)

		return
	}

	key, clean := e.KeyText()

	fmt.Printf("Address:   %s\n", addr.DebugString())
	fmt.Printf("Hash:      %08x\n", e.Hash)
	fmt.Printf("Next:      %s\n", e.Next)
	fmt.Printf("Rankings:  %s\n", e.RankingsNode)
	fmt.Printf("State:     %d\n", e.State)
	fmt.Printf("Created:   %s\n", e.CreatedAt().Format(time.RFC3339))
	fmt.Printf("Key size:  %d", e.KeySize)

	if e.KeyTruncated() {
		fmt.Printf("  (inline key truncated, full key at %s)", e.LongKey)
	}

	fmt.Println()

	for i := range e.DataAddrs {
		if e.DataAddrs[i].IsZero() && e.DataSizes[i] == 0 {
			continue
		}

		fmt.Printf("Stream %d:  %d bytes at %s\n", i, e.DataSizes[i], e.DataAddrs[i])
	}

	fmt.Printf("Flags:     0x%08x\n", e.Flags)
	fmt.Printf("Self hash: %08x\n", e.SelfHash)

	if clean {
		fmt.Printf("Key:       %s\n", key)
	} else {
		fmt.Printf("Key:       %s  (non-text bytes shown as U+FFFD)\n", key)
	}
}

func (r *REPL) cmdRanges(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ranges <file>  (e.g., 'ranges data_1' or 'ranges 1')")

		return
	}

	name := args[0]
	if !strings.HasPrefix(name, "data_") {
		name = "data_" + name
	}

	f := r.cache.DataFile(name)
	if f == nil {
		fmt.Printf("Error: %s is not open (have: %s)\n", name, joinOrNone(r.cache.DataFiles()))

		return
	}

	alloc := f.Allocated()
	ranges := f.BlockRanges()

	fmt.Printf("%s: %d blocks of %d bytes allocated in %d runs\n",
		name, alloc.GetCardinality(), f.BlockSize, len(ranges))

	for _, rg := range ranges {
		fmt.Printf("  [%d,%d)  %d blocks\n", rg.Start, rg.End, rg.End-rg.Start)
	}
}

func (r *REPL) cmdHash(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: hash <key>")

		return
	}

	key := args[0]
	fmt.Printf("%08x  %s\n", blockfile.SuperFastHash([]byte(key)), key)
}

func (r *REPL) cmdAddr(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: addr <hex>")

		return
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println(addr.DebugString())
}

// joinOrNone renders a name list, or "(none)" when empty.
func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}

	return strings.Join(names, ", ")
}
