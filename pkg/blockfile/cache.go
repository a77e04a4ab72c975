package blockfile

import (
	"errors"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Cache is an opened cache directory: the parsed index plus every block
// file the index table references. The Cache owns its open files; Close
// releases them. All reads after OpenDir are positioned, so a Cache is
// safe for concurrent use.
type Cache struct {
	Index *Index

	dir     string
	files   map[string]*DataFile
	missing []string
}

// OpenDir opens the cache rooted at dir: it parses <dir>/index, derives
// the set of data_N files the index table references and opens them
// concurrently. Referenced files absent from the directory are recorded
// and later surface per chain as ErrMissingDataFile during traversal; a
// present but unparsable block file fails OpenDir.
func OpenDir(dir string) (*Cache, error) {
	idx, err := OpenIndex(filepath.Join(dir, "index"))
	if err != nil {
		return nil, err
	}

	c := &Cache{
		Index: idx,
		dir:   dir,
		files: make(map[string]*DataFile),
	}

	names := referencedFiles(idx.Table)
	results := make([]*DataFile, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			f, err := OpenDataFile(filepath.Join(dir, name))
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range results {
			if f != nil {
				f.Close()
			}
		}
		return nil, err
	}

	for i, name := range names {
		if results[i] != nil {
			c.files[name] = results[i]
		} else {
			c.missing = append(c.missing, name)
		}
	}
	return c, nil
}

// referencedFiles returns the distinct data_N names the table's block
// addresses point into, ascending. Separate-file and unknown-type
// addresses name no block file and are left to the traversal to diagnose.
func referencedFiles(table IndexTable) []string {
	seen := make(map[string]bool)
	var names []string
	for _, addr := range table {
		if !addr.Type().IsBlock() {
			continue
		}
		if name, ok := addr.Filename(); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Entries traverses every bucket chain of the cache. See Traverse for the
// ordering and diagnostic contract.
func (c *Cache) Entries() Seq {
	return Traverse(c.Index, c.files)
}

// DataFile returns the opened block file with the given name, e.g.
// "data_1", or nil when the cache does not have it.
func (c *Cache) DataFile(name string) *DataFile {
	return c.files[name]
}

// DataFiles returns the names of the opened block files, ascending.
func (c *Cache) DataFiles() []string {
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MissingFiles returns the names of block files the index references but
// the directory does not contain, ascending.
func (c *Cache) MissingFiles() []string {
	return slices.Clone(c.missing)
}

// Dir returns the directory the cache was opened from.
func (c *Cache) Dir() string { return c.dir }

// Close releases every open block file. The first error is returned but
// all files are closed regardless.
func (c *Cache) Close() error {
	var firstErr error
	for _, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
