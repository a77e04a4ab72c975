//go:build !unix

package mmapfile

import (
	"io"
	"os"
)

// openMapping reads the whole file into memory on platforms without
// mmap. The descriptor is closed before returning.
func openMapping(f *os.File, size int64) (*File, error) {
	defer f.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return &File{data: data}, nil
}
