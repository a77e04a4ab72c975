//go:build unix

package mmapfile

import (
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// openMapping mmaps f read-only and hands ownership of the descriptor to
// the returned File.
func openMapping(f *os.File, size int64) (*File, error) {
	if size > math.MaxInt {
		f.Close()
		return nil, unix.EOVERFLOW
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	m := &File{data: data}
	m.closeFn = func() error {
		err := unix.Munmap(data)
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	}
	return m, nil
}
