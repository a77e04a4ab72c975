// Package mmapfile provides read-only memory-mapped file access with an
// io.ReaderAt surface. On platforms without mmap support the file is
// read into memory instead; callers see the same behavior either way.
package mmapfile

import (
	"fmt"
	"io"
	"os"
)

// File is a read-only view of a file's contents.
type File struct {
	data    []byte
	closeFn func() error
}

// Open maps the file at path. Empty files open successfully and report
// size 0.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &File{closeFn: f.Close}, nil
	}

	return openMapping(f, size)
}

// Size returns the length of the mapped contents in bytes.
func (m *File) Size() int64 { return int64(len(m.data)) }

// Bytes returns the mapped contents. The slice is only valid until Close.
func (m *File) Bytes() []byte { return m.data }

// ReadAt implements io.ReaderAt over the mapped contents.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("mmapfile: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases the mapping and the underlying file. Close is not safe
// to call concurrently with ReadAt.
func (m *File) Close() error {
	m.data = nil
	if m.closeFn == nil {
		return nil
	}
	err := m.closeFn()
	m.closeFn = nil
	return err
}
