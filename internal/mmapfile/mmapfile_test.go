package mmapfile_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/chromecache/internal/mmapfile"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func Test_Open_Maps_File_Contents(t *testing.T) {
	t.Parallel()

	content := []byte("hello, mapped world")

	m, err := mmapfile.Open(writeTemp(t, content))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if got, want := m.Size(), int64(len(content)); got != want {
		t.Errorf("Size=%d, want=%d", got, want)
	}

	if !bytes.Equal(m.Bytes(), content) {
		t.Errorf("Bytes=%q, want=%q", m.Bytes(), content)
	}
}

func Test_ReadAt_Reads_At_Offset(t *testing.T) {
	t.Parallel()

	m, err := mmapfile.Open(writeTemp(t, []byte("hello, mapped world")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	buf := make([]byte, 6)

	n, err := m.ReadAt(buf, 7)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if got, want := string(buf[:n]), "mapped"; got != want {
		t.Errorf("ReadAt=%q, want=%q", got, want)
	}
}

func Test_ReadAt_Reports_EOF_At_And_Past_End(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789")

	m, err := mmapfile.Open(writeTemp(t, content))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	// Short read across the end
	buf := make([]byte, 8)

	n, err := m.ReadAt(buf, 6)
	if n != 4 || !errors.Is(err, io.EOF) {
		t.Errorf("ReadAt(8 bytes at 6) = (%d, %v), want (4, EOF)", n, err)
	}

	if got, want := string(buf[:n]), "6789"; got != want {
		t.Errorf("partial read=%q, want=%q", got, want)
	}

	// At the end
	n, err = m.ReadAt(buf, int64(len(content)))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("ReadAt at end = (%d, %v), want (0, EOF)", n, err)
	}
}

func Test_ReadAt_Rejects_Negative_Offset(t *testing.T) {
	t.Parallel()

	m, err := mmapfile.Open(writeTemp(t, []byte("x")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if _, err := m.ReadAt(make([]byte, 1), -1); err == nil {
		t.Error("ReadAt(-1) succeeded, want error")
	}
}

func Test_Open_Empty_File(t *testing.T) {
	t.Parallel()

	m, err := mmapfile.Open(writeTemp(t, nil))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got, want := m.Size(), int64(0); got != want {
		t.Errorf("Size=%d, want=%d", got, want)
	}

	if _, err := m.ReadAt(make([]byte, 1), 0); !errors.Is(err, io.EOF) {
		t.Errorf("ReadAt on empty = %v, want EOF", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func Test_Open_Missing_File_Fails(t *testing.T) {
	t.Parallel()

	_, err := mmapfile.Open(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(absent) = %v, want not-exist", err)
	}
}

func Test_Close_Twice_Is_Safe(t *testing.T) {
	t.Parallel()

	m, err := mmapfile.Open(writeTemp(t, []byte("once")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
