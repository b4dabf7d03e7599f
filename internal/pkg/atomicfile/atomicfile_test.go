package atomicfile_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/atomicfile"
)

func TestWriteReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.txt")

	for _, content := range []string{"first", "second"} {
		err := atomicfile.Write(path, func(w io.Writer) error {
			_, err := io.WriteString(w, content)
			return err
		})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		data, _ := os.ReadFile(path)
		if string(data) != content {
			t.Errorf("content = %q, want %q", string(data), content)
		}
	}
}

func TestFailedWriteKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	os.WriteFile(path, []byte("original"), 0o644)

	err := atomicfile.Write(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the write error to be returned")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("content = %q, want original", string(data))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("found %d entries in directory, temporary file was not cleaned up", len(entries))
	}
}
