package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// FakePDF returns size bytes that start with a PDF header. A size smaller
// than the header returns just the header.
func FakePDF(size int) []byte {
	header := []byte("%PDF-1.7\n")
	if size <= len(header) {
		return header
	}
	return append(header, bytes.Repeat([]byte{0x42}, size-len(header))...)
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
