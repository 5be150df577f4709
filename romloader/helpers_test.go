package romloader

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
)

const testTempDir = "/tmp"

func newTestFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testTempDir, 0755); err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	return fs
}

func newTestLoader(t *testing.T, fs afero.Fs, opts ...Option) *Loader {
	t.Helper()
	return New(append([]Option{WithFs(fs), WithTempDir(testTempDir)}, opts...)...)
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// spoolFiles counts leftover spool files.
func spoolFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, testTempDir)
	if err != nil {
		t.Fatalf("Failed to read temp dir: %v", err)
	}
	return len(entries)
}

// buildNDS returns a small synthetic DS image with distinct arm9, arm7 and
// icon blocks.
func buildNDS() []byte {
	img := make([]byte, 0x6A00)
	copy(img[0:], "TESTGAME")
	copy(img[0x0C:], "ATSE")
	copy(img[0x10:], "01")

	put := func(off int, v uint32) { binary.LittleEndian.PutUint32(img[off:], v) }
	put(0x20, 0x4000) // arm9 offset
	put(0x2C, 0x100)  // arm9 size
	put(0x30, 0x5000) // arm7 offset
	put(0x3C, 0x80)   // arm7 size
	put(0x68, 0x6000) // icon offset

	for i := 0; i < 0x100; i++ {
		img[0x4000+i] = byte(i)
	}
	for i := 0; i < 0x80; i++ {
		img[0x5000+i] = byte(0xFF - i)
	}
	for i := 0; i < iconSize; i++ {
		img[0x6000+i] = byte(i * 7)
	}
	return img
}

func buildZip(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	if err != nil {
		t.Fatalf("Failed to create file in zip: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("Failed to write to zip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func buildGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Failed to write to gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return buf.Bytes()
}

func buildTarGz(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("Failed to write tar header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("Failed to write tar entry: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	return buildGzip(t, tarBuf.Bytes())
}
