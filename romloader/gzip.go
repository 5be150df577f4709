package romloader

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// extractFromGzip spools the ROM inside a gzip file, or the first ROM
// file of a tar.gz archive
func (l *Loader) extractFromGzip(r io.Reader, path string) (*ROM, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	lowerPath := strings.ToLower(path)
	if strings.HasSuffix(lowerPath, ".tar.gz") || strings.HasSuffix(lowerPath, ".tgz") {
		return l.extractFromTar(gr)
	}

	// Plain .gz file: the decompressed content is the ROM
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}
	return l.spool(name, gr)
}

// extractFromTar spools the first ROM file of a tar archive
func (l *Loader) extractFromTar(r io.Reader) (*ROM, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !isROMFile(header.Name, l.extensions) {
			continue
		}

		return l.spool(header.Name, tr)
	}

	return nil, ErrNoROMFile
}
