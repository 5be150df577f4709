package romloader

import (
	"archive/zip"
	"fmt"
	"io"
)

// extractFromZIP spools the first ROM file of a ZIP archive
func (l *Loader) extractFromZIP(r io.ReaderAt, size int64) (*ROM, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isROMFile(f.Name, l.extensions) {
			continue
		}
		if f.UncompressedSize64 > uint64(l.maxSize) {
			return nil, ErrFileTooLarge
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()

		return l.spool(f.Name, rc)
	}

	return nil, ErrNoROMFile
}
