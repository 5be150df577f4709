package romloader

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
)

// extractFrom7z spools the first ROM file of a 7z archive
func (l *Loader) extractFrom7z(r io.ReaderAt, size int64) (*ROM, error) {
	zr, err := sevenzip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isROMFile(f.Name, l.extensions) {
			continue
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
