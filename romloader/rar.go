package romloader

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// extractFromRAR spools the first ROM file of a RAR archive
func (l *Loader) extractFromRAR(r io.Reader) (*ROM, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open rar: %w", err)
	}

	for {
		header, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir {
			continue
		}
		if !isROMFile(header.Name, l.extensions) {
			continue
		}

		return l.spool(header.Name, rr)
	}

	return nil, ErrNoROMFile
}
