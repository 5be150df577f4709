// Package romloader opens Nintendo DS ROM images, directly or from inside
// compressed archives (ZIP, 7z, gzip, tar.gz, RAR), and computes the
// identity hash the achievement server knows them by.
package romloader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
)

// Largest DS cartridge image (4Gbit)
const maxROMSize = 512 * 1024 * 1024

// Extensions are the file extensions recognised as DS ROM images.
var Extensions = []string{".nds", ".dsi", ".srl"}

// ErrNoROMFile is returned when no ROM file is found in an archive
var ErrNoROMFile = errors.New("no ROM file found in archive")

// ErrUnsupportedFormat is returned for unrecognized file formats
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when extracted content exceeds size limit
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// formatType represents the detected file format
type formatType int

const (
	formatUnknown formatType = iota
	formatRaw
	formatZIP
	format7z
	formatGzip
	formatRAR
)

// ROM is an opened ROM image. Archive members are spooled to a temporary
// file which Close removes.
type ROM struct {
	// Name is the basename of the image, inside the archive if any.
	Name string
	// Size is the image size in bytes.
	Size int64

	file    afero.File
	fs      afero.Fs
	spooled bool
}

// ReadAt implements io.ReaderAt.
func (r *ROM) ReadAt(p []byte, off int64) (int, error) {
	return r.file.ReadAt(p, off)
}

// Bytes reads the whole image into memory.
func (r *ROM) Bytes() ([]byte, error) {
	buf := make([]byte, r.Size)
	n, err := r.file.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the image.
func (r *ROM) Close() error {
	err := r.file.Close()
	if r.spooled {
		if rerr := r.fs.Remove(r.file.Name()); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// Loader opens ROM images from a filesystem.
type Loader struct {
	fs         afero.Fs
	tempDir    string
	extensions []string
	maxSize    int64
	cache      *identityCache
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs reads ROMs and writes spool files through fs.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) { l.fs = fs }
}

// WithTempDir sets the directory archive members are spooled to.
func WithTempDir(dir string) Option {
	return func(l *Loader) { l.tempDir = dir }
}

// WithExtensions replaces the accepted ROM extensions.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		if len(exts) > 0 {
			l.extensions = exts
		}
	}
}

// WithMaxSize lowers or raises the image size limit.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithCacheSize sets how many identities are remembered. Zero disables
// the cache.
func WithCacheSize(n int) Option {
	return func(l *Loader) { l.cache = newIdentityCache(n) }
}

// New returns a Loader reading from the OS filesystem.
func New(opts ...Option) *Loader {
	l := &Loader{
		fs:         afero.NewOsFs(),
		extensions: Extensions,
		maxSize:    maxROMSize,
		cache:      newIdentityCache(defaultCacheSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open opens a ROM image. It auto-detects compressed archives via magic
// bytes and opens the first member matching one of the loader's
// extensions. Plain files must carry one of those extensions.
func (l *Loader) Open(path string) (*ROM, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	// Read header for magic byte detection
	header := make([]byte, 16)
	n, err := f.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	header = header[:n]

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := detectFormat(header, path, l.extensions)
	if format == formatRaw {
		if info.Size() > l.maxSize {
			f.Close()
			return nil, ErrFileTooLarge
		}
		return &ROM{Name: filepath.Base(path), Size: info.Size(), file: f, fs: l.fs}, nil
	}
	defer f.Close()

	switch format {
	case formatZIP:
		return l.extractFromZIP(f, info.Size())

	case format7z:
		return l.extractFrom7z(f, info.Size())

	case formatGzip:
		return l.extractFromGzip(f, path)

	case formatRAR:
		return l.extractFromRAR(f)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads a whole ROM image into memory and returns it with its
// basename.
func (l *Loader) Load(path string) ([]byte, string, error) {
	rom, err := l.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer rom.Close()

	data, err := rom.Bytes()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read ROM: %w", err)
	}
	return data, rom.Name, nil
}

// spool copies an archive member to a temporary file.
func (l *Loader) spool(name string, r io.Reader) (*ROM, error) {
	tmp, err := afero.TempFile(l.fs, l.tempDir, "racore-rom-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	n, err := io.Copy(tmp, io.LimitReader(r, l.maxSize+1))
	if err == nil && n > l.maxSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		tmp.Close()
		l.fs.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	log.Printf("[romloader] spooled %s (%d bytes)", name, n)
	return &ROM{Name: filepath.Base(name), Size: n, file: tmp, fs: l.fs, spooled: true}, nil
}

// detectFormat determines the file format based on magic bytes and extension.
// The extensions parameter lists valid ROM file extensions (e.g. []string{".nds"}).
func detectFormat(header []byte, path string, extensions []string) formatType {
	ext := strings.ToLower(filepath.Ext(path))

	// Check magic bytes first (more reliable)
	if len(header) >= 4 {
		if bytes.HasPrefix(header, magicZIP) || bytes.HasPrefix(header, magicZIPEnd) {
			return formatZIP
		}
		if bytes.HasPrefix(header, magicRAR) {
			return formatRAR
		}
	}
	if len(header) >= 6 && bytes.HasPrefix(header, magic7z) {
		return format7z
	}
	if len(header) >= 2 && bytes.HasPrefix(header, magicGzip) {
		return formatGzip
	}

	// Fall back to extension for archive formats
	switch ext {
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	}

	for _, romExt := range extensions {
		if ext == strings.ToLower(romExt) {
			return formatRaw
		}
	}

	return formatUnknown
}

// isROMFile checks if a filename has one of the given ROM extensions (case-insensitive)
func isROMFile(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
