package romloader

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lunixbochs/struc"
)

// ErrNotNDS is returned when an image does not look like a DS ROM.
var ErrNotNDS = errors.New("not a Nintendo DS ROM")

const (
	headerSize       = 0x200
	hashedHeaderSize = 0x160
	iconSize         = 0xA00
	superCardSize    = 0x200
	maxCodeSize      = 16 * 1024 * 1024
)

// Header is the start of the cartridge header, up to the icon offset.
type Header struct {
	Title          [12]byte
	GameCode       [4]byte
	MakerCode      [2]byte
	UnitCode       uint8
	EncryptionSeed uint8
	DeviceCapacity uint8
	Reserved       [8]byte
	Region         uint8
	Version        uint8
	Autostart      uint8

	ARM9Offset  uint32
	ARM9Entry   uint32
	ARM9RAMAddr uint32
	ARM9Size    uint32
	ARM7Offset  uint32
	ARM7Entry   uint32
	ARM7RAMAddr uint32
	ARM7Size    uint32

	FNTOffset         uint32
	FNTSize           uint32
	FATOffset         uint32
	FATSize           uint32
	ARM9OverlayOffset uint32
	ARM9OverlaySize   uint32
	ARM7OverlayOffset uint32
	ARM7OverlaySize   uint32

	PortNormal uint32
	PortKey1   uint32
	IconOffset uint32
}

// TitleString returns the internal title without padding.
func (h *Header) TitleString() string {
	return strings.TrimRight(string(h.Title[:]), "\x00 ")
}

// GameCodeString returns the four-character game code.
func (h *Header) GameCodeString() string {
	return strings.TrimRight(string(h.GameCode[:]), "\x00")
}

// IsDSi reports whether the unit code targets DSi hardware.
func (h *Header) IsDSi() bool {
	return h.UnitCode&0x02 != 0
}

// hasSuperCardHeader recognises the 512-byte loader some flash carts
// prepend to images.
func hasSuperCardHeader(b []byte) bool {
	return len(b) >= 0xB4 &&
		b[0] == 0x2E && b[1] == 0x00 && b[2] == 0x00 && b[3] == 0xEA &&
		b[0xB0] == 0x44 && b[0xB1] == 0x46 && b[0xB2] == 0x96 && b[0xB3] == 0x00
}

// readHeader returns the raw header bytes, the parsed header and the
// offset of the real image inside r.
func readHeader(r io.ReaderAt) ([]byte, *Header, int64, error) {
	raw := make([]byte, headerSize)
	n, err := r.ReadAt(raw, 0)
	if err != nil && err != io.EOF {
		return nil, nil, 0, err
	}
	if n < hashedHeaderSize {
		return nil, nil, 0, fmt.Errorf("%w: header too short", ErrNotNDS)
	}

	var offset int64
	if hasSuperCardHeader(raw[:n]) {
		offset = superCardSize
		n, err = r.ReadAt(raw, offset)
		if err != nil && err != io.EOF {
			return nil, nil, 0, err
		}
		if n < hashedHeaderSize {
			return nil, nil, 0, fmt.Errorf("%w: header too short", ErrNotNDS)
		}
	}

	var h Header
	if err := struc.UnpackWithOrder(bytes.NewReader(raw), &h, binary.LittleEndian); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to parse header: %w", err)
	}
	return raw, &h, offset, nil
}

// ParseHeader reads the cartridge header of a DS image.
func ParseHeader(r io.ReaderAt) (*Header, error) {
	_, h, _, err := readHeader(r)
	return h, err
}

// Hash computes the RetroAchievements identity of a DS image: the MD5 of
// the first 0x160 header bytes, the ARM9 and ARM7 binaries and the
// 0xA00-byte icon/title block. Short reads hash as zeros.
func Hash(r io.ReaderAt) (string, *Header, error) {
	raw, h, offset, err := readHeader(r)
	if err != nil {
		return "", nil, err
	}

	if uint64(h.ARM9Size)+uint64(h.ARM7Size) > maxCodeSize {
		return "", nil, fmt.Errorf("%w: arm9 code size (%d) + arm7 code size (%d) exceeds 16MB",
			ErrNotNDS, h.ARM9Size, h.ARM7Size)
	}

	sum := md5.New()
	sum.Write(raw[:hashedHeaderSize])

	block := func(addr, size uint32) error {
		buf := make([]byte, size)
		_, err := r.ReadAt(buf, offset+int64(addr))
		if err != nil && err != io.EOF {
			return err
		}
		sum.Write(buf)
		return nil
	}
	if err := block(h.ARM9Offset, h.ARM9Size); err != nil {
		return "", nil, fmt.Errorf("failed to read arm9 binary: %w", err)
	}
	if err := block(h.ARM7Offset, h.ARM7Size); err != nil {
		return "", nil, fmt.Errorf("failed to read arm7 binary: %w", err)
	}
	if err := block(h.IconOffset, iconSize); err != nil {
		return "", nil, fmt.Errorf("failed to read icon: %w", err)
	}

	return hex.EncodeToString(sum.Sum(nil)), h, nil
}
