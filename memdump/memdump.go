// Package memdump stores images of the emulator's memory banks: a struc
// packed header and bank table followed by one snappy stream holding the
// bank contents in table order.
package memdump

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"

	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/memmap"
)

const dumpMagic = "RAMD"

const dumpVersion = 1

// ErrBadMagic is returned for input that is not a memory dump.
var ErrBadMagic = errors.New("invalid memory dump magic")

// ErrBadBank is returned for a bank table entry that does not match the
// region layout.
var ErrBadBank = errors.New("invalid bank entry")

type fileHeader struct {
	Magic     string `struc:"[4]byte"`
	Version   uint16
	BankCount uint16
	System    string      `struc:"[24]byte"`
	Banks     []bankEntry `struc:"sizefrom=BankCount"`
}

type bankEntry struct {
	Kind uint8
	Pad  [3]byte
	Base uint32
	Size uint32
}

// Image is an in-memory set of banks laid out by a region table. It
// implements emucore.MemoryBanks.
type Image struct {
	mu      sync.RWMutex
	regions []memmap.Region
	banks   map[emucore.MemoryKind][]byte
	system  string
}

// NewImage allocates zeroed banks for regions.
func NewImage(system string, regions []memmap.Region) *Image {
	img := &Image{
		regions: append([]memmap.Region(nil), regions...),
		banks:   make(map[emucore.MemoryKind][]byte, len(regions)),
		system:  system,
	}
	sort.Slice(img.regions, func(i, j int) bool { return img.regions[i].Base < img.regions[j].Base })
	for _, r := range img.regions {
		img.banks[r.Kind] = make([]byte, r.Size)
	}
	return img
}

// Bank returns the live backing slice for kind.
func (img *Image) Bank(kind emucore.MemoryKind) []byte {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.banks[kind]
}

// System returns the system name recorded in the image.
func (img *Image) System() string {
	return img.system
}

// Regions returns the image's region table.
func (img *Image) Regions() []memmap.Region {
	return append([]memmap.Region(nil), img.regions...)
}

// Poke writes data at a flat address. The write must fall inside one
// region.
func (img *Image) Poke(addr uint32, data []byte) error {
	for _, r := range img.regions {
		if addr < r.Base || uint64(addr)+uint64(len(data)) > uint64(r.Base)+uint64(r.Size) {
			continue
		}
		img.mu.Lock()
		copy(img.banks[r.Kind][addr-r.Base:], data)
		img.mu.Unlock()
		return nil
	}
	return fmt.Errorf("%w: %#08x+%d", memmap.ErrUnmapped, addr, len(data))
}

// Save writes the image to w.
func (img *Image) Save(w io.Writer) error {
	header := &fileHeader{
		Magic:   dumpMagic,
		Version: dumpVersion,
		System:  img.system,
	}
	for _, r := range img.regions {
		header.Banks = append(header.Banks, bankEntry{Kind: uint8(r.Kind), Base: r.Base, Size: r.Size})
	}
	header.BankCount = uint16(len(header.Banks))
	if err := struc.Pack(w, header); err != nil {
		return fmt.Errorf("failed to pack header: %w", err)
	}

	zw := snappy.NewBufferedWriter(w)
	img.mu.RLock()
	for _, r := range img.regions {
		if _, err := zw.Write(img.banks[r.Kind]); err != nil {
			img.mu.RUnlock()
			return fmt.Errorf("failed to write %s: %w", r.Kind, err)
		}
	}
	img.mu.RUnlock()
	return zw.Close()
}

// Load reads an image written by Save.
func Load(r io.Reader) (*Image, error) {
	var header fileHeader
	if err := struc.Unpack(r, &header); err != nil {
		return nil, fmt.Errorf("failed to unpack header: %w", err)
	}
	if header.Magic != dumpMagic {
		return nil, ErrBadMagic
	}
	if header.Version != dumpVersion {
		return nil, fmt.Errorf("unsupported memory dump version %d", header.Version)
	}

	regions := make([]memmap.Region, 0, len(header.Banks))
	for _, b := range header.Banks {
		regions = append(regions, memmap.Region{Base: b.Base, Size: b.Size, Kind: emucore.MemoryKind(b.Kind)})
	}
	// the layout must be one the translator accepts
	if _, err := memmap.New(regions...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBank, err)
	}

	img := &Image{
		regions: regions,
		banks:   make(map[emucore.MemoryKind][]byte, len(regions)),
		system:  strings.TrimRight(header.System, "\x00"),
	}
	zr := snappy.NewReader(r)
	for _, reg := range regions {
		if _, dup := img.banks[reg.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrBadBank, reg.Kind)
		}
		buf := make([]byte, reg.Size)
		if _, err := io.ReadFull(zr, buf); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", reg.Kind, err)
		}
		img.banks[reg.Kind] = buf
	}
	return img, nil
}

// CopyFrom fills the image from another bank source, for example a
// running emulator.
func (img *Image) CopyFrom(src emucore.MemoryBanks) {
	img.mu.Lock()
	defer img.mu.Unlock()
	for _, r := range img.regions {
		copy(img.banks[r.Kind], src.Bank(r.Kind))
	}
}
