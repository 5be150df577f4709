// Package memmap translates the flat address space used by achievement
// definitions into reads against the emulator's physical memory banks.
//
// A read is serviced only when it falls entirely inside one configured
// region. Anything else, including a read that straddles two regions, is
// reported as unmapped and the destination buffer is left zeroed.
package memmap

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	emucore "github.com/PanMenel/racore/api"
)

// ErrUnmapped is returned by Read when the request cannot be serviced.
var ErrUnmapped = errors.New("address not mapped")

// ErrOverlap is returned by New when two regions share external addresses.
var ErrOverlap = errors.New("memory regions overlap")

// ErrEmptyRegion is returned by New for a zero-sized region.
var ErrEmptyRegion = errors.New("memory region has zero size")

// Region maps [Base, Base+Size) of the flat address space onto the start
// of the bank identified by Kind.
type Region struct {
	Base uint32
	Size uint32
	Kind emucore.MemoryKind
}

// end returns the exclusive end address as uint64 to avoid wrap-around.
func (r Region) end() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// contains reports whether [addr, addr+n) lies fully inside r.
func (r Region) contains(addr uint32, n uint64) bool {
	return addr >= r.Base && uint64(addr)+n <= r.end()
}

func (r Region) String() string {
	return fmt.Sprintf("%s[$%08x-$%08x)", r.Kind, r.Base, r.end())
}

// NDSRegions returns the flat layout exposed to achievement sets for the
// Nintendo DS: main RAM at zero, ARM7 WRAM at $01000000 and shared WRAM at
// $03000000.
func NDSRegions() []Region {
	return []Region{
		{Base: 0x00000000, Size: emucore.MainRAMSize, Kind: emucore.MemoryMainRAM},
		{Base: 0x01000000, Size: emucore.ARM7WRAMSize, Kind: emucore.MemoryARM7WRAM},
		{Base: 0x03000000, Size: emucore.SharedWRAMSize, Kind: emucore.MemorySharedWRAM},
	}
}

type backing struct {
	banks emucore.MemoryBanks
}

// Translator implements emucore.MemoryInspector over a fixed region table.
// ReadMemory is safe to call from any goroutine and at any time; the
// backing banks are swapped atomically.
type Translator struct {
	regions []Region
	banks   atomic.Pointer[backing]
}

// New validates the region table and returns a Translator with no banks
// attached.
func New(regions ...Region) (*Translator, error) {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })

	for i, r := range sorted {
		if r.Size == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRegion, r)
		}
		if r.end() > 1<<32 {
			return nil, fmt.Errorf("memory region %s exceeds 32-bit address space", r)
		}
		if i > 0 && uint64(r.Base) < sorted[i-1].end() {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, sorted[i-1], r)
		}
	}

	return &Translator{regions: sorted}, nil
}

// Regions returns a copy of the region table ordered by base address.
func (t *Translator) Regions() []Region {
	out := make([]Region, len(t.regions))
	copy(out, t.regions)
	return out
}

// Attach makes banks the source for subsequent reads.
func (t *Translator) Attach(banks emucore.MemoryBanks) {
	if banks == nil {
		t.banks.Store(nil)
		return
	}
	t.banks.Store(&backing{banks: banks})
}

// Detach removes the current banks. Reads report unmapped until Attach is
// called again.
func (t *Translator) Detach() {
	t.banks.Store(nil)
}

// Lookup returns the region that fully contains [addr, addr+length).
func (t *Translator) Lookup(addr, length uint32) (Region, bool) {
	if length == 0 {
		return Region{}, false
	}
	for _, r := range t.regions {
		if r.contains(addr, uint64(length)) {
			return r, true
		}
	}
	return Region{}, false
}

// ReadMemory copies len(buf) bytes starting at addr into buf and returns
// the number of bytes copied, or zero if the range is unmapped. buf is
// zero-filled in every case before anything is copied.
func (t *Translator) ReadMemory(addr uint32, buf []byte) uint32 {
	for i := range buf {
		buf[i] = 0
	}

	n := len(buf)
	if n == 0 {
		return 0
	}

	b := t.banks.Load()
	if b == nil || b.banks == nil {
		return 0
	}

	for _, r := range t.regions {
		if !r.contains(addr, uint64(n)) {
			continue
		}
		mem := b.banks.Bank(r.Kind)
		off := int(addr - r.Base)
		if off+n > len(mem) {
			return 0
		}
		copy(buf, mem[off:off+n])
		return uint32(n)
	}

	return 0
}

// Read is the allocating form of ReadMemory. On failure it returns a
// zero-filled buffer of the requested length together with ErrUnmapped.
func (t *Translator) Read(addr, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if t.ReadMemory(addr, buf) == 0 {
		return buf, fmt.Errorf("%w: $%08x+%d", ErrUnmapped, addr, length)
	}
	return buf, nil
}
