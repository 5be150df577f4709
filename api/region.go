package emucore

// MemoryKind identifies one of the emulator's physical memory banks.
type MemoryKind int

const (
	MemoryMainRAM    MemoryKind = iota // ARM9 main RAM (4MB)
	MemorySharedWRAM                   // Shared WRAM (32KB)
	MemoryARM7WRAM                     // ARM7 private WRAM (64KB)
)

// String returns the display name of the memory kind.
func (k MemoryKind) String() string {
	switch k {
	case MemoryMainRAM:
		return "MainRAM"
	case MemorySharedWRAM:
		return "SharedWRAM"
	case MemoryARM7WRAM:
		return "ARM7WRAM"
	default:
		return "Unknown"
	}
}

// Physical bank sizes.
const (
	MainRAMSize    = 0x00400000
	SharedWRAMSize = 0x00008000
	ARM7WRAMSize   = 0x00010000
)
