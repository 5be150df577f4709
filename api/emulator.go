package emucore

// MemoryInspector enables flat address-based memory reads for RetroAchievements.
type MemoryInspector interface {
	// ReadMemory reads from a flat address into buf and returns the number
	// of bytes read. Zero means the address is not mapped.
	ReadMemory(addr uint32, buf []byte) uint32
}

// MemoryBanks exposes the emulator's real storage, one slice per bank.
// The returned slices alias live emulator memory and must not be retained
// across frames by callers that need a stable view.
type MemoryBanks interface {
	// Bank returns the backing storage for kind, or nil if the bank does not
	// exist (yet).
	Bank(kind MemoryKind) []byte
}

// GameRunner reports whether a game is actually executing. Achievement
// loading waits until this returns true.
type GameRunner interface {
	IsGameRunning() bool
}

// Emulator is the subset of a host emulator the achievement core needs.
type Emulator interface {
	MemoryBanks
	GameRunner
}
