// Package host runs the headless side of racore: an in-memory Nintendo DS
// memory model standing in for the emulator, and the frame loop that
// drives the achievement session.
package host

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/memdump"
	"github.com/PanMenel/racore/memmap"
	"github.com/PanMenel/racore/romloader"
)

// ErrNoGame is returned by operations that need an inserted game.
var ErrNoGame = errors.New("no game inserted")

// Machine is the emulator as seen by the achievement session: memory
// banks plus a running flag. Memory is only changed through Poke and
// snapshot loads.
type Machine struct {
	mu         sync.Mutex
	image      *memdump.Image
	translator *memmap.Translator
	game       *romloader.Identity
	pending    []write
}

type write struct {
	addr uint32
	data []byte
}

// NewMachine builds a machine with zeroed Nintendo DS memory.
func NewMachine(system string) (*Machine, error) {
	regions := memmap.NDSRegions()
	t, err := memmap.New(regions...)
	if err != nil {
		return nil, err
	}
	m := &Machine{
		image:      memdump.NewImage(system, regions),
		translator: t,
	}
	t.Attach(m.image)
	return m, nil
}

// Bank implements emucore.MemoryBanks.
func (m *Machine) Bank(kind emucore.MemoryKind) []byte {
	return m.image.Bank(kind)
}

// IsGameRunning implements emucore.GameRunner.
func (m *Machine) IsGameRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.game != nil
}

// Memory returns the flat-address view of the machine's memory.
func (m *Machine) Memory() emucore.MemoryInspector {
	return m.translator
}

// Insert starts a game. Memory is cleared so stale values from the
// previous game cannot trigger achievements.
func (m *Machine) Insert(id romloader.Identity) {
	m.mu.Lock()
	m.game = &id
	m.mu.Unlock()
	m.image.CopyFrom(memdump.NewImage(m.image.System(), m.image.Regions()))
}

// Eject stops the running game.
func (m *Machine) Eject() {
	m.mu.Lock()
	m.game = nil
	m.mu.Unlock()
}

// Game returns the inserted game.
func (m *Machine) Game() (romloader.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.game == nil {
		return romloader.Identity{}, ErrNoGame
	}
	return *m.game, nil
}

// Poke writes data at a flat address.
func (m *Machine) Poke(addr uint32, data []byte) error {
	return m.image.Poke(addr, data)
}

// Queue schedules a write for the next Step, so console edits land
// between frames like emulated CPU writes would.
func (m *Machine) Queue(addr uint32, data []byte) error {
	if _, ok := m.translator.Lookup(addr, uint32(len(data))); !ok {
		return fmt.Errorf("%w: %#08x+%d", memmap.ErrUnmapped, addr, len(data))
	}
	m.mu.Lock()
	m.pending = append(m.pending, write{addr: addr, data: append([]byte(nil), data...)})
	m.mu.Unlock()
	return nil
}

// Step applies queued writes. The frame loop calls it before each tick.
func (m *Machine) Step() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, w := range pending {
		if err := m.image.Poke(w.addr, w.data); err != nil {
			log.Printf("[racore] dropped write: %v", err)
		}
	}
}

// Peek reads length bytes at a flat address.
func (m *Machine) Peek(addr, length uint32) ([]byte, error) {
	return m.translator.Read(addr, length)
}

// SaveSnapshot writes the current memory to w.
func (m *Machine) SaveSnapshot(w io.Writer) error {
	return m.image.Save(w)
}

// LoadSnapshot replaces memory with a snapshot previously written by
// SaveSnapshot.
func (m *Machine) LoadSnapshot(r io.Reader) error {
	img, err := memdump.Load(r)
	if err != nil {
		return err
	}
	if img.System() != m.image.System() {
		return fmt.Errorf("snapshot is for %q, machine is %q", img.System(), m.image.System())
	}
	m.image.CopyFrom(img)
	return nil
}
