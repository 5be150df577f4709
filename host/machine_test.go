package host

import (
	"bytes"
	"errors"
	"testing"

	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/memmap"
	"github.com/PanMenel/racore/romloader"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine("melonDS")
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	return m
}

func TestMachineImplementsEmulator(t *testing.T) {
	var _ emucore.Emulator = newTestMachine(t)
}

func TestMachineInsertEject(t *testing.T) {
	m := newTestMachine(t)
	if m.IsGameRunning() {
		t.Fatal("expected no game at start")
	}
	if _, err := m.Game(); !errors.Is(err, ErrNoGame) {
		t.Errorf("expected ErrNoGame, got %v", err)
	}

	m.Poke(0x10, []byte{0xAA})
	m.Insert(romloader.Identity{Hash: "abc", Title: "GAME"})
	if !m.IsGameRunning() {
		t.Fatal("expected game running after Insert")
	}
	got, _ := m.Peek(0x10, 1)
	if got[0] != 0 {
		t.Errorf("expected memory cleared on insert, got %#x", got[0])
	}
	id, err := m.Game()
	if err != nil || id.Hash != "abc" {
		t.Errorf("unexpected game %+v, %v", id, err)
	}

	m.Eject()
	if m.IsGameRunning() {
		t.Error("expected not running after Eject")
	}
}

func TestMachineMemoryView(t *testing.T) {
	m := newTestMachine(t)
	if err := m.Poke(0x03000010, []byte{1, 2}); err != nil {
		t.Fatalf("Poke failed: %v", err)
	}

	buf := make([]byte, 2)
	if n := m.Memory().ReadMemory(0x03000010, buf); n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Errorf("expected [1 2], got %v (n=%d)", buf, n)
	}
	if m.Bank(emucore.MemorySharedWRAM)[0x10] != 1 {
		t.Error("expected write visible through bank")
	}
}

func TestMachineQueueAppliesOnStep(t *testing.T) {
	m := newTestMachine(t)
	if err := m.Queue(0x20, []byte{9}); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	got, _ := m.Peek(0x20, 1)
	if got[0] != 0 {
		t.Fatal("queued write applied before Step")
	}
	m.Step()
	got, _ = m.Peek(0x20, 1)
	if got[0] != 9 {
		t.Errorf("expected 9 after Step, got %d", got[0])
	}

	if err := m.Queue(0xFFFFFFF0, []byte{1}); !errors.Is(err, memmap.ErrUnmapped) {
		t.Errorf("expected ErrUnmapped, got %v", err)
	}
}

func TestMachineSnapshotRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	m.Poke(0x100, []byte{0xDE, 0xAD})

	var buf bytes.Buffer
	if err := m.SaveSnapshot(&buf); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	other := newTestMachine(t)
	if err := other.LoadSnapshot(&buf); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	got, _ := other.Peek(0x100, 2)
	if !bytes.Equal(got, []byte{0xDE, 0xAD}) {
		t.Errorf("expected DE AD, got % X", got)
	}
}

func TestMachineSnapshotWrongSystem(t *testing.T) {
	m, _ := NewMachine("other")
	var buf bytes.Buffer
	m.SaveSnapshot(&buf)

	if err := newTestMachine(t).LoadSnapshot(&buf); err == nil {
		t.Error("expected error loading snapshot from another system")
	}
}
