package scripted

import (
	"errors"
	"testing"
)

type memory map[uint32]byte

func (m memory) read(address uint32, buf []byte) uint32 {
	for i := range buf {
		buf[i] = m[address+uint32(i)]
	}
	return uint32(len(buf))
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		conds   int
	}{
		{"0xH0010=5", false, 1},
		{"0xH0010=5_0x 0020>=h100", false, 2},
		{"M:0xX0100>=1000", false, 1},
		{"R:0xH0001=1_0xH0002!=d0xH0002.3.", false, 2},
		{"P:0xH0001=1_0x0004<7", false, 2},
		{"", true, 0},
		{"0xH0010", true, 0},
		{"0xH=5", true, 0},
		{"Q:0xH0010=5", true, 0},
		{"0xH0010~5", true, 0},
		{"M:0xH1=2_M:0xH2=3", true, 0},
		{"d5=1", true, 0},
	}

	for _, tt := range tests {
		tr, err := parseTrigger(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrBadCondition) {
				t.Errorf("%q: expected ErrBadCondition, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if len(tr.conditions) != tt.conds {
			t.Errorf("%q: expected %d conditions, got %d", tt.in, tt.conds, len(tr.conditions))
		}
	}
}

func TestParseOperandSizes(t *testing.T) {
	tests := []struct {
		in   string
		size int
		addr uint32
	}{
		{"0xH00ff", 1, 0xff},
		{"0x 1234", 2, 0x1234},
		{"0x1234", 2, 0x1234},
		{"0xX02000000", 4, 0x02000000},
	}
	for _, tt := range tests {
		op, rest, err := parseOperand(tt.in)
		if err != nil || rest != "" {
			t.Fatalf("%q: unexpected result %v %q", tt.in, err, rest)
		}
		if op.size != tt.size || op.address != tt.addr {
			t.Errorf("%q: expected size %d addr %x, got %d %x", tt.in, tt.size, tt.addr, op.size, op.address)
		}
	}
}

func TestEvaluateComparisons(t *testing.T) {
	mem := memory{0x10: 5, 0x20: 0x34, 0x21: 0x12}

	tests := []struct {
		in   string
		want bool
	}{
		{"0xH0010=5", true},
		{"0xH0010!=5", false},
		{"0xH0010<6", true},
		{"0xH0010<=4", false},
		{"0xH0010>4", true},
		{"0xH0010>=6", false},
		{"0x 0020=h1234", true},
		{"0x 0020=4660", true},
		{"0xH0010=5_0xH0011=1", false},
	}
	for _, tt := range tests {
		tr, err := parseTrigger(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got := tr.evaluate(mem.read); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestEvaluateHitCountAndReset(t *testing.T) {
	mem := memory{0x10: 1}
	tr, err := parseTrigger("0xH0010=1.3._R:0xH0011=1")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if tr.evaluate(mem.read) {
			t.Fatalf("frame %d: triggered before hit target", i)
		}
	}

	mem[0x11] = 1
	tr.evaluate(mem.read)
	mem[0x11] = 0
	if tr.conditions[0].hits != 0 {
		t.Fatalf("expected hits reset, got %d", tr.conditions[0].hits)
	}

	got := false
	for i := 0; i < 3; i++ {
		got = tr.evaluate(mem.read)
	}
	if !got {
		t.Error("expected trigger after 3 hits")
	}
}

func TestEvaluatePauseIfFreezesHits(t *testing.T) {
	mem := memory{0x10: 1, 0x11: 1}
	tr, err := parseTrigger("0xH0010=1.2._P:0xH0011=1")
	if err != nil {
		t.Fatal(err)
	}

	tr.evaluate(mem.read)
	tr.evaluate(mem.read)
	if tr.conditions[0].hits != 0 {
		t.Errorf("expected no hits while paused, got %d", tr.conditions[0].hits)
	}
}

func TestEvaluateDelta(t *testing.T) {
	mem := memory{0x10: 1}
	tr, err := parseTrigger("0xH0010>d0xH0010")
	if err != nil {
		t.Fatal(err)
	}

	if tr.evaluate(mem.read) {
		t.Error("first frame has no previous value to exceed")
	}
	mem[0x10] = 2
	if !tr.evaluate(mem.read) {
		t.Error("expected increase to be detected")
	}
	if tr.evaluate(mem.read) {
		t.Error("unchanged value should not trigger")
	}
}

func TestProgress(t *testing.T) {
	mem := memory{0x10: 0xe8, 0x11: 0x03}
	tr, err := parseTrigger("M:0x 0010>=2000")
	if err != nil {
		t.Fatal(err)
	}

	value, target, ok := tr.progress(mem.read)
	if !ok || value != 1000 || target != 2000 {
		t.Errorf("expected 1000/2000, got %d/%d ok=%v", value, target, ok)
	}

	mem[0x11] = 0xff
	if value, _, _ := tr.progress(mem.read); value != 2000 {
		t.Errorf("expected value capped at target, got %d", value)
	}

	hits, err := parseTrigger("M:0xH0010=1.5.")
	if err != nil {
		t.Fatal(err)
	}
	hitMem := memory{0x10: 1}
	hits.evaluate(hitMem.read)
	hits.evaluate(hitMem.read)
	if value, target, _ := hits.progress(hitMem.read); value != 2 || target != 5 {
		t.Errorf("expected 2/5 hits, got %d/%d", value, target)
	}
}

func TestReadSizedShortRead(t *testing.T) {
	short := func(address uint32, buf []byte) uint32 {
		for i := range buf {
			buf[i] = 0xff
		}
		return 1
	}
	if v := readSized(short, 0, 4); v != 0 {
		t.Errorf("expected partial read to yield 0, got %d", v)
	}
}
