package romloader

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"
)

func expectedHash(img []byte) string {
	sum := md5.New()
	sum.Write(img[:hashedHeaderSize])
	sum.Write(img[0x4000 : 0x4000+0x100])
	sum.Write(img[0x5000 : 0x5000+0x80])
	sum.Write(img[0x6000 : 0x6000+iconSize])
	return hex.EncodeToString(sum.Sum(nil))
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(bytes.NewReader(buildNDS()))
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if h.TitleString() != "TESTGAME" {
		t.Errorf("expected title TESTGAME, got %q", h.TitleString())
	}
	if h.GameCodeString() != "ATSE" {
		t.Errorf("expected game code ATSE, got %q", h.GameCodeString())
	}
	if h.ARM9Offset != 0x4000 || h.ARM9Size != 0x100 {
		t.Errorf("unexpected arm9 %#x/%#x", h.ARM9Offset, h.ARM9Size)
	}
	if h.ARM7Offset != 0x5000 || h.ARM7Size != 0x80 {
		t.Errorf("unexpected arm7 %#x/%#x", h.ARM7Offset, h.ARM7Size)
	}
	if h.IconOffset != 0x6000 {
		t.Errorf("unexpected icon offset %#x", h.IconOffset)
	}
	if h.IsDSi() {
		t.Error("expected DS unit code")
	}
}

func TestHash(t *testing.T) {
	img := buildNDS()
	hash, _, err := Hash(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if want := expectedHash(img); hash != want {
		t.Errorf("expected %s, got %s", want, hash)
	}
	if len(hash) != 32 {
		t.Errorf("expected 32 hex digits, got %d", len(hash))
	}
}

func TestHashIgnoresUnhashedRegions(t *testing.T) {
	img := buildNDS()
	base, _, _ := Hash(bytes.NewReader(img))

	img[0x3000] ^= 0xFF
	img[0x170] ^= 0xFF
	other, _, _ := Hash(bytes.NewReader(img))
	if base != other {
		t.Error("bytes outside the hashed blocks changed the hash")
	}

	img[0x4010] ^= 0xFF
	changed, _, _ := Hash(bytes.NewReader(img))
	if base == changed {
		t.Error("arm9 change did not change the hash")
	}
}

func TestHashSkipsSuperCardHeader(t *testing.T) {
	img := buildNDS()
	want, _, _ := Hash(bytes.NewReader(img))

	sc := make([]byte, superCardSize)
	sc[0], sc[1], sc[2], sc[3] = 0x2E, 0x00, 0x00, 0xEA
	sc[0xB0], sc[0xB1], sc[0xB2], sc[0xB3] = 0x44, 0x46, 0x96, 0x00

	got, h, err := Hash(bytes.NewReader(append(sc, img...)))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %s with SuperCard header, got %s", want, got)
	}
	if h.TitleString() != "TESTGAME" {
		t.Errorf("expected real header parsed, got title %q", h.TitleString())
	}
}

func TestHashShortIconIsZeroFilled(t *testing.T) {
	img := buildNDS()[:0x6100]
	hash, _, err := Hash(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	padded := make([]byte, 0x6A00)
	copy(padded, img)
	if want := expectedHash(padded); hash != want {
		t.Errorf("expected %s, got %s", want, hash)
	}
}

func TestHashRejectsOversizedCode(t *testing.T) {
	img := buildNDS()
	binary.LittleEndian.PutUint32(img[0x2C:], 12*1024*1024)
	binary.LittleEndian.PutUint32(img[0x3C:], 8*1024*1024)

	if _, _, err := Hash(bytes.NewReader(img)); !errors.Is(err, ErrNotNDS) {
		t.Errorf("expected ErrNotNDS, got %v", err)
	}
}

func TestHashRejectsShortFile(t *testing.T) {
	if _, _, err := Hash(bytes.NewReader(make([]byte, 0x100))); !errors.Is(err, ErrNotNDS) {
		t.Errorf("expected ErrNotNDS, got %v", err)
	}
}

func TestIdentify(t *testing.T) {
	fs := newTestFs(t)
	img := buildNDS()
	writeFile(t, fs, "/roms/game.zip", buildZip(t, "game.nds", img))

	l := newTestLoader(t, fs)
	id, err := l.Identify("/roms/game.zip")
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if id.Hash != expectedHash(img) {
		t.Errorf("expected hash %s, got %s", expectedHash(img), id.Hash)
	}
	if id.Name != "game.nds" || id.Title != "TESTGAME" || id.GameCode != "ATSE" || id.Size != int64(len(img)) {
		t.Errorf("unexpected identity %+v", id)
	}
	if n := spoolFiles(t, fs); n != 0 {
		t.Errorf("expected spool removed, got %d", n)
	}
}

func TestIdentifyUsesCache(t *testing.T) {
	fs := newTestFs(t)
	writeFile(t, fs, "/roms/game.nds", buildNDS())
	l := newTestLoader(t, fs)

	first, err := l.Identify("/roms/game.nds")
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if l.cache.lru.Len() != 1 {
		t.Fatalf("expected 1 cached identity, got %d", l.cache.lru.Len())
	}

	second, err := l.Identify("/roms/game.nds")
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if first != second {
		t.Errorf("expected cached identity, got %+v and %+v", first, second)
	}
}

func TestIdentifyWithoutCache(t *testing.T) {
	fs := newTestFs(t)
	writeFile(t, fs, "/roms/game.nds", buildNDS())
	l := newTestLoader(t, fs, WithCacheSize(0))

	if _, err := l.Identify("/roms/game.nds"); err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if l.cache != nil {
		t.Error("expected cache disabled")
	}
}
