package romloader

import (
	"fmt"
	"log"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 64

// Identity identifies a ROM image to the achievement server.
type Identity struct {
	Hash     string
	Name     string
	Title    string
	GameCode string
	DSi      bool
	Size     int64
}

// identityCache remembers identities by path, size and modification time
// so reopening a large archive is skipped.
type identityCache struct {
	lru *lru.Cache[string, Identity]
}

func newIdentityCache(size int) *identityCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, Identity](size)
	if err != nil {
		return nil
	}
	return &identityCache{lru: c}
}

func (c *identityCache) get(key string) (Identity, bool) {
	if c == nil {
		return Identity{}, false
	}
	return c.lru.Get(key)
}

func (c *identityCache) add(key string, id Identity) {
	if c != nil {
		c.lru.Add(key, id)
	}
}

// Identify opens path and returns its identity.
func (l *Loader) Identify(path string) (Identity, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to stat file: %w", err)
	}
	key := path + "\x00" + strconv.FormatInt(info.Size(), 10) + "\x00" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if id, ok := l.cache.get(key); ok {
		return id, nil
	}

	rom, err := l.Open(path)
	if err != nil {
		return Identity{}, err
	}
	defer rom.Close()

	hash, h, err := Hash(rom)
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", rom.Name, err)
	}

	id := Identity{
		Hash:     hash,
		Name:     rom.Name,
		Title:    h.TitleString(),
		GameCode: h.GameCodeString(),
		DSi:      h.IsDSi(),
		Size:     rom.Size,
	}
	l.cache.add(key, id)
	log.Printf("[romloader] %s: %s (%s) hash %s", id.Name, id.Title, id.GameCode, id.Hash)
	return id, nil
}
