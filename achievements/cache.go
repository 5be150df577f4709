package achievements

import (
	"strconv"
	"strings"
	"time"

	"github.com/PanMenel/racore/engine"
)

// Achievement is an immutable definition as received from the engine,
// plus its unlock state.
type Achievement struct {
	ID             uint32
	Title          string
	Description    string
	Points         uint32
	BadgeName      string
	BadgeURL       string
	BadgeLockedURL string
	Category       uint8
	Bucket         uint8
	BucketLabel    string
	SubsetID       uint32
	Type           uint8
	State          uint8
	Rarity         float32
	RarityHardcore float32
	Unlocked       bool
	UnlockTime     time.Time
	Measured       bool
}

// Progress is the measured state of an achievement.
type Progress struct {
	Value  uint32
	Target uint32
	Text   string
}

// Percent returns Value/Target as a percentage, or zero without a target.
func (p Progress) Percent() float32 {
	if p.Target == 0 {
		return 0
	}
	if p.Value >= p.Target {
		return 100
	}
	return float32(p.Value) * 100 / float32(p.Target)
}

// Entry is a snapshot of one achievement and its progress. Entries handed
// out by the cache are copies.
type Entry struct {
	Achievement
	Progress Progress
}

// ProgressChange describes a measured value that moved since the last
// update.
type ProgressChange struct {
	ID     uint32
	Value  uint32
	Target uint32
	Text   string
}

// MeasuredSource is the part of the engine the cache queries each frame.
type MeasuredSource interface {
	Measured(id uint32) (value, target uint32, ok bool)
	FormatMeasured(id uint32) string
}

type trackedAchievement struct {
	id        uint32
	prevValue uint32
}

// ProgressCache holds the achievement list for the loaded game and the
// measured progress of its measured achievements. It is not safe for
// concurrent use; Session serialises access.
type ProgressCache struct {
	entries []Entry
	index   map[uint32]int
	tracked []trackedAchievement
}

// NewProgressCache returns an empty cache.
func NewProgressCache() *ProgressCache {
	return &ProgressCache{index: make(map[uint32]int)}
}

// RefreshAll replaces the whole list. Order is preserved and nothing from
// the previous list survives.
func (c *ProgressCache) RefreshAll(defs []Achievement) {
	entries := make([]Entry, len(defs))
	index := make(map[uint32]int, len(defs))
	var tracked []trackedAchievement

	for i, def := range defs {
		entries[i] = Entry{Achievement: def}
		index[def.ID] = i
		if def.Measured {
			tracked = append(tracked, trackedAchievement{id: def.ID})
		}
	}

	c.entries = entries
	c.index = index
	c.tracked = tracked
}

// SeedProgress sets the initial progress shown for an achievement without
// affecting change detection.
func (c *ProgressCache) SeedProgress(id uint32, p Progress) {
	if i, ok := c.index[id]; ok {
		c.entries[i].Progress = p
	}
}

// UpdateMeasured queries src for every tracked achievement and returns the
// ones whose value changed since the previous call.
func (c *ProgressCache) UpdateMeasured(src MeasuredSource) []ProgressChange {
	if len(c.tracked) == 0 {
		return nil
	}

	var changes []ProgressChange
	for i := range c.tracked {
		t := &c.tracked[i]

		value, target, ok := src.Measured(t.id)
		if !ok || value == t.prevValue {
			continue
		}
		t.prevValue = value

		text := src.FormatMeasured(t.id)
		if idx, ok := c.index[t.id]; ok {
			c.entries[idx].Measured = true
			c.entries[idx].Progress = Progress{Value: value, Target: target, Text: text}
		}

		changes = append(changes, ProgressChange{ID: t.id, Value: value, Target: target, Text: text})
	}
	return changes
}

// MarkUnlocked flags an achievement as unlocked in place. The list order
// is not changed.
func (c *ProgressCache) MarkUnlocked(id uint32, when time.Time) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.entries[i].Unlocked = true
	c.entries[i].UnlockTime = when
	c.entries[i].State = engine.AchievementStateUnlocked
	return true
}

// ResetProgress re-arms change detection and clears cached progress.
func (c *ProgressCache) ResetProgress() {
	for i := range c.tracked {
		c.tracked[i].prevValue = 0
		if idx, ok := c.index[c.tracked[i].id]; ok {
			c.entries[idx].Progress.Value = 0
			c.entries[idx].Progress.Text = ""
		}
	}
}

// Clear drops the whole list.
func (c *ProgressCache) Clear() {
	c.entries = nil
	c.index = make(map[uint32]int)
	c.tracked = nil
}

// Len returns the number of achievements.
func (c *ProgressCache) Len() int {
	return len(c.entries)
}

// TrackedCount returns the number of measured achievements.
func (c *ProgressCache) TrackedCount() int {
	return len(c.tracked)
}

// Snapshot returns a copy of the list in display order.
func (c *ProgressCache) Snapshot() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// definitionsFromList converts an engine achievement list, keeping bucket
// order, and returns the initial progress parsed from each measured
// achievement.
func definitionsFromList(list *engine.AchievementList) ([]Achievement, map[uint32]Progress) {
	if list == nil {
		return nil, nil
	}

	var defs []Achievement
	progress := make(map[uint32]Progress)
	for _, bucket := range list.Buckets {
		for _, a := range bucket.Achievements {
			if a == nil {
				continue
			}
			def := Achievement{
				ID:             a.ID,
				Title:          a.Title,
				Description:    a.Description,
				Points:         a.Points,
				BadgeName:      a.BadgeName,
				BadgeURL:       a.BadgeURL,
				BadgeLockedURL: a.BadgeLockedURL,
				Category:       a.Category,
				Bucket:         a.Bucket,
				BucketLabel:    bucket.Label,
				SubsetID:       bucket.SubsetID,
				Type:           a.Type,
				State:          a.State,
				Rarity:         a.Rarity,
				RarityHardcore: a.RarityHardcore,
				Unlocked:       a.Unlocked != engine.AchievementUnlockedNone,
				UnlockTime:     a.UnlockTime,
				Measured:       a.MeasuredProgress != "",
			}
			if def.Measured {
				progress[a.ID] = parseMeasured(a.MeasuredProgress)
			}
			defs = append(defs, def)
		}
	}
	return defs, progress
}

// parseMeasured reads the engine's "value/target" progress string.
func parseMeasured(s string) Progress {
	p := Progress{Text: s}
	valueStr, targetStr, found := strings.Cut(s, "/")
	if !found {
		return p
	}
	if v, err := strconv.ParseUint(strings.TrimSpace(valueStr), 10, 32); err == nil {
		p.Value = uint32(v)
	}
	if t, err := strconv.ParseUint(strings.TrimSpace(targetStr), 10, 32); err == nil {
		p.Target = uint32(t)
	}
	return p
}
