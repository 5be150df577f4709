package achievements

import (
	"testing"
	"time"
)

type stubMeasured map[uint32][2]uint32

func (m stubMeasured) Measured(id uint32) (uint32, uint32, bool) {
	v, ok := m[id]
	return v[0], v[1], ok
}

func (m stubMeasured) FormatMeasured(id uint32) string {
	return formatPair(m[id][0], m[id][1])
}

func sampleDefinitions() []Achievement {
	return []Achievement{
		{ID: 30, Title: "c", Measured: true},
		{ID: 10, Title: "a"},
		{ID: 20, Title: "b", Measured: true},
	}
}

func TestRefreshAllRoundTrip(t *testing.T) {
	c := NewProgressCache()
	defs := sampleDefinitions()
	c.RefreshAll(defs)

	got := c.Snapshot()
	if len(got) != len(defs) {
		t.Fatalf("expected %d entries, got %d", len(defs), len(got))
	}
	for i := range defs {
		if got[i].ID != defs[i].ID {
			t.Errorf("entry %d: expected id %d, got %d", i, defs[i].ID, got[i].ID)
		}
		if got[i].Measured != defs[i].Measured {
			t.Errorf("entry %d: expected measured %v, got %v", i, defs[i].Measured, got[i].Measured)
		}
	}
	if c.TrackedCount() != 2 {
		t.Errorf("expected 2 tracked, got %d", c.TrackedCount())
	}
}

func TestRefreshAllReplacesPreviousList(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll(sampleDefinitions())
	c.RefreshAll([]Achievement{{ID: 99, Title: "z"}})

	got := c.Snapshot()
	if len(got) != 1 || got[0].ID != 99 {
		t.Fatalf("expected only the new list, got %+v", got)
	}
	if c.TrackedCount() != 0 {
		t.Errorf("expected no tracked achievements, got %d", c.TrackedCount())
	}
	if c.MarkUnlocked(10, time.Now()) {
		t.Error("old achievement should not survive refresh")
	}
}

func TestUpdateMeasuredEmpty(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll([]Achievement{{ID: 1}})

	if changes := c.UpdateMeasured(stubMeasured{1: {5, 10}}); len(changes) != 0 {
		t.Errorf("expected no changes, got %+v", changes)
	}
}

func TestUpdateMeasuredOnlyOnChange(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll(sampleDefinitions())
	src := stubMeasured{30: {1, 5}, 20: {0, 8}}

	changes := c.UpdateMeasured(src)
	if len(changes) != 1 || changes[0].ID != 30 {
		t.Fatalf("expected a change for 30, got %+v", changes)
	}
	if changes[0].Text != "1/5" {
		t.Errorf("expected text 1/5, got %s", changes[0].Text)
	}

	if changes := c.UpdateMeasured(src); len(changes) != 0 {
		t.Errorf("expected no changes on repeat, got %+v", changes)
	}

	src[20] = [2]uint32{3, 8}
	changes = c.UpdateMeasured(src)
	if len(changes) != 1 || changes[0].ID != 20 || changes[0].Value != 3 {
		t.Errorf("expected a change for 20, got %+v", changes)
	}

	got := c.Snapshot()
	if got[0].Progress.Value != 1 || got[2].Progress.Value != 3 {
		t.Errorf("unexpected cached progress: %+v %+v", got[0].Progress, got[2].Progress)
	}
}

func TestResetProgressRearmsDetection(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll(sampleDefinitions())
	src := stubMeasured{30: {2, 5}}

	c.UpdateMeasured(src)
	c.ResetProgress()

	if got := c.Snapshot()[0].Progress.Value; got != 0 {
		t.Errorf("expected progress cleared, got %d", got)
	}
	if changes := c.UpdateMeasured(src); len(changes) != 1 {
		t.Errorf("expected change after reset, got %d", len(changes))
	}
}

func TestMarkUnlockedKeepsOrder(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll(sampleDefinitions())

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if !c.MarkUnlocked(20, when) {
		t.Fatal("expected achievement 20 to be found")
	}

	got := c.Snapshot()
	if got[2].ID != 20 || !got[2].Unlocked || !got[2].UnlockTime.Equal(when) {
		t.Errorf("unexpected entry: %+v", got[2])
	}
	if got[0].ID != 30 || got[1].ID != 10 {
		t.Error("order changed after unlock")
	}
}

func TestSeedProgressDoesNotSuppressChange(t *testing.T) {
	c := NewProgressCache()
	c.RefreshAll(sampleDefinitions())
	c.SeedProgress(30, Progress{Value: 2, Target: 5, Text: "2/5"})

	if got := c.Snapshot()[0].Progress; got.Value != 2 || got.Text != "2/5" {
		t.Errorf("unexpected seeded progress: %+v", got)
	}
	if changes := c.UpdateMeasured(stubMeasured{30: {2, 5}}); len(changes) != 1 {
		t.Errorf("expected first observation to notify, got %d", len(changes))
	}
}

func TestParseMeasured(t *testing.T) {
	p := parseMeasured("7/12")
	if p.Value != 7 || p.Target != 12 || p.Text != "7/12" {
		t.Errorf("unexpected progress: %+v", p)
	}

	p = parseMeasured("45%")
	if p.Value != 0 || p.Target != 0 || p.Text != "45%" {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		p    Progress
		want float32
	}{
		{Progress{Value: 1, Target: 4}, 25},
		{Progress{Value: 9, Target: 4}, 100},
		{Progress{Value: 3}, 0},
	}
	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Errorf("Percent(%+v): expected %v, got %v", tt.p, tt.want, got)
		}
	}
}

func TestNotifierReplaceAndDisable(t *testing.T) {
	n := NewNotifier()
	first, second := 0, 0

	n.SetOnLoginResult(func(LoginResult) { first++ })
	n.SetOnLoginResult(func(LoginResult) { second++ })
	n.loginResult(LoginResult{Success: true})

	if first != 0 || second != 1 {
		t.Errorf("expected only the latest callback, got first=%d second=%d", first, second)
	}

	n.SetOnLoginResult(nil)
	n.loginResult(LoginResult{})
	if second != 1 {
		t.Errorf("expected nil callback to disable notification, got %d", second)
	}
}
