package webui

import (
	"time"

	"github.com/PanMenel/racore/achievements"
	"github.com/PanMenel/racore/engine"
)

// StatusView mirrors achievements.Status for the browser.
type StatusView struct {
	Enabled       bool      `json:"enabled"`
	Paused        bool      `json:"paused"`
	Authenticated bool      `json:"authenticated"`
	Hardcore      bool      `json:"hardcore"`
	Username      string    `json:"username,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
	Identity      string    `json:"identity,omitempty"`
	LoadState     string    `json:"loadState"`
	LoadError     string    `json:"loadError,omitempty"`
	LoginError    string    `json:"loginError,omitempty"`
	Achievements  int       `json:"achievements"`
	Game          *GameView `json:"game,omitempty"`
}

type GameView struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Hash  string `json:"hash"`
	Badge string `json:"badge,omitempty"`
}

type AchievementView struct {
	ID          uint32     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Points      uint32     `json:"points"`
	Badge       string     `json:"badge,omitempty"`
	Bucket      string     `json:"bucket"`
	Unlocked    bool       `json:"unlocked"`
	UnlockTime  *time.Time `json:"unlockTime,omitempty"`
	Progress    string     `json:"progress,omitempty"`
	Percent     float32    `json:"percent,omitempty"`
}

type UnlockView struct {
	ID          uint32 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Badge       string `json:"badge,omitempty"`
}

type ProgressView struct {
	ID     uint32 `json:"id"`
	Value  uint32 `json:"value"`
	Target uint32 `json:"target"`
	Text   string `json:"text"`
}

type ResultView struct {
	Success  bool   `json:"success"`
	Identity string `json:"identity,omitempty"`
	Message  string `json:"message,omitempty"`
}

func statusView(st achievements.Status, game *engine.Game) StatusView {
	v := StatusView{
		Enabled:       st.Enabled,
		Paused:        st.Paused,
		Authenticated: st.Authenticated,
		Hardcore:      st.Hardcore,
		Username:      st.Username,
		DisplayName:   st.DisplayName,
		Identity:      st.LastIdentity,
		LoadState:     st.LoadState.String(),
		LoadError:     st.LoadError,
		LoginError:    st.LoginError,
		Achievements:  st.Achievements,
	}
	if v.Identity == "" {
		v.Identity = st.PendingIdentity
	}
	if game != nil {
		v.Game = &GameView{ID: game.ID, Title: game.Title, Hash: game.Hash, Badge: game.BadgeName}
	}
	return v
}

func listView(entries []achievements.Entry) []AchievementView {
	out := make([]AchievementView, 0, len(entries))
	for _, e := range entries {
		v := AchievementView{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Points:      e.Points,
			Badge:       e.BadgeURL,
			Bucket:      e.BucketLabel,
			Unlocked:    e.Unlocked,
			Progress:    e.Progress.Text,
		}
		if !e.Unlocked {
			v.Badge = e.BadgeLockedURL
			v.Percent = e.Progress.Percent()
		}
		if e.Unlocked && !e.UnlockTime.IsZero() {
			t := e.UnlockTime
			v.UnlockTime = &t
		}
		out = append(out, v)
	}
	return out
}
