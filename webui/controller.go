package webui

import (
	"encoding/json"
	"fmt"

	"github.com/PanMenel/racore/achievements"
	"github.com/PanMenel/racore/engine"
)

// Session is the part of achievements.Session the browser can drive.
type Session interface {
	Enable()
	Disable()
	LoginWithCredentials(username, password string, hardcore bool) error
	SetPaused(paused bool)
	Reset()
	Snapshot() achievements.Status
	Game() *engine.Game
	GetAchievementList() []achievements.Entry
}

type loginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Hardcore bool   `json:"hardcore"`
}

type pauseArgs struct {
	Paused bool `json:"paused"`
}

// Controller maps browser commands onto a session and turns notifier
// events into broadcasts.
type Controller struct {
	session Session
	server  *WebServer
}

// NewController creates the controller and the web server that feeds it.
func NewController(session Session) *Controller {
	c := &Controller{session: session}
	c.server = NewWebServer(c)
	return c
}

// Server returns the websocket server.
func (c *Controller) Server() *WebServer {
	return c.server
}

func (c *Controller) status() Update {
	return Update{View: "status", Model: statusView(c.session.Snapshot(), c.session.Game())}
}

func (c *Controller) list() Update {
	return Update{View: "list", Model: listView(c.session.GetAchievementList())}
}

// InitialViews implements CommandHandler.
func (c *Controller) InitialViews() []Update {
	return []Update{c.status(), c.list()}
}

// HandleCommand implements CommandHandler. State-changing commands answer
// with the resulting status; most state changes settle on the next tick,
// when a fresh status is broadcast through the notifier hooks.
func (c *Controller) HandleCommand(command string, args json.RawMessage) (Update, error) {
	switch command {
	case "status":
	case "list":
		return c.list(), nil
	case "enable":
		c.session.Enable()
	case "disable":
		c.session.Disable()
	case "reset":
		c.session.Reset()
	case "pause":
		var a pauseArgs
		if err := decodeArgs(args, &a); err != nil {
			return Update{}, err
		}
		c.session.SetPaused(a.Paused)
	case "login":
		var a loginArgs
		if err := decodeArgs(args, &a); err != nil {
			return Update{}, err
		}
		if a.Username == "" || a.Password == "" {
			return Update{}, fmt.Errorf("login: username and password required")
		}
		if err := c.session.LoginWithCredentials(a.Username, a.Password, a.Hardcore); err != nil {
			return Update{}, err
		}
	default:
		return Update{}, fmt.Errorf("unknown command %q", command)
	}
	return c.status(), nil
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad arguments: %w", err)
	}
	return nil
}

// Unlocked broadcasts an unlock followed by the refreshed list.
func (c *Controller) Unlocked(ev achievements.AchievementUnlocked) {
	c.server.Notify("unlock", UnlockView{ID: ev.ID, Title: ev.Title, Description: ev.Description, Badge: ev.BadgeURL})
	c.server.Notify("list", listView(c.session.GetAchievementList()))
}

// Progress broadcasts a measured progress change.
func (c *Controller) Progress(ev achievements.ProgressChange) {
	c.server.Notify("progress", ProgressView{ID: ev.ID, Value: ev.Value, Target: ev.Target, Text: ev.Text})
}

// LoginResult broadcasts the login outcome and the new status.
func (c *Controller) LoginResult(ev achievements.LoginResult) {
	c.server.Notify("login", ResultView{Success: ev.Success, Message: ev.Message})
	c.server.Notify("status", statusView(c.session.Snapshot(), c.session.Game()))
}

// GameLoadResult broadcasts the load outcome, status and list.
func (c *Controller) GameLoadResult(ev achievements.GameLoadResult) {
	c.server.Notify("load", ResultView{Success: ev.Success, Identity: ev.Identity, Message: ev.Message})
	c.server.Notify("status", statusView(c.session.Snapshot(), c.session.Game()))
	c.server.Notify("list", listView(c.session.GetAchievementList()))
}
