// Package scripted is a self-contained achievement engine. It fetches
// achievement definitions from a RetroAchievements-style web API through
// the session's server caller and evaluates their MemAddr conditions
// against emulator memory every frame.
package scripted

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PanMenel/racore/engine"
)

// DefaultHost is the API host used unless WithHost is given.
const DefaultHost = "https://retroachievements.org"

// DefaultMediaHost serves badge images.
const DefaultMediaHost = "https://media.retroachievements.org"

// Version is reported in the User-Agent clause.
const Version = "1.0"

// minUnpausedFrames is how long hardcore play must run between pauses.
const minUnpausedFrames = 20 * 60

// pingInterval is how often a loaded game reports activity.
const pingInterval = 2 * time.Minute

type achievementState int

const (
	stateWaiting achievementState = iota
	stateActive
	stateUnlocked
	stateDisabled
)

type achievement struct {
	def           patchAchievement
	trigger       *trigger
	state         achievementState
	unlocked      uint8
	unlockTime    time.Time
	measuredValue uint32
	measuredMax   uint32
}

// Engine implements engine.Engine.
type Engine struct {
	read   engine.MemoryReader
	server engine.ServerCaller

	host      string
	mediaHost string
	now       func() time.Time

	mu        sync.Mutex
	events    engine.EventHandler
	hardcore  bool
	encore    bool
	destroyed bool

	user *engine.User
	game *engine.Game

	achievements []*achievement
	byID         map[uint32]*achievement
	loadSeq      uint64

	frame      uint64
	lastPause  uint64
	paused     bool
	lastPing   time.Time
	everPaused bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHost sets the API host.
func WithHost(host string) Option {
	return func(e *Engine) {
		if host != "" {
			e.host = strings.TrimRight(host, "/")
		}
	}
}

// WithMediaHost sets the host badge URLs point at.
func WithMediaHost(host string) Option {
	return func(e *Engine) {
		if host != "" {
			e.mediaHost = strings.TrimRight(host, "/")
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine reading memory through read and sending requests
// through server.
func New(read engine.MemoryReader, server engine.ServerCaller, opts ...Option) *Engine {
	e := &Engine{
		read:      read,
		server:    server,
		host:      DefaultHost,
		mediaHost: DefaultMediaHost,
		now:       time.Now,
		byID:      make(map[uint32]*achievement),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory returns an engine.Factory creating engines with opts.
func Factory(opts ...Option) engine.Factory {
	return func(read engine.MemoryReader, server engine.ServerCaller) engine.Engine {
		return New(read, server, opts...)
	}
}

func (e *Engine) endpoint() string {
	return e.host + "/dorequest.php"
}

// send issues a request. It must be called without e.mu held because the
// server caller may respond synchronously.
func (e *Engine) send(postData string, handle func(body []byte, status int)) {
	if e.server == nil {
		handle(nil, 0)
		return
	}
	e.server(engine.NewServerRequest(e.endpoint(), postData, formContentType, handle))
}

func (e *Engine) SetEventHandler(handler engine.EventHandler) {
	e.mu.Lock()
	e.events = handler
	e.mu.Unlock()
}

// SetHardcoreEnabled switches modes. Enabling hardcore while a game is
// loaded re-arms every achievement and asks the host to reset.
func (e *Engine) SetHardcoreEnabled(enabled bool) {
	e.mu.Lock()
	changed := e.hardcore != enabled
	e.hardcore = enabled
	var ev *engine.Event
	if changed && e.game != nil {
		e.rearmLocked()
		if enabled {
			ev = &engine.Event{Type: engine.EventReset}
		}
	}
	handler := e.events
	e.mu.Unlock()

	if ev != nil && handler != nil {
		handler(ev)
	}
}

func (e *Engine) SetEncoreModeEnabled(enabled bool) {
	e.mu.Lock()
	e.encore = enabled
	e.mu.Unlock()
}

func (e *Engine) LoginWithPassword(username, password string, callback engine.Callback) {
	e.login(form("login2", "u", username, "p", password), callback)
}

func (e *Engine) LoginWithToken(username, token string, callback engine.Callback) {
	e.login(form("login2", "u", username, "t", token), callback)
}

func (e *Engine) login(postData string, callback engine.Callback) {
	e.send(postData, func(body []byte, status int) {
		var resp loginResponse
		result, msg := decode(body, status, &resp)

		e.mu.Lock()
		if e.destroyed {
			result, msg = engine.Aborted, engine.ResultString(engine.Aborted)
		} else if result == engine.OK {
			e.user = &engine.User{
				Username:      resp.User,
				DisplayName:   resp.DisplayName,
				Token:         resp.Token,
				Score:         resp.Score,
				ScoreSoftcore: resp.SoftcoreScore,
			}
			if e.user.DisplayName == "" {
				e.user.DisplayName = resp.User
			}
		}
		e.mu.Unlock()

		callback(result, msg)
	})
}

func (e *Engine) User() *engine.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.user == nil {
		return nil
	}
	u := *e.user
	return &u
}

// LoadGame resolves hash to a game, fetches its achievements and the
// user's unlocks. A newer LoadGame supersedes one still in progress.
func (e *Engine) LoadGame(hash string, callback engine.Callback) {
	e.mu.Lock()
	if e.user == nil {
		e.mu.Unlock()
		callback(engine.InvalidState, "not logged in")
		return
	}
	e.loadSeq++
	seq := e.loadSeq
	user, token := e.user.Username, e.user.Token
	e.mu.Unlock()

	fail := func(result int, msg string) {
		log.Printf("[scripted] load %s failed: %s", hash, msg)
		callback(result, msg)
	}
	current := func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.destroyed && e.loadSeq == seq
	}

	e.send(form("gameid", "m", hash), func(body []byte, status int) {
		var gid gameIDResponse
		if result, msg := decode(body, status, &gid); result != engine.OK {
			fail(result, msg)
			return
		}
		if gid.GameID == 0 {
			fail(engine.NotFound, "Unknown game")
			return
		}
		if !current() {
			fail(engine.Aborted, engine.ResultString(engine.Aborted))
			return
		}

		e.send(form("patch", "u", user, "t", token, "g", itoa(gid.GameID)), func(body []byte, status int) {
			var patch patchResponse
			if result, msg := decode(body, status, &patch); result != engine.OK {
				fail(result, msg)
				return
			}
			achievements := compile(patch.PatchData.Achievements)
			if !current() {
				fail(engine.Aborted, engine.ResultString(engine.Aborted))
				return
			}

			e.mu.Lock()
			hardcore := e.hardcore
			e.mu.Unlock()

			e.send(form("startsession", "u", user, "t", token, "g", itoa(gid.GameID), "h", boolParam(hardcore)), func(body []byte, status int) {
				var session startSessionResponse
				if result, msg := decode(body, status, &session); result != engine.OK {
					fail(result, msg)
					return
				}

				e.mu.Lock()
				if e.destroyed || e.loadSeq != seq {
					e.mu.Unlock()
					fail(engine.Aborted, engine.ResultString(engine.Aborted))
					return
				}
				e.installLocked(hash, patch.PatchData, achievements, session)
				e.mu.Unlock()

				callback(engine.OK, "")
			})
		})
	})
}

func compile(defs []patchAchievement) []*achievement {
	out := make([]*achievement, 0, len(defs))
	for _, def := range defs {
		a := &achievement{def: def}
		t, err := parseTrigger(def.MemAddr)
		if err != nil {
			log.Printf("[scripted] achievement %d disabled: %v", def.ID, err)
			a.state = stateDisabled
		} else {
			a.trigger = t
			_, a.measuredMax = t.measuredTarget()
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) installLocked(hash string, pd patchData, achievements []*achievement, session startSessionResponse) {
	e.game = &engine.Game{
		ID:        pd.ID,
		ConsoleID: pd.ConsoleID,
		Title:     pd.Title,
		Hash:      hash,
		BadgeName: badgeFromIcon(pd.ImageIcon),
	}
	e.achievements = achievements
	e.byID = make(map[uint32]*achievement, len(achievements))
	for _, a := range achievements {
		e.byID[a.def.ID] = a
	}

	mark := func(list []unlockEntry, mode uint8) {
		for _, u := range list {
			if a, ok := e.byID[u.ID]; ok {
				a.unlocked |= mode
				if u.When > 0 {
					a.unlockTime = time.Unix(u.When, 0)
				}
			}
		}
	}
	mark(session.Unlocks, engine.AchievementUnlockedSoftcore)
	mark(session.HardcoreUnlocks, engine.AchievementUnlockedBoth)

	e.lastPing = e.now()
	e.rearmLocked()
}

// rearmLocked puts every achievement that can still trigger back into the
// waiting state.
func (e *Engine) rearmLocked() {
	for _, a := range e.achievements {
		if a.state == stateDisabled {
			continue
		}
		if a.trigger != nil {
			a.trigger.reset()
		}
		a.measuredValue = 0
		if e.unlockedInModeLocked(a) && !e.encore {
			a.state = stateUnlocked
		} else {
			a.state = stateWaiting
		}
	}
}

func (e *Engine) unlockedInModeLocked(a *achievement) bool {
	if e.hardcore {
		return a.unlocked&engine.AchievementUnlockedHardcore != 0
	}
	return a.unlocked&engine.AchievementUnlockedSoftcore != 0
}

func badgeFromIcon(icon string) string {
	name := icon[strings.LastIndex(icon, "/")+1:]
	return strings.TrimSuffix(name, ".png")
}

func (e *Engine) Game() *engine.Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.game == nil {
		return nil
	}
	g := *e.game
	return &g
}

func (e *Engine) UnloadGame() {
	e.mu.Lock()
	e.unloadLocked()
	e.mu.Unlock()
}

func (e *Engine) unloadLocked() {
	e.loadSeq++
	e.game = nil
	e.achievements = nil
	e.byID = make(map[uint32]*achievement)
}

func (e *Engine) IsProcessingRequired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.game == nil {
		return false
	}
	for _, a := range e.achievements {
		if a.state == stateWaiting || a.state == stateActive {
			return true
		}
	}
	return false
}

// DoFrame evaluates every armed achievement once. Triggered achievements
// raise EventAchievementTriggered and are awarded asynchronously.
func (e *Engine) DoFrame() {
	e.mu.Lock()
	if e.game == nil || e.destroyed {
		e.mu.Unlock()
		return
	}
	e.frame++
	e.paused = false

	var events []*engine.Event
	var awards []*achievement
	for _, a := range e.achievements {
		if a.trigger == nil || (a.state != stateWaiting && a.state != stateActive) {
			continue
		}

		fired := a.trigger.evaluate(e.read)
		if value, target, ok := a.trigger.progress(e.read); ok {
			a.measuredValue, a.measuredMax = value, target
		}

		switch {
		case a.state == stateWaiting:
			if !fired {
				a.state = stateActive
			}
		case fired:
			a.state = stateUnlocked
			a.unlockTime = e.now()
			if e.hardcore {
				a.unlocked |= engine.AchievementUnlockedBoth
			} else {
				a.unlocked |= engine.AchievementUnlockedSoftcore
			}
			awards = append(awards, a)
			events = append(events, &engine.Event{
				Type:        engine.EventAchievementTriggered,
				Achievement: e.recordLocked(a, engine.BucketRecentlyUnlocked),
			})
		}
	}

	if len(awards) > 0 && e.allCoreUnlockedLocked() {
		events = append(events, &engine.Event{Type: engine.EventGameCompleted})
	}

	ping := e.pingDueLocked()
	handler := e.events
	hardcore := e.hardcore
	user := e.user
	e.mu.Unlock()

	if handler != nil {
		for _, ev := range events {
			handler(ev)
		}
	}
	for _, a := range awards {
		e.award(user, a.def.ID, hardcore)
	}
	if ping != "" {
		e.send(ping, func([]byte, int) {})
	}
}

func (e *Engine) allCoreUnlockedLocked() bool {
	core := 0
	for _, a := range e.achievements {
		if a.def.Flags != flagsCore {
			continue
		}
		core++
		if !e.unlockedInModeLocked(a) {
			return false
		}
	}
	return core > 0
}

func (e *Engine) pingDueLocked() string {
	if e.user == nil || e.game == nil || e.now().Sub(e.lastPing) < pingInterval {
		return ""
	}
	e.lastPing = e.now()
	return form("ping", "u", e.user.Username, "t", e.user.Token, "g", itoa(e.game.ID))
}

func (e *Engine) award(user *engine.User, id uint32, hardcore bool) {
	if user == nil {
		return
	}
	e.send(form("awardachievement", "u", user.Username, "t", user.Token, "a", itoa(id), "h", boolParam(hardcore)), func(body []byte, status int) {
		var resp awardResponse
		result, msg := decode(body, status, &resp)
		if result == engine.OK {
			return
		}

		log.Printf("[scripted] award %d failed: %s", id, msg)
		e.mu.Lock()
		handler := e.events
		destroyed := e.destroyed
		e.mu.Unlock()
		if handler == nil || destroyed {
			return
		}
		handler(&engine.Event{
			Type: engine.EventServerError,
			ServerError: &engine.ServerError{
				API:          "award_achievement",
				ErrorMessage: msg,
				Result:       result,
			},
		})
	})
}

func (e *Engine) Idle() {
	e.mu.Lock()
	ping := e.pingDueLocked()
	e.mu.Unlock()
	if ping != "" {
		e.send(ping, func([]byte, int) {})
	}
}

// Reset re-arms every achievement as if the game had just been loaded.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.rearmLocked()
	e.mu.Unlock()
}

// CanPause limits how often hardcore play can be paused. The pause is
// recorded when allowed.
func (e *Engine) CanPause() (bool, uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hardcore || e.paused {
		e.paused = true
		return true, 0
	}
	if e.everPaused {
		elapsed := e.frame - e.lastPause
		if elapsed < minUnpausedFrames {
			return false, uint32(minUnpausedFrames - elapsed)
		}
	}
	e.everPaused = true
	e.lastPause = e.frame
	e.paused = true
	return true, 0
}

func (e *Engine) Measured(id uint32) (value, target uint32, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, found := e.byID[id]
	if !found || a.trigger == nil || a.trigger.measured < 0 {
		return 0, 0, false
	}
	if a.state == stateUnlocked && a.measuredMax > 0 {
		return a.measuredMax, a.measuredMax, true
	}
	return a.measuredValue, a.measuredMax, true
}

func (e *Engine) FormatMeasured(id uint32) string {
	value, target, ok := e.Measured(id)
	if !ok || target == 0 {
		return ""
	}
	return itoa(value) + "/" + itoa(target)
}

func (e *Engine) UserAgentClause() string {
	return "scripted/" + Version
}

// Destroy releases the engine. Requests still in flight complete with
// engine.Aborted.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.events = nil
	e.user = nil
	e.unloadLocked()
	e.mu.Unlock()
}

// CreateAchievementList returns the loaded game's achievements filtered by
// category and grouped into buckets.
func (e *Engine) CreateAchievementList(category engine.Category, grouping engine.Grouping) *engine.AchievementList {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := &engine.AchievementList{}
	if e.game == nil {
		return list
	}

	type bucket struct {
		label string
		kind  uint8
	}
	order := []bucket{
		{"Almost There", engine.BucketAlmostThere},
		{"Locked", engine.BucketLocked},
		{"Unlocked", engine.BucketUnlocked},
		{"Unofficial", engine.BucketUnofficial},
		{"Unsupported", engine.BucketUnsupported},
	}
	grouped := make(map[uint8][]*engine.Achievement)

	for _, a := range e.achievements {
		cat := engine.CategoryCore
		if a.def.Flags == flagsUnofficial {
			cat = engine.CategoryUnofficial
		} else if a.def.Flags != flagsCore {
			continue
		}
		if category&cat == 0 {
			continue
		}

		kind := uint8(engine.BucketLocked)
		switch {
		case a.state == stateDisabled:
			kind = engine.BucketUnsupported
		case cat == engine.CategoryUnofficial:
			kind = engine.BucketUnofficial
		case e.unlockedInModeLocked(a):
			kind = engine.BucketUnlocked
		case grouping == engine.GroupingProgress && a.measuredMax > 0 &&
			uint64(a.measuredValue)*100 >= uint64(a.measuredMax)*80:
			kind = engine.BucketAlmostThere
		}
		grouped[kind] = append(grouped[kind], e.recordLocked(a, kind))
	}

	for _, b := range order {
		entries := grouped[b.kind]
		if len(entries) == 0 {
			continue
		}
		if b.kind == engine.BucketUnlocked {
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].UnlockTime.After(entries[j].UnlockTime)
			})
		}
		list.Buckets = append(list.Buckets, engine.AchievementBucket{
			Label:        b.label,
			SubsetID:     e.game.ID,
			BucketType:   b.kind,
			Achievements: entries,
		})
	}
	return list
}

func (e *Engine) recordLocked(a *achievement, bucket uint8) *engine.Achievement {
	rec := &engine.Achievement{
		ID:             a.def.ID,
		Title:          a.def.Title,
		Description:    a.def.Description,
		Points:         a.def.Points,
		BadgeName:      a.def.BadgeName,
		UnlockTime:     a.unlockTime,
		Category:       uint8(engine.CategoryCore),
		Bucket:         bucket,
		Unlocked:       a.unlocked,
		Rarity:         a.def.Rarity,
		RarityHardcore: a.def.RarityHardcore,
		Type:           achievementType(a.def.Type),
	}
	if a.def.Flags == flagsUnofficial {
		rec.Category = uint8(engine.CategoryUnofficial)
	}
	if a.def.BadgeName != "" {
		rec.BadgeURL = e.mediaHost + "/Badge/" + a.def.BadgeName + ".png"
		rec.BadgeLockedURL = e.mediaHost + "/Badge/" + a.def.BadgeName + "_lock.png"
	}

	switch a.state {
	case stateWaiting:
		rec.State = engine.AchievementStateInactive
	case stateActive:
		rec.State = engine.AchievementStateActive
	case stateUnlocked:
		rec.State = engine.AchievementStateUnlocked
	case stateDisabled:
		rec.State = engine.AchievementStateDisabled
	}

	if a.trigger != nil && a.trigger.measured >= 0 && a.measuredMax > 0 {
		value := a.measuredValue
		if a.state == stateUnlocked {
			value = a.measuredMax
		}
		rec.MeasuredProgress = itoa(value) + "/" + itoa(a.measuredMax)
		rec.MeasuredPercent = float32(value) * 100 / float32(a.measuredMax)
	}
	return rec
}

var _ engine.Engine = (*Engine)(nil)
