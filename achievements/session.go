package achievements

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/engine"
	"github.com/PanMenel/racore/netbridge"
)

// ErrNotEnabled is returned by login requests while no engine instance
// exists.
var ErrNotEnabled = errors.New("achievements not enabled")

// ErrLoginInProgress is returned when a login is requested while another
// attempt has not completed yet.
var ErrLoginInProgress = errors.New("login already in progress")

// LoadState is the game-load pipeline state.
type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadLoaded
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadIdle:
		return "Idle"
	case LoadLoading:
		return "Loading"
	case LoadLoaded:
		return "Loaded"
	case LoadFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type completionKind int

const (
	completeLogin completionKind = iota
	completeLoad
	completeEvent
)

// completion carries an engine callback or event back to the goroutine
// that drives FrameTick.
type completion struct {
	kind       completionKind
	generation uint64
	attempt    uint64
	identity   string
	result     int
	message    string
	event      *engine.Event
}

// outbox collects observer notifications while the session lock is held;
// they are delivered after it is released.
type outbox []func()

func (o *outbox) add(fn func()) {
	*o = append(*o, fn)
}

func (o outbox) flush() {
	for _, fn := range o {
		fn()
	}
}

// Status is a point-in-time copy of the session's observable state.
type Status struct {
	Enabled         bool
	Paused          bool
	Authenticated   bool
	Hardcore        bool
	Username        string
	DisplayName     string
	PendingIdentity string
	LastIdentity    string
	LoadState       LoadState
	LoadError       string
	LoginError      string
	Achievements    int
}

// Session owns the achievement engine instance for one emulator instance:
// enablement, authentication, the game-load pipeline and the progress
// cache. FrameTick must be called from a single goroutine; every other
// method may be called from any goroutine.
type Session struct {
	factory   engine.Factory
	transport Transport
	notifier  *Notifier
	dispatch  Dispatcher

	host atomic.Pointer[host]

	// qmu guards queue only; post runs under s.mu from engine callbacks.
	qmu   sync.Mutex
	queue []completion

	mu            sync.Mutex
	eng           engine.Engine
	generation    uint64
	enabled       bool
	paused        bool
	authenticated bool
	hardcore      bool
	encore        bool

	username    string
	password    string
	token       string
	displayName string

	loginInFlight bool
	loginAttempt  uint64
	loginError    string

	pendingIdentity string
	lastIdentity    string
	loadState       LoadState
	loadAttempt     uint64
	loadError       string

	cache *ProgressCache
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier sets the notifier observers register with.
func WithNotifier(n *Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithDispatcher sets the asynchronous mechanism used for server calls.
// The default starts a goroutine per call.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Session) {
		if d != nil {
			s.dispatch = d
		}
	}
}

// WithEmulator attaches the emulator's memory view and run state.
func WithEmulator(memory emucore.MemoryInspector, runner emucore.GameRunner) Option {
	return func(s *Session) {
		s.host.Store(&host{memory: memory, runner: runner})
	}
}

// NewSession creates a disabled session. factory is called by Enable to
// create each engine instance; transport carries the engine's server calls.
func NewSession(factory engine.Factory, transport Transport, opts ...Option) *Session {
	s := &Session{
		factory:   factory,
		transport: transport,
		notifier:  NewNotifier(),
		dispatch:  func(fn func()) { go fn() },
		cache:     NewProgressCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notifier returns the notifier observers register callbacks with.
func (s *Session) Notifier() *Notifier {
	return s.notifier
}

// AttachEmulator replaces the emulator the engine reads memory from. Either
// argument may be nil.
func (s *Session) AttachEmulator(memory emucore.MemoryInspector, runner emucore.GameRunner) {
	s.host.Store(&host{memory: memory, runner: runner})
}

// SetCredentials stores the credentials Enable logs in with.
func (s *Session) SetCredentials(username, password string, hardcore bool) {
	s.mu.Lock()
	s.username = username
	s.password = password
	s.hardcore = hardcore
	s.mu.Unlock()
}

// SetToken stores a previously issued login token. Enable prefers it over
// a stored password.
func (s *Session) SetToken(username, token string) {
	s.mu.Lock()
	s.username = username
	s.token = token
	s.mu.Unlock()
}

// SetEncoreMode allows unlocked achievements to trigger again. It applies
// to the current engine instance and to future ones.
func (s *Session) SetEncoreMode(enabled bool) {
	s.mu.Lock()
	s.encore = enabled
	if s.eng != nil {
		s.eng.SetEncoreModeEnabled(enabled)
	}
	s.mu.Unlock()
}

// Enable creates the engine instance and, if not authenticated, logs in
// with the stored token or credentials.
func (s *Session) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled {
		return
	}
	if s.factory == nil {
		log.Printf("[RetroAchievements] no engine available")
		return
	}

	s.enabled = true
	s.generation++
	gen := s.generation

	s.eng = s.factory(s.readMemory, s.serverCall)
	s.eng.SetEventHandler(func(ev *engine.Event) {
		if ev == nil {
			return
		}
		// the event may be reused after the handler returns
		cp := *ev
		if ev.Achievement != nil {
			a := *ev.Achievement
			cp.Achievement = &a
		}
		if ev.ServerError != nil {
			se := *ev.ServerError
			cp.ServerError = &se
		}
		s.post(completion{kind: completeEvent, generation: gen, event: &cp})
	})
	s.eng.SetHardcoreEnabled(s.hardcore)
	s.eng.SetEncoreModeEnabled(s.encore)

	log.Printf("[RetroAchievements] enabled (hardcore=%v)", s.hardcore)

	if !s.authenticated {
		s.loginStoredLocked()
	}
}

// Disable destroys the engine instance and forgets authentication, the
// game identities and the achievement list. It is safe to call repeatedly
// and before Enable.
func (s *Session) Disable() {
	var out outbox
	s.mu.Lock()

	if !s.enabled {
		s.mu.Unlock()
		return
	}

	s.enabled = false
	s.generation++

	if s.eng != nil {
		s.eng.Destroy()
		s.eng = nil
	}
	s.qmu.Lock()
	s.queue = nil
	s.qmu.Unlock()

	if s.loginInFlight {
		out.add(func() {
			s.notifier.loginResult(LoginResult{Success: false, Message: "login aborted: achievements disabled"})
		})
	}

	s.authenticated = false
	s.loginInFlight = false
	s.pendingIdentity = ""
	s.lastIdentity = ""
	s.loadState = LoadIdle
	s.loadError = ""
	s.cache.Clear()

	log.Printf("[RetroAchievements] disabled")
	s.mu.Unlock()

	out.flush()
}

// LoginWithCredentials starts a password login. It returns ErrNotEnabled
// when there is no engine instance and ErrLoginInProgress while another
// attempt is outstanding; otherwise the outcome is reported through the
// login-result notification.
func (s *Session) LoginWithCredentials(username, password string, hardcore bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng == nil {
		return ErrNotEnabled
	}
	if s.loginInFlight {
		return ErrLoginInProgress
	}

	s.username = username
	s.password = password
	s.hardcore = hardcore
	s.eng.SetHardcoreEnabled(hardcore)

	eng := s.eng
	s.beginLoginLocked(func(cb engine.Callback) {
		eng.LoginWithPassword(username, password, cb)
	})
	return nil
}

// LoginWithToken starts a login with a stored token.
func (s *Session) LoginWithToken(username, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng == nil {
		return ErrNotEnabled
	}
	if s.loginInFlight {
		return ErrLoginInProgress
	}

	s.username = username
	s.token = token

	eng := s.eng
	s.beginLoginLocked(func(cb engine.Callback) {
		eng.LoginWithToken(username, token, cb)
	})
	return nil
}

// SetPendingGameIdentity records the hash of the game the emulator is
// running. A different identity drops the current load state and list
// immediately; the load itself starts on a later FrameTick. Empty
// identities are ignored.
func (s *Session) SetPendingGameIdentity(identity string) {
	if identity == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingIdentity = identity
	if identity != s.lastIdentity {
		s.loadState = LoadIdle
		s.loadError = ""
		s.cache.Clear()
	}
}

// SetPaused suppresses FrameTick processing while paused.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// Reset re-arms evaluation for the current game without logging out. A
// failed load becomes eligible for another attempt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng != nil {
		s.eng.Reset()
	}
	s.cache.ResetProgress()

	if s.loadState == LoadFailed {
		s.loadState = LoadIdle
		s.loadError = ""
	}
}

// FrameTick advances the session by one emulated frame and applies the
// completions that arrived since the previous tick. It never blocks on the
// network and does nothing while paused.
func (s *Session) FrameTick() {
	var out outbox
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	s.drainLocked(&out)
	s.tickLocked(&out)
	s.mu.Unlock()
	out.flush()
}

// Idle delivers pending completions and lets the engine do periodic work.
// Hosts call it instead of FrameTick while emulation is paused.
func (s *Session) Idle() {
	var out outbox
	s.mu.Lock()
	s.drainLocked(&out)
	if s.eng != nil {
		s.eng.Idle()
	}
	s.mu.Unlock()
	out.flush()
}

func (s *Session) tickLocked(out *outbox) {
	if !s.enabled || s.eng == nil {
		return
	}

	if s.pendingIdentity != s.lastIdentity {
		s.loadState = LoadIdle
		s.loadError = ""
		s.cache.Clear()
		s.lastIdentity = s.pendingIdentity
	}

	switch s.loadState {
	case LoadFailed, LoadLoading:
		return

	case LoadIdle:
		if s.pendingIdentity == "" || !s.gameRunning() {
			return
		}
		// the engine rejects loads until a user is logged in
		if s.loginInFlight {
			return
		}
		s.beginLoadLocked(s.pendingIdentity)

	case LoadLoaded:
		if !s.eng.IsProcessingRequired() {
			return
		}
		s.eng.DoFrame()

		// apply unlocks raised during the frame before measuring
		s.drainLocked(out)
		if s.loadState != LoadLoaded || s.eng == nil {
			return
		}

		for _, ch := range s.cache.UpdateMeasured(s.eng) {
			ch := ch
			out.add(func() { s.notifier.measuredProgress(ch) })
		}
	}
}

func (s *Session) beginLoadLocked(identity string) {
	s.loadState = LoadLoading
	s.loadAttempt++
	attempt, gen := s.loadAttempt, s.generation

	log.Printf("[RetroAchievements] loading game %s", identity)
	s.eng.LoadGame(identity, func(result int, errorMessage string) {
		s.post(completion{
			kind:       completeLoad,
			generation: gen,
			attempt:    attempt,
			identity:   identity,
			result:     result,
			message:    errorMessage,
		})
	})
}

func (s *Session) beginLoginLocked(start func(engine.Callback)) {
	s.loginInFlight = true
	s.loginAttempt++
	attempt, gen := s.loginAttempt, s.generation

	start(func(result int, errorMessage string) {
		s.post(completion{
			kind:       completeLogin,
			generation: gen,
			attempt:    attempt,
			result:     result,
			message:    errorMessage,
		})
	})
}

func (s *Session) loginStoredLocked() {
	username, password, token := s.username, s.password, s.token
	eng := s.eng

	switch {
	case username != "" && token != "":
		s.beginLoginLocked(func(cb engine.Callback) {
			eng.LoginWithToken(username, token, cb)
		})
	case username != "" && password != "":
		s.beginLoginLocked(func(cb engine.Callback) {
			eng.LoginWithPassword(username, password, cb)
		})
	}
}

// post never blocks and never takes s.mu: callbacks can fire while the
// session lock is held.
func (s *Session) post(c completion) {
	s.qmu.Lock()
	s.queue = append(s.queue, c)
	s.qmu.Unlock()
}

// drainLocked applies queued completions in arrival order, including any
// posted while applying.
func (s *Session) drainLocked(out *outbox) {
	for {
		s.qmu.Lock()
		batch := s.queue
		s.queue = nil
		s.qmu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			s.applyLocked(c, out)
		}
	}
}

func (s *Session) pendingCompletions() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

func (s *Session) applyLocked(c completion, out *outbox) {
	if c.generation != s.generation {
		log.Printf("[RetroAchievements] discarding completion from a previous engine instance")
		return
	}

	switch c.kind {
	case completeLogin:
		s.applyLoginLocked(c, out)
	case completeLoad:
		s.applyLoadLocked(c, out)
	case completeEvent:
		s.applyEventLocked(c.event, out)
	}
}

func (s *Session) applyLoginLocked(c completion, out *outbox) {
	if !s.loginInFlight || c.attempt != s.loginAttempt {
		return
	}
	s.loginInFlight = false

	if c.result == engine.OK && s.eng != nil {
		if user := s.eng.User(); user != nil {
			s.authenticated = true
			s.username = user.Username
			s.token = user.Token
			s.displayName = user.DisplayName
			s.loginError = ""
			log.Printf("[RetroAchievements] logged in as %s", user.Username)
			out.add(func() {
				s.notifier.loginResult(LoginResult{Success: true, Message: "Logged in Successfully!"})
			})
			return
		}
		c.message = "login succeeded but user info unavailable"
	}

	msg := c.message
	if msg == "" {
		msg = engine.ResultString(c.result)
	}
	if c.result == engine.InvalidCredentials || c.result == engine.ExpiredToken {
		s.token = ""
	}

	s.authenticated = false
	s.loginError = msg
	log.Printf("[RetroAchievements] login failed: %s", msg)
	out.add(func() {
		s.notifier.loginResult(LoginResult{Success: false, Message: msg})
	})
}

func (s *Session) applyLoadLocked(c completion, out *outbox) {
	if c.attempt != s.loadAttempt || s.loadState != LoadLoading ||
		c.identity != s.pendingIdentity || c.identity != s.lastIdentity {
		log.Printf("[RetroAchievements] discarding stale load result for %s", c.identity)
		return
	}

	if c.result != engine.OK {
		msg := c.message
		if msg == "" {
			msg = engine.ResultString(c.result)
		}
		s.loadState = LoadFailed
		s.loadError = msg
		s.cache.Clear()
		log.Printf("[RetroAchievements] failed to load game %s: %s", c.identity, msg)
		out.add(func() {
			s.notifier.gameLoadResult(GameLoadResult{Success: false, Identity: c.identity, Message: msg})
		})
		return
	}

	defs, progress := definitionsFromList(
		s.eng.CreateAchievementList(engine.CategoryCoreAndUnofficial, engine.GroupingProgress))
	s.cache.RefreshAll(defs)
	for id, p := range progress {
		s.cache.SeedProgress(id, p)
	}

	s.loadState = LoadLoaded
	s.loadError = ""
	log.Printf("[RetroAchievements] loaded game %s with %d achievements (%d measured)",
		c.identity, s.cache.Len(), s.cache.TrackedCount())
	out.add(func() {
		s.notifier.gameLoadResult(GameLoadResult{Success: true, Identity: c.identity})
	})
}

func (s *Session) applyEventLocked(ev *engine.Event, out *outbox) {
	switch ev.Type {
	case engine.EventAchievementTriggered:
		if ev.Achievement == nil {
			return
		}
		a := ev.Achievement
		s.cache.MarkUnlocked(a.ID, time.Now())
		unlocked := AchievementUnlocked{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			BadgeURL:    a.BadgeURL,
		}
		out.add(func() { s.notifier.achievementUnlocked(unlocked) })

	case engine.EventGameCompleted:
		log.Printf("[RetroAchievements] game mastered: %s", s.lastIdentity)

	case engine.EventReset:
		s.cache.ResetProgress()

	case engine.EventServerError:
		if ev.ServerError != nil {
			log.Printf("[RetroAchievements] Server error: %s", ev.ServerError.ErrorMessage)
		}
	}
}

// readMemory is the engine's memory callback.
func (s *Session) readMemory(address uint32, buf []byte) uint32 {
	h := s.host.Load()
	if h == nil || h.memory == nil {
		for i := range buf {
			buf[i] = 0
		}
		return 0
	}
	return h.memory.ReadMemory(address, buf)
}

func (s *Session) gameRunning() bool {
	h := s.host.Load()
	return h != nil && h.runner != nil && h.runner.IsGameRunning()
}

// serverCall is the engine's server callback. The request runs on the
// dispatcher and always gets exactly one response.
func (s *Session) serverCall(req *engine.ServerRequest) {
	if s.transport == nil {
		req.Respond(nil, 0)
		return
	}

	s.dispatch(func() {
		resp, err := s.transport.Send(context.Background(), netbridge.Request{
			URL:         req.URL,
			PostData:    req.PostData,
			ContentType: req.ContentType,
		})
		if err != nil {
			log.Printf("[RetroAchievements] HTTP error: %v", err)
			req.Respond(nil, 0)
			return
		}
		req.Respond(resp.Body, resp.StatusCode)
	})
}

// IsEnabled reports whether an engine instance exists.
func (s *Session) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// IsPaused reports whether FrameTick processing is suppressed.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsAuthenticated reports whether the last login succeeded.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// IsHardcore reports whether hardcore mode was requested.
func (s *Session) IsHardcore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hardcore
}

// IsGameLoaded reports whether achievements for the current game are
// loaded.
func (s *Session) IsGameLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadState == LoadLoaded
}

// LoadState returns the load pipeline state.
func (s *Session) LoadState() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadState
}

// LastLoadError returns the message of the last failed load.
func (s *Session) LastLoadError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadError
}

// LastLoginError returns the message of the last failed login.
func (s *Session) LastLoginError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginError
}

// Username returns the account name.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// DisplayName returns the display name reported at login.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// Token returns the session token issued at login.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Game returns the loaded game, or nil.
func (s *Session) Game() *engine.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil || s.loadState != LoadLoaded {
		return nil
	}
	g := s.eng.Game()
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}

// CanPause reports whether the engine currently allows pausing.
func (s *Session) CanPause() (bool, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return true, 0
	}
	return s.eng.CanPause()
}

// GetAchievementList returns a copy of the achievement list in display
// order.
func (s *Session) GetAchievementList() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Snapshot()
}

// Snapshot returns the session's observable state.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Enabled:         s.enabled,
		Paused:          s.paused,
		Authenticated:   s.authenticated,
		Hardcore:        s.hardcore,
		Username:        s.username,
		DisplayName:     s.displayName,
		PendingIdentity: s.pendingIdentity,
		LastIdentity:    s.lastIdentity,
		LoadState:       s.loadState,
		LoadError:       s.loadError,
		LoginError:      s.loginError,
		Achievements:    s.cache.Len(),
	}
}
