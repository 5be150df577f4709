package achievements

import "sync"

// AchievementUnlocked is delivered when the engine triggers an achievement.
type AchievementUnlocked struct {
	ID          uint32
	Title       string
	Description string
	BadgeURL    string
}

// LoginResult is delivered once per login attempt.
type LoginResult struct {
	Success bool
	Message string
}

// GameLoadResult is delivered once per load attempt that is still current
// when it completes.
type GameLoadResult struct {
	Success  bool
	Identity string
	Message  string
}

// Notifier holds one callback per event kind. Registering replaces the
// previous callback and nil disables the event. Callbacks run synchronously
// on the goroutine that drives the session.
type Notifier struct {
	mu                 sync.Mutex
	onUnlocked         func(AchievementUnlocked)
	onLoginResult      func(LoginResult)
	onGameLoadResult   func(GameLoadResult)
	onMeasuredProgress func(ProgressChange)
}

// NewNotifier returns a Notifier with every slot empty.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SetOnAchievementUnlocked sets the achievement-unlocked callback.
func (n *Notifier) SetOnAchievementUnlocked(fn func(AchievementUnlocked)) {
	n.mu.Lock()
	n.onUnlocked = fn
	n.mu.Unlock()
}

// SetOnLoginResult sets the login-result callback.
func (n *Notifier) SetOnLoginResult(fn func(LoginResult)) {
	n.mu.Lock()
	n.onLoginResult = fn
	n.mu.Unlock()
}

// SetOnGameLoadResult sets the game-load-result callback.
func (n *Notifier) SetOnGameLoadResult(fn func(GameLoadResult)) {
	n.mu.Lock()
	n.onGameLoadResult = fn
	n.mu.Unlock()
}

// SetOnMeasuredProgress sets the measured-progress-changed callback.
func (n *Notifier) SetOnMeasuredProgress(fn func(ProgressChange)) {
	n.mu.Lock()
	n.onMeasuredProgress = fn
	n.mu.Unlock()
}

func (n *Notifier) achievementUnlocked(ev AchievementUnlocked) {
	n.mu.Lock()
	fn := n.onUnlocked
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (n *Notifier) loginResult(ev LoginResult) {
	n.mu.Lock()
	fn := n.onLoginResult
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (n *Notifier) gameLoadResult(ev GameLoadResult) {
	n.mu.Lock()
	fn := n.onGameLoadResult
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (n *Notifier) measuredProgress(ev ProgressChange) {
	n.mu.Lock()
	fn := n.onMeasuredProgress
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
