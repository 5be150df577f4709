// Package engine describes the achievement validation engine consumed by
// the session: the callbacks it is constructed with, the records it
// reports, and the operations the session drives.
//
// The engine owns achievement logic, unlock conditions and the remote API
// format. The session treats it as opaque and only relies on the contract
// documented here.
package engine

import (
	"sync"
	"time"
)

// Result codes passed to Callback.
const (
	OK                 = 0
	InvalidState       = -1
	NoResponse         = -2
	InvalidJSON        = -3
	InvalidCredentials = -4
	ExpiredToken       = -5
	NoGameLoaded       = -6
	NotFound           = -7
	Aborted            = -8
)

// ResultString returns a readable name for a result code.
func ResultString(result int) string {
	switch result {
	case OK:
		return "OK"
	case InvalidState:
		return "invalid state"
	case NoResponse:
		return "no response from server"
	case InvalidJSON:
		return "invalid response from server"
	case InvalidCredentials:
		return "invalid credentials"
	case ExpiredToken:
		return "expired token"
	case NoGameLoaded:
		return "no game loaded"
	case NotFound:
		return "not found"
	case Aborted:
		return "aborted"
	default:
		return "unknown error"
	}
}

// Callback completes an asynchronous engine operation. It is invoked
// exactly once per operation, possibly on another goroutine, possibly
// before the initiating call returns.
type Callback func(result int, errorMessage string)

// MemoryReader reads len(buf) bytes at a flat address and returns the
// number of bytes read. It must zero-fill buf when it returns zero.
type MemoryReader func(address uint32, buf []byte) uint32

// ServerRequest is an outbound call the engine needs performed. The
// handler must call Respond exactly once.
type ServerRequest struct {
	URL         string
	PostData    string
	ContentType string

	once    sync.Once
	respond func(body []byte, statusCode int)
}

// NewServerRequest binds a request to its completion.
func NewServerRequest(url, postData, contentType string, respond func(body []byte, statusCode int)) *ServerRequest {
	return &ServerRequest{
		URL:         url,
		PostData:    postData,
		ContentType: contentType,
		respond:     respond,
	}
}

// Respond delivers the server response. A nil body with status 0 signals
// that no response was obtained. Calls after the first are ignored.
func (r *ServerRequest) Respond(body []byte, statusCode int) {
	r.once.Do(func() {
		if r.respond != nil {
			r.respond(body, statusCode)
		}
	})
}

// ServerCaller performs a ServerRequest. It must not block the caller on
// network I/O.
type ServerCaller func(req *ServerRequest)

// Unlock state of an achievement.
const (
	AchievementUnlockedNone     = 0
	AchievementUnlockedSoftcore = 1
	AchievementUnlockedHardcore = 2
	AchievementUnlockedBoth     = AchievementUnlockedSoftcore | AchievementUnlockedHardcore
)

// Achievement state.
const (
	AchievementStateInactive = 0
	AchievementStateActive   = 1
	AchievementStateUnlocked = 2
	AchievementStateDisabled = 3
)

// Category filters achievement lists.
type Category int

const (
	CategoryCore              Category = 1
	CategoryUnofficial        Category = 2
	CategoryCoreAndUnofficial          = CategoryCore | CategoryUnofficial
)

// Grouping selects how CreateAchievementList buckets achievements.
type Grouping int

const (
	GroupingLockState Grouping = iota
	GroupingProgress
)

// Bucket types reported in AchievementBucket.
const (
	BucketUnknown = iota
	BucketLocked
	BucketUnlocked
	BucketUnsupported
	BucketUnofficial
	BucketRecentlyUnlocked
	BucketActiveChallenge
	BucketAlmostThere
)

// Achievement is the engine's view of one achievement. MeasuredProgress is
// non-empty ("value/target") only for measured achievements.
type Achievement struct {
	ID               uint32
	Title            string
	Description      string
	Points           uint32
	BadgeName        string
	BadgeURL         string
	BadgeLockedURL   string
	MeasuredProgress string
	MeasuredPercent  float32
	UnlockTime       time.Time
	State            uint8
	Category         uint8
	Bucket           uint8
	Unlocked         uint8
	Rarity           float32
	RarityHardcore   float32
	Type             uint8
}

// AchievementBucket is one group of an AchievementList.
type AchievementBucket struct {
	Label        string
	SubsetID     uint32
	BucketType   uint8
	Achievements []*Achievement
}

// AchievementList is returned by CreateAchievementList.
type AchievementList struct {
	Buckets []AchievementBucket
}

// All flattens the list in display order.
func (l *AchievementList) All() []*Achievement {
	if l == nil {
		return nil
	}
	var out []*Achievement
	for _, b := range l.Buckets {
		out = append(out, b.Achievements...)
	}
	return out
}

// Game describes the loaded game.
type Game struct {
	ID        uint32
	ConsoleID uint32
	Title     string
	Hash      string
	BadgeName string
}

// User describes the logged-in user.
type User struct {
	Username      string
	DisplayName   string
	Token         string
	Score         uint32
	ScoreSoftcore uint32
}

// EventType identifies an Event.
type EventType int

const (
	EventAchievementTriggered EventType = iota + 1
	EventGameCompleted
	EventReset
	EventServerError
	EventDisconnected
	EventReconnected
)

// ServerError accompanies EventServerError.
type ServerError struct {
	API          string
	ErrorMessage string
	Result       int
}

// Event is raised by the engine, usually from DoFrame.
type Event struct {
	Type        EventType
	Achievement *Achievement
	ServerError *ServerError
}

// EventHandler receives engine events.
type EventHandler func(event *Event)

// Engine is one validation engine instance. All methods may be called from
// the session's tick goroutine; callbacks and events may arrive on others.
type Engine interface {
	SetEventHandler(handler EventHandler)
	SetHardcoreEnabled(enabled bool)
	SetEncoreModeEnabled(enabled bool)

	LoginWithPassword(username, password string, callback Callback)
	LoginWithToken(username, token string, callback Callback)
	User() *User

	LoadGame(hash string, callback Callback)
	Game() *Game
	UnloadGame()

	CreateAchievementList(category Category, grouping Grouping) *AchievementList

	// IsProcessingRequired reports whether DoFrame has anything to evaluate.
	IsProcessingRequired() bool
	DoFrame()
	Idle()
	Reset()
	CanPause() (allowed bool, framesRemaining uint32)

	// Measured returns the current measured value and target for an
	// achievement. ok is false if the achievement is not measured.
	Measured(id uint32) (value, target uint32, ok bool)
	FormatMeasured(id uint32) string

	UserAgentClause() string
	Destroy()
}

// Factory creates an engine bound to the session's memory and server hooks.
type Factory func(read MemoryReader, server ServerCaller) Engine
