package achievements

import (
	"fmt"
	"sync"

	"github.com/PanMenel/racore/engine"
)

type loadCall struct {
	hash string
	cb   engine.Callback
}

// fakeEngine records every call and keeps callbacks so tests decide when
// and how requests complete.
type fakeEngine struct {
	mu sync.Mutex

	read   engine.MemoryReader
	server engine.ServerCaller
	events engine.EventHandler

	hardcore  bool
	encore    bool
	destroyed bool

	loginCalls []engine.Callback
	loginUser  string
	user       *engine.User

	loads []loadCall
	game  *engine.Game
	list  *engine.AchievementList

	processing bool
	frames     int
	idles      int
	resets     int

	measured map[uint32][2]uint32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{measured: make(map[uint32][2]uint32)}
}

func (f *fakeEngine) SetEventHandler(h engine.EventHandler) { f.events = h }
func (f *fakeEngine) SetHardcoreEnabled(enabled bool)       { f.hardcore = enabled }
func (f *fakeEngine) SetEncoreModeEnabled(enabled bool)     { f.encore = enabled }

func (f *fakeEngine) LoginWithPassword(username, _ string, cb engine.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginUser = username
	f.loginCalls = append(f.loginCalls, cb)
}

func (f *fakeEngine) LoginWithToken(username, _ string, cb engine.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginUser = username
	f.loginCalls = append(f.loginCalls, cb)
}

func (f *fakeEngine) User() *engine.User { return f.user }

func (f *fakeEngine) LoadGame(hash string, cb engine.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, loadCall{hash: hash, cb: cb})
}

func (f *fakeEngine) Game() *engine.Game { return f.game }
func (f *fakeEngine) UnloadGame()        { f.game = nil }

func (f *fakeEngine) CreateAchievementList(engine.Category, engine.Grouping) *engine.AchievementList {
	return f.list
}

func (f *fakeEngine) IsProcessingRequired() bool { return f.processing }
func (f *fakeEngine) DoFrame()                   { f.frames++ }
func (f *fakeEngine) Idle()                      { f.idles++ }
func (f *fakeEngine) Reset()                     { f.resets++ }
func (f *fakeEngine) CanPause() (bool, uint32)   { return true, 0 }

func (f *fakeEngine) Measured(id uint32) (uint32, uint32, bool) {
	m, ok := f.measured[id]
	return m[0], m[1], ok
}

func (f *fakeEngine) FormatMeasured(id uint32) string {
	m := f.measured[id]
	return formatPair(m[0], m[1])
}

func (f *fakeEngine) UserAgentClause() string { return "fake/1.0" }
func (f *fakeEngine) Destroy()                { f.destroyed = true }

func (f *fakeEngine) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeEngine) lastLoad() loadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[len(f.loads)-1]
}

func (f *fakeEngine) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loginCalls)
}

func (f *fakeEngine) lastLogin() engine.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls[len(f.loginCalls)-1]
}

func formatPair(value, target uint32) string {
	return fmt.Sprintf("%d/%d", value, target)
}

// fakeFactory hands out fresh fake engines and remembers them.
type fakeFactory struct {
	engines []*fakeEngine
}

func (ff *fakeFactory) create(read engine.MemoryReader, server engine.ServerCaller) engine.Engine {
	e := newFakeEngine()
	e.read = read
	e.server = server
	ff.engines = append(ff.engines, e)
	return e
}

func (ff *fakeFactory) current() *fakeEngine {
	return ff.engines[len(ff.engines)-1]
}

type fakeRunner struct {
	mu      sync.Mutex
	running bool
}

func (r *fakeRunner) IsGameRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *fakeRunner) set(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

type fakeMemory struct {
	data map[uint32]byte
}

func (m *fakeMemory) ReadMemory(addr uint32, buf []byte) uint32 {
	for i := range buf {
		buf[i] = m.data[addr+uint32(i)]
	}
	return uint32(len(buf))
}

func sampleList() *engine.AchievementList {
	return &engine.AchievementList{
		Buckets: []engine.AchievementBucket{
			{
				Label:      "Locked",
				BucketType: engine.BucketLocked,
				Achievements: []*engine.Achievement{
					{ID: 1, Title: "First Steps", Points: 5, MeasuredProgress: "3/10"},
					{ID: 2, Title: "Collector", Points: 10},
				},
			},
			{
				Label:      "Unlocked",
				BucketType: engine.BucketUnlocked,
				Achievements: []*engine.Achievement{
					{ID: 3, Title: "Done", Points: 25, Unlocked: engine.AchievementUnlockedBoth},
				},
			},
		},
	}
}
