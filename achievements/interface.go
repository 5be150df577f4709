package achievements

import (
	"context"

	emucore "github.com/PanMenel/racore/api"
	"github.com/PanMenel/racore/netbridge"
)

// Transport performs the engine's server calls. *netbridge.Bridge
// implements it.
type Transport interface {
	Send(ctx context.Context, req netbridge.Request) (netbridge.Response, error)
}

// Dispatcher runs fn asynchronously. The session hands every blocking
// server call to it so FrameTick never waits on the network.
type Dispatcher func(fn func())

// host is swapped atomically so the engine's memory reads never take the
// session lock.
type host struct {
	memory emucore.MemoryInspector
	runner emucore.GameRunner
}
