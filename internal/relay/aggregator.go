package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// DefaultAlbumDebounce is the quiescence window before a buffered album is
// flushed. Telegram delivers album items as separate updates in a burst;
// the timer is reset on every new arrival for the same group.
const DefaultAlbumDebounce = 1000 * time.Millisecond

// Aggregator reassembles albums. Buffers are keyed per (group id, target
// chat, target topic) — not per raw group id — because one source album may
// fan out to several routes independently. A buffer is created on the first
// item of a new key and deleted when its debounce timer fires, handing the
// collected messages to the sink as one grouped unit.
type Aggregator struct {
	mu       sync.Mutex
	groups   map[string]*pendingGroup
	debounce time.Duration
	sink     func(*SendUnit)

	// afterFunc is swappable in tests to drive flush timing.
	afterFunc func(time.Duration, func()) *time.Timer
}

type pendingGroup struct {
	messages []Message
	route    config.Route
	timer    *time.Timer
}

// NewAggregator creates an Aggregator flushing into sink after debounce of
// quiescence. A zero debounce selects DefaultAlbumDebounce.
func NewAggregator(debounce time.Duration, sink func(*SendUnit)) *Aggregator {
	if debounce <= 0 {
		debounce = DefaultAlbumDebounce
	}
	return &Aggregator{
		groups:    make(map[string]*pendingGroup),
		debounce:  debounce,
		sink:      sink,
		afterFunc: time.AfterFunc,
	}
}

// Add buffers one album item for the given route. The debounce timer for
// the group's key is (re)armed; when it fires with no new arrivals the
// whole buffer is flushed in arrival order.
func (a *Aggregator) Add(msg Message, route config.Route) {
	key := msg.GroupID + "|" + route.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[key]
	if !ok {
		g = &pendingGroup{route: route}
		a.groups[key] = g
		slog.Debug("album buffer opened", "group_id", msg.GroupID, "target", route.Key())
	} else {
		g.timer.Stop()
	}
	g.messages = append(g.messages, msg)
	g.timer = a.afterFunc(a.debounce, func() { a.flush(key, msg.GroupID) })
}

// Pending returns the number of open album buffers.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

func (a *Aggregator) flush(key, groupID string) {
	a.mu.Lock()
	g, ok := a.groups[key]
	if ok {
		delete(a.groups, key)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	slog.Debug("album flushed", "group_id", groupID, "items", len(g.messages), "target", g.route.Key())
	a.sink(NewGroupedUnit(groupID, g.messages, g.route))
}
