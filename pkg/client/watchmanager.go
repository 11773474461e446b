package client

import (
	"github.com/cs706/saber/pkg/saber"
)

// WatchManager holds the client's live watches split by kind. Like the
// server's tables the entries are one-shot: Trigger removes what it returns.
// All methods run on the client's send loop, so there is no lock.
type WatchManager struct {
	autoReset      bool
	defaultWatcher saber.Watcher

	dataWatches  map[string][]saber.Watcher
	existWatches map[string][]saber.Watcher
	childWatches map[string][]saber.Watcher
}

func NewWatchManager(autoReset bool) *WatchManager {
	return &WatchManager{
		autoReset:    autoReset,
		dataWatches:  map[string][]saber.Watcher{},
		existWatches: map[string][]saber.Watcher{},
		childWatches: map[string][]saber.Watcher{},
	}
}

func (m *WatchManager) SetDefaultWatcher(w saber.Watcher) {
	m.defaultWatcher = w
}

func (m *WatchManager) AddDataWatch(path string, w saber.Watcher) {
	addWatch(m.dataWatches, path, w)
}

func (m *WatchManager) AddExistWatch(path string, w saber.Watcher) {
	addWatch(m.existWatches, path, w)
}

func (m *WatchManager) AddChildWatch(path string, w saber.Watcher) {
	addWatch(m.childWatches, path, w)
}

func addWatch(table map[string][]saber.Watcher, path string, w saber.Watcher) {
	for _, have := range table[path] {
		if have == w {
			return
		}
	}
	table[path] = append(table[path], w)
}

// Trigger returns the watchers an event fires and removes them from the
// tables. A pure state change (type NONE) goes to the default watcher.
func (m *WatchManager) Trigger(event saber.WatchedEvent) []saber.Watcher {
	if event.Type == saber.EventNone {
		if m.defaultWatcher == nil {
			return nil
		}
		return []saber.Watcher{m.defaultWatcher}
	}

	var fired []saber.Watcher
	take := func(table map[string][]saber.Watcher) {
		fired = append(fired, table[event.Path]...)
		delete(table, event.Path)
	}
	switch event.Type {
	case saber.EventNodeCreated, saber.EventNodeDataChanged:
		take(m.dataWatches)
		take(m.existWatches)
	case saber.EventNodeDeleted:
		take(m.dataWatches)
		take(m.existWatches)
		take(m.childWatches)
	case saber.EventNodeChildrenChanged:
		take(m.childWatches)
	}
	return fired
}

// AutoReset reports whether watches survive a reconnect.
func (m *WatchManager) AutoReset() bool {
	return m.autoReset
}

// Paths returns the still-live watch paths per kind, the payload of the
// SET_WATCHES request sent after a reconnect.
func (m *WatchManager) Paths() (data, exist, child []string) {
	return tablePaths(m.dataWatches), tablePaths(m.existWatches), tablePaths(m.childWatches)
}

func tablePaths(table map[string][]saber.Watcher) []string {
	out := make([]string, 0, len(table))
	for path := range table {
		out = append(out, path)
	}
	return out
}

// Empty reports whether no path watches are registered.
func (m *WatchManager) Empty() bool {
	return len(m.dataWatches) == 0 && len(m.existWatches) == 0 && len(m.childWatches) == 0
}

// DropAll clears every path watch and returns the deduplicated watchers, so
// each can be told once that its watches died with the connection.
func (m *WatchManager) DropAll() []saber.Watcher {
	var dropped []saber.Watcher
	seen := map[saber.Watcher]struct{}{}
	for _, table := range []map[string][]saber.Watcher{m.dataWatches, m.existWatches, m.childWatches} {
		for path, ws := range table {
			for _, w := range ws {
				if _, ok := seen[w]; !ok {
					seen[w] = struct{}{}
					dropped = append(dropped, w)
				}
			}
			delete(table, path)
		}
	}
	return dropped
}
