package datatree

import (
	"github.com/cs706/saber/pkg/saber"
)

// Notifier is the server-side handle of a watch owner: one client connection
// and the session behind it. Notify must not block; connections buffer their
// outbound queue.
type Notifier interface {
	ConnID() string
	SessionID() uint64
	Notify(event saber.WatchedEvent)
}

// WatchManager keeps per-path watch registrations. Watches are one-shot and
// edge-triggered: Trigger removes every entry it returns, and a watch
// registered while an event is being delivered does not see that event
// because callers snapshot the fired set under the tree lock.
//
// WatchManager itself is not locked; the owning tree's lock covers it.
type WatchManager struct {
	// Insertion order per path is preserved so a single event fires its
	// watchers in registration order.
	watches map[string][]Notifier
}

func NewWatchManager() *WatchManager {
	return &WatchManager{watches: map[string][]Notifier{}}
}

// Add registers a watch. Re-registering the same connection on the same path
// is a no-op, matching the at-most-once firing contract.
func (m *WatchManager) Add(path string, n Notifier) {
	for _, w := range m.watches[path] {
		if w.ConnID() == n.ConnID() {
			return
		}
	}
	m.watches[path] = append(m.watches[path], n)
}

// Trigger removes and returns every watch on path, in insertion order. The
// caller delivers the event after releasing the tree lock.
func (m *WatchManager) Trigger(path string) []Notifier {
	fired := m.watches[path]
	if len(fired) == 0 {
		return nil
	}
	delete(m.watches, path)
	return fired
}

// Drop removes the watches on path without firing them.
func (m *WatchManager) Drop(path string) {
	delete(m.watches, path)
}

// RemoveSession drops every watch owned by the given session.
func (m *WatchManager) RemoveSession(sessionID uint64) {
	m.removeIf(func(n Notifier) bool { return n.SessionID() == sessionID })
}

// RemoveConn drops every watch registered through the given connection.
func (m *WatchManager) RemoveConn(connID string) {
	m.removeIf(func(n Notifier) bool { return n.ConnID() == connID })
}

func (m *WatchManager) removeIf(match func(Notifier) bool) {
	for path, ns := range m.watches {
		kept := ns[:0]
		for _, n := range ns {
			if !match(n) {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			delete(m.watches, path)
		} else {
			m.watches[path] = kept
		}
	}
}

// Count returns the number of watches on path.
func (m *WatchManager) Count(path string) int {
	return len(m.watches[path])
}
