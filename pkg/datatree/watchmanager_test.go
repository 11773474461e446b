package datatree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cs706/saber/pkg/saber"
)

// recordingNotifier is a watch owner that remembers everything it is told.
type recordingNotifier struct {
	id      string
	session uint64

	mu     sync.Mutex
	events []saber.WatchedEvent
}

func (n *recordingNotifier) ConnID() string    { return n.id }
func (n *recordingNotifier) SessionID() uint64 { return n.session }

func (n *recordingNotifier) Notify(event saber.WatchedEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []saber.WatchedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]saber.WatchedEvent(nil), n.events...)
}

func TestWatchManager_TriggerRemovesAndPreservesOrder(t *testing.T) {
	m := NewWatchManager()
	first := &recordingNotifier{id: "a", session: 1}
	second := &recordingNotifier{id: "b", session: 2}
	m.Add("/x", first)
	m.Add("/x", second)

	fired := m.Trigger("/x")
	assert.Equal(t, []Notifier{Notifier(first), Notifier(second)}, fired)
	assert.Zero(t, m.Count("/x"))

	// One-shot: the same path fires nothing the second time.
	assert.Empty(t, m.Trigger("/x"))
}

func TestWatchManager_AddIsIdempotentPerConn(t *testing.T) {
	m := NewWatchManager()
	n := &recordingNotifier{id: "a", session: 1}
	m.Add("/x", n)
	m.Add("/x", n)
	assert.Equal(t, 1, m.Count("/x"))
}

func TestWatchManager_RemoveSession(t *testing.T) {
	m := NewWatchManager()
	mine := &recordingNotifier{id: "a", session: 42}
	other := &recordingNotifier{id: "b", session: 7}
	m.Add("/x", mine)
	m.Add("/x", other)
	m.Add("/y", mine)

	m.RemoveSession(42)
	assert.Equal(t, 1, m.Count("/x"))
	assert.Zero(t, m.Count("/y"))
	assert.Equal(t, []Notifier{Notifier(other)}, m.Trigger("/x"))
}

func TestWatchManager_RemoveConn(t *testing.T) {
	m := NewWatchManager()
	a := &recordingNotifier{id: "a", session: 1}
	b := &recordingNotifier{id: "b", session: 1}
	m.Add("/x", a)
	m.Add("/x", b)

	m.RemoveConn("a")
	assert.Equal(t, 1, m.Count("/x"))
	assert.Equal(t, []Notifier{Notifier(b)}, m.Trigger("/x"))
}
