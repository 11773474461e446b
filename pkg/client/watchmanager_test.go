package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs706/saber/pkg/saber"
)

// recordingWatcher remembers the events delivered to it.
type recordingWatcher struct {
	mu     sync.Mutex
	events []saber.WatchedEvent
}

func (w *recordingWatcher) Process(event saber.WatchedEvent) {
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
}

func (w *recordingWatcher) Events() []saber.WatchedEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]saber.WatchedEvent(nil), w.events...)
}

func TestClientWatchManager_TriggerUnions(t *testing.T) {
	tests := []struct {
		name          string
		eventType     saber.EventType
		expectedFired []string // which registrations fire: data, exist, child
	}{
		{
			name:          "created fires data and exist",
			eventType:     saber.EventNodeCreated,
			expectedFired: []string{"data", "exist"},
		},
		{
			name:          "data changed fires data and exist",
			eventType:     saber.EventNodeDataChanged,
			expectedFired: []string{"data", "exist"},
		},
		{
			name:          "deleted fires all three",
			eventType:     saber.EventNodeDeleted,
			expectedFired: []string{"data", "exist", "child"},
		},
		{
			name:          "children changed fires child only",
			eventType:     saber.EventNodeChildrenChanged,
			expectedFired: []string{"child"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := NewWatchManager(true)
			watchers := map[string]*recordingWatcher{
				"data":  {},
				"exist": {},
				"child": {},
			}
			m.AddDataWatch("/p", watchers["data"])
			m.AddExistWatch("/p", watchers["exist"])
			m.AddChildWatch("/p", watchers["child"])

			fired := m.Trigger(saber.WatchedEvent{Type: test.eventType, Path: "/p"})
			require.Len(t, fired, len(test.expectedFired))
			for _, kind := range test.expectedFired {
				assert.Contains(t, fired, saber.Watcher(watchers[kind]), kind)
			}

			// One-shot: the fired tables are now empty for that path.
			assert.Empty(t, m.Trigger(saber.WatchedEvent{Type: test.eventType, Path: "/p"}))
		})
	}
}

func TestClientWatchManager_StateChangeGoesToDefaultWatcher(t *testing.T) {
	m := NewWatchManager(true)
	def := &recordingWatcher{}
	m.SetDefaultWatcher(def)
	other := &recordingWatcher{}
	m.AddDataWatch("/p", other)

	fired := m.Trigger(saber.WatchedEvent{Type: saber.EventNone, State: saber.StateConnected})
	assert.Equal(t, []saber.Watcher{def}, fired)
	// Path watches are untouched by state changes.
	assert.False(t, m.Empty())
}

func TestClientWatchManager_PathsForReset(t *testing.T) {
	m := NewWatchManager(true)
	m.AddDataWatch("/d", &recordingWatcher{})
	m.AddExistWatch("/e", &recordingWatcher{})
	m.AddChildWatch("/c", &recordingWatcher{})

	data, exist, child := m.Paths()
	assert.Equal(t, []string{"/d"}, data)
	assert.Equal(t, []string{"/e"}, exist)
	assert.Equal(t, []string{"/c"}, child)
}

func TestClientWatchManager_DropAllDeduplicates(t *testing.T) {
	m := NewWatchManager(false)
	shared := &recordingWatcher{}
	m.AddDataWatch("/a", shared)
	m.AddChildWatch("/b", shared)
	m.AddExistWatch("/c", &recordingWatcher{})

	dropped := m.DropAll()
	assert.Len(t, dropped, 2)
	assert.True(t, m.Empty())
}

func TestClientWatchManager_AddSameWatcherTwice(t *testing.T) {
	m := NewWatchManager(true)
	w := &recordingWatcher{}
	m.AddDataWatch("/p", w)
	m.AddDataWatch("/p", w)

	fired := m.Trigger(saber.WatchedEvent{Type: saber.EventNodeDataChanged, Path: "/p"})
	assert.Len(t, fired, 1)
}
