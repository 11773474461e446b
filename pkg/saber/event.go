package saber

// EventType classifies a watch notification.
type EventType int32

const (
	EventNone EventType = iota
	EventNodeCreated
	EventNodeDeleted
	EventNodeDataChanged
	EventNodeChildrenChanged
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "NONE"
	case EventNodeCreated:
		return "NODE_CREATED"
	case EventNodeDeleted:
		return "NODE_DELETED"
	case EventNodeDataChanged:
		return "NODE_DATA_CHANGED"
	case EventNodeChildrenChanged:
		return "NODE_CHILDREN_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// SessionState is the client's view of its session, delivered to the default
// watcher on every transition.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnected
	StateAuthFailed
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateAuthFailed:
		return "AUTH_FAILED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// WatchedEvent is delivered to watchers when a watched path changes or the
// session state transitions. Path is empty for pure state events.
type WatchedEvent struct {
	Type  EventType    `cbor:"1,keyasint"`
	State SessionState `cbor:"2,keyasint"`
	Path  string       `cbor:"3,keyasint,omitempty"`
}

// Watcher receives watch notifications. Process runs on the client's event
// loop; implementations must not block it.
type Watcher interface {
	Process(event WatchedEvent)
}

// NewWatcherFunc adapts a plain function to the Watcher interface. The
// returned value is comparable, which the watch tables rely on to
// deduplicate registrations.
func NewWatcherFunc(f func(event WatchedEvent)) Watcher {
	return &watcherFunc{f: f}
}

type watcherFunc struct {
	f func(event WatchedEvent)
}

func (w *watcherFunc) Process(event WatchedEvent) {
	w.f(event)
}
