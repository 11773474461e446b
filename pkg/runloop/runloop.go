// Package runloop provides a single-goroutine task loop. All state owned by a
// loop is only touched by functions submitted to it, which removes the need
// for locks on that state. Submissions from one goroutine run in submission
// order.
package runloop

import (
	"sync"

	"github.com/cs706/saber/pkg/logging"
)

type Loop struct {
	name  string
	tasks chan func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New starts a loop draining submitted functions on a dedicated goroutine.
func New(name string) *Loop {
	l := &Loop{
		name:  name,
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	log := logging.NewLogger("runloop").WithField("loop", l.name)
	defer close(l.done)
	for f := range l.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("task panicked: %v", r)
				}
			}()
			f()
		}()
	}
}

// RunInLoop submits f for execution on the loop goroutine. Submissions after
// Close are dropped.
func (l *Loop) RunInLoop(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.tasks <- f
}

// Close stops the loop after draining already-submitted tasks and waits for
// the loop goroutine to exit. Close is idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.tasks)
	}
	l.mu.Unlock()
	<-l.done
}
