package client

import (
	"fmt"
	"strings"

	"github.com/cs706/saber/pkg/paths"
	"github.com/cs706/saber/pkg/saber"
)

const defaultSessionTimeoutMs = 10000

// Options configures a client.
type Options struct {
	// Servers is the comma-separated host:port list of candidate servers.
	// Required.
	Servers string

	// Root is a path prefix prepended to every path this client uses, so
	// an application can live in its own subtree. Empty means no prefix.
	Root string

	// SessionTimeoutMs is the session timeout requested at connect; the
	// server may clamp it.
	SessionTimeoutMs uint32

	// AutoWatchReset re-registers live watches on the new master after a
	// reconnect. When false, watches are dropped on reconnect and each
	// affected watcher receives a single DISCONNECTED event.
	AutoWatchReset bool

	// ServerManager picks which endpoint to dial. Nil selects the
	// built-in round-robin manager.
	ServerManager ServerManager

	// DefaultWatcher receives session-state events.
	DefaultWatcher saber.Watcher
}

// NewOptions returns the defaults: 10 s session timeout and watch reset on.
func NewOptions() *Options {
	return &Options{
		SessionTimeoutMs: defaultSessionTimeoutMs,
		AutoWatchReset:   true,
	}
}

func (o *Options) validate() error {
	if strings.TrimSpace(o.Servers) == "" {
		return fmt.Errorf("options: no servers given")
	}
	if o.Root != "" {
		if err := paths.Validate(o.Root); err != nil {
			return fmt.Errorf("options: bad root %q: %w", o.Root, err)
		}
		if o.Root == paths.Root {
			return fmt.Errorf("options: root %q is the tree root; leave it empty instead", o.Root)
		}
	}
	if o.SessionTimeoutMs == 0 {
		o.SessionTimeoutMs = defaultSessionTimeoutMs
	}
	return nil
}

func (o *Options) serverList() []string {
	var out []string
	for _, s := range strings.Split(o.Servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
