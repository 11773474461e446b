// Package client implements the session engine: a callback-based client that
// keeps one connection to the current master, preserves request/response FIFO
// ordering across transparent reconnects, and re-places watches after a
// reconnect. All connection state lives on a single send loop; callbacks and
// watcher notifications run on a separate event loop.
package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cs706/saber/pkg/logging"
	"github.com/cs706/saber/pkg/messager"
	"github.com/cs706/saber/pkg/paths"
	"github.com/cs706/saber/pkg/runloop"
	"github.com/cs706/saber/pkg/saber"
)

// State is the connection phase of the session engine.
type State int32

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Connected
	Redirecting
	// Expired and Closed are terminal.
	Expired
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Handshaking:
		return "HANDSHAKING"
	case Connected:
		return "CONNECTED"
	case Redirecting:
		return "REDIRECTING"
	case Expired:
		return "EXPIRED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var ErrClientClosed = errors.New("client: closed")

const (
	dialTimeout    = 3 * time.Second
	retryDelay     = 10 * time.Millisecond
	reconnectDelay = time.Millisecond
)

type Client struct {
	opts *Options
	log  *logrus.Entry
	sm   ServerManager
	wm   *WatchManager

	ioLoop *runloop.Loop
	evLoop *runloop.Loop

	started atomic.Bool
	closed  atomic.Bool
	state   atomic.Int32
	session atomic.Uint64

	// Everything below is owned by the send loop.
	timeoutMs uint32
	msgr      *messager.Messager
	connGen   int
	queues    map[saber.MessageType]*requestQueue
	// outgoing holds every sent request in send order for replay after a
	// reconnect. Responses pop the front; a type mismatch there means the
	// stream is corrupt.
	outgoing  []*saber.Message
	lastRecv  time.Time
	lossNoted bool
}

// New builds a client. The returned client is idle until Start.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	sm := opts.ServerManager
	if sm == nil {
		sm = newRoundRobinManager()
	}
	if err := sm.Init(opts.serverList()); err != nil {
		return nil, err
	}
	wm := NewWatchManager(opts.AutoWatchReset)
	wm.SetDefaultWatcher(opts.DefaultWatcher)

	c := &Client{
		opts:      opts,
		log:       logging.NewLogger("client"),
		sm:        sm,
		wm:        wm,
		ioLoop:    runloop.New("client-io"),
		evLoop:    runloop.New("client-event"),
		timeoutMs: opts.SessionTimeoutMs,
		queues:    map[saber.MessageType]*requestQueue{},
	}
	for _, t := range opTypes {
		c.queues[t] = &requestQueue{}
	}
	c.setState(Disconnected)
	return c, nil
}

// Start begins connecting. It is idempotent: a second call on a running
// client is a no-op, and a stopped client cannot be restarted.
func (c *Client) Start() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		c.log.Warn("client has started, don't call it again")
		return nil
	}
	c.setState(Connecting)
	c.ioLoop.RunInLoop(func() {
		c.lastRecv = time.Now()
		c.connectNext()
	})
	return nil
}

// Stop tears the session down: a CLOSE is sent best-effort, every pending
// request fails with CLIENT_CLOSED, and both loops drain. Idempotent. Must
// not be called from a callback or watcher.
func (c *Client) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		c.log.Warn("client has stopped, don't call it again")
		return
	}
	c.closed.Store(true)
	done := make(chan struct{})
	c.ioLoop.RunInLoop(func() {
		if c.msgr != nil {
			_ = c.msgr.Send(&saber.Message{Type: saber.MTClose})
			_ = c.msgr.Close()
			c.msgr = nil
			c.connGen++
		}
		c.setState(Closed)
		c.failAllPending(saber.CodeClientClosed)
		close(done)
	})
	<-done
	c.ioLoop.Close()
	c.evLoop.Close()
}

// State returns the current connection phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// SessionID returns the server-assigned session id, 0 before the first
// handshake completes.
func (c *Client) SessionID() uint64 {
	return c.session.Load()
}

// ---------------------------------------------------------------------------
// Operations. Each returns immediately; completion arrives on the event loop.

func (c *Client) Create(req *saber.CreateRequest, ctx any, cb CreateCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	c.submit(saber.MTCreate, &r, &pendingRequest{path: r.Path, ctx: ctx, cb: cb})
}

func (c *Client) Delete(req *saber.DeleteRequest, ctx any, cb DeleteCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	c.submit(saber.MTDelete, &r, &pendingRequest{path: r.Path, ctx: ctx, cb: cb})
}

func (c *Client) Exists(req *saber.ExistsRequest, watcher saber.Watcher, ctx any, cb ExistsCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	r.Watch = watcher != nil
	c.submit(saber.MTExists, &r, &pendingRequest{path: r.Path, ctx: ctx, watcher: watcher, cb: cb})
}

func (c *Client) GetData(req *saber.GetDataRequest, watcher saber.Watcher, ctx any, cb GetDataCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	r.Watch = watcher != nil
	c.submit(saber.MTGetData, &r, &pendingRequest{path: r.Path, ctx: ctx, watcher: watcher, cb: cb})
}

func (c *Client) SetData(req *saber.SetDataRequest, ctx any, cb SetDataCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	c.submit(saber.MTSetData, &r, &pendingRequest{path: r.Path, ctx: ctx, cb: cb})
}

func (c *Client) GetACL(req *saber.GetACLRequest, ctx any, cb GetACLCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	c.submit(saber.MTGetACL, &r, &pendingRequest{path: r.Path, ctx: ctx, cb: cb})
}

func (c *Client) SetACL(req *saber.SetACLRequest, ctx any, cb SetACLCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	c.submit(saber.MTSetACL, &r, &pendingRequest{path: r.Path, ctx: ctx, cb: cb})
}

func (c *Client) GetChildren(req *saber.GetChildrenRequest, watcher saber.Watcher, ctx any, cb GetChildrenCallback) {
	r := *req
	r.Path = c.chrootPath(req.Path)
	r.Watch = watcher != nil
	c.submit(saber.MTGetChildren, &r, &pendingRequest{path: r.Path, ctx: ctx, watcher: watcher, cb: cb})
}

// submit records the request on its per-op FIFO and the outgoing replay
// buffer, then sends it if a connection is up. If not, the replay on the next
// reconnect delivers it.
func (c *Client) submit(t saber.MessageType, payload any, pr *pendingRequest) {
	msg, err := saber.NewMessage(t, payload)
	if err != nil {
		c.log.WithError(err).Error("encoding request")
		c.fail(t, pr, saber.CodeMarshallingError)
		return
	}
	msg.ExtraData = []byte(c.opts.Root)
	c.ioLoop.RunInLoop(func() {
		switch c.State() {
		case Expired:
			c.fail(t, pr, saber.CodeSessionExpired)
			return
		case Closed:
			c.fail(t, pr, saber.CodeClientClosed)
			return
		}
		if !c.started.Load() {
			c.fail(t, pr, saber.CodeClientClosed)
			return
		}
		c.queues[t].push(pr)
		c.outgoing = append(c.outgoing, msg)
		if c.msgr != nil {
			if err := c.msgr.Send(msg); err != nil {
				c.log.WithError(err).Debug("send failed")
				c.dropConnection()
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Connection lifecycle. Everything here runs on the send loop.

func (c *Client) connectNext() {
	if !c.started.Load() {
		return
	}
	addr := c.sm.GetNext()
	c.setState(Connecting)
	c.log.WithField("server", addr).Debug("dialing")
	go func() {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		c.ioLoop.RunInLoop(func() {
			if err != nil {
				c.onConnectFailure(addr, err)
				return
			}
			c.onConnection(conn)
		})
	}()
}

func (c *Client) onConnectFailure(addr string, err error) {
	c.log.WithError(err).WithField("server", addr).Debug("connect failed")
	if !c.started.Load() {
		return
	}
	c.checkConnectionLoss()
	time.AfterFunc(retryDelay, func() {
		c.ioLoop.RunInLoop(c.connectNext)
	})
}

// onConnection sends the handshake, the watch-reset request when one is due,
// and then replays the whole outgoing buffer in order.
func (c *Client) onConnection(netConn net.Conn) {
	if !c.started.Load() {
		_ = netConn.Close()
		return
	}
	switch c.State() {
	case Expired, Closed:
		_ = netConn.Close()
		return
	}

	c.connGen++
	gen := c.connGen
	c.msgr = messager.New(netConn)
	c.setState(Handshaking)
	c.sm.OnConnection()
	c.log.WithField("server", netConn.RemoteAddr().String()).Debug("connected")

	connectMsg, err := saber.NewMessage(saber.MTConnect, &saber.ConnectRequest{
		SessionID: c.session.Load(),
		TimeoutMs: c.opts.SessionTimeoutMs,
	})
	if err != nil {
		c.log.WithError(err).Error("encoding handshake")
		c.dropConnection()
		return
	}
	connectMsg.ExtraData = []byte(c.opts.Root)

	batch := []*saber.Message{connectMsg}
	if c.wm.AutoReset() && !c.wm.Empty() {
		data, exist, child := c.wm.Paths()
		if setWatches, err := saber.NewMessage(saber.MTSetWatches, &saber.SetWatchesRequest{
			DataWatches:  data,
			ExistWatches: exist,
			ChildWatches: child,
		}); err == nil {
			batch = append(batch, setWatches)
		}
	}
	batch = append(batch, c.outgoing...)

	go c.readFrom(gen, c.msgr)
	if err := c.msgr.SendBatch(batch); err != nil {
		c.log.WithError(err).Debug("handshake send failed")
		c.dropConnection()
	}
}

// readFrom pumps one connection's frames into the send loop. The generation
// tag keeps a superseded connection's frames from touching current state.
func (c *Client) readFrom(gen int, m *messager.Messager) {
	err := m.ReadLoop(func(msg *saber.Message) bool {
		c.ioLoop.RunInLoop(func() {
			c.handleMessage(gen, msg)
		})
		return true
	})
	if err != nil {
		c.log.WithError(err).Debug("read loop ended")
	}
	c.ioLoop.RunInLoop(func() {
		if gen == c.connGen {
			c.dropConnection()
		}
	})
}

// dropConnection closes the current connection (if any) and, unless the
// client is done for, schedules a reconnect. Requests already sent stay in
// the outgoing buffer and replay on the next connection.
func (c *Client) dropConnection() {
	if c.msgr != nil {
		_ = c.msgr.Close()
		c.msgr = nil
	}
	c.connGen++
	if !c.started.Load() {
		return
	}
	switch c.State() {
	case Expired, Closed:
		return
	}

	c.setState(Disconnected)
	c.fireStateEvent(saber.StateDisconnected)
	if !c.wm.AutoReset() {
		if dropped := c.wm.DropAll(); len(dropped) > 0 {
			event := saber.WatchedEvent{Type: saber.EventNone, State: saber.StateDisconnected}
			c.evLoop.RunInLoop(func() {
				for _, w := range dropped {
					w.Process(event)
				}
			})
		}
	}
	c.checkConnectionLoss()
	time.AfterFunc(reconnectDelay, func() {
		c.ioLoop.RunInLoop(c.connectNext)
	})
}

// checkConnectionLoss fails pending requests with CONNECTION_LOSS once the
// whole session timeout has passed without hearing from any server. Until
// then pending requests ride out reconnect attempts.
func (c *Client) checkConnectionLoss() {
	if c.lossNoted {
		return
	}
	if time.Since(c.lastRecv) <= time.Duration(c.timeoutMs)*time.Millisecond {
		return
	}
	c.log.Warn("no server heard from within the session timeout")
	c.lossNoted = true
	c.failAllPending(saber.CodeConnectionLoss)
}

// ---------------------------------------------------------------------------
// Inbound dispatch.

func (c *Client) handleMessage(gen int, msg *saber.Message) {
	if gen != c.connGen {
		return
	}
	c.lastRecv = time.Now()

	switch msg.Type {
	case saber.MTNotification:
		var event saber.WatchedEvent
		if err := saber.Unmarshal(msg.Data, &event); err != nil {
			c.log.WithError(err).Error("decoding notification")
			c.dropConnection()
			return
		}
		c.triggerWatchers(event)
	case saber.MTConnect:
		c.handleConnectResponse(msg)
	case saber.MTMaster:
		var m saber.Master
		if err := saber.Unmarshal(msg.Data, &m); err != nil {
			c.log.WithError(err).Error("decoding master hint")
			c.dropConnection()
			return
		}
		addr := net.JoinHostPort(m.Host, strconv.Itoa(int(m.Port)))
		c.log.WithField("master", addr).Info("redirected to master")
		c.sm.SetMaster(addr)
		c.setState(Redirecting)
		// The outgoing buffer is left alone: the hinted master must see
		// every un-answered request again.
		c.dropConnection()
	case saber.MTPing:
		// Keepalive; lastRecv is already refreshed.
	default:
		c.handleResponse(msg)
	}
}

func (c *Client) handleConnectResponse(msg *saber.Message) {
	var resp saber.ConnectResponse
	if err := saber.Unmarshal(msg.Data, &resp); err != nil {
		c.log.WithError(err).Error("decoding handshake response")
		c.dropConnection()
		return
	}
	if resp.SessionID == 0 {
		c.log.Warn("session expired by server")
		c.setState(Expired)
		c.session.Store(0)
		c.failAllPending(saber.CodeSessionExpired)
		c.fireStateEvent(saber.StateExpired)
		c.dropConnection()
		return
	}

	c.session.Store(resp.SessionID)
	c.timeoutMs = resp.TimeoutMs
	c.lossNoted = false
	c.setState(Connected)
	c.log.WithFields(logrus.Fields{
		"session":    fmt.Sprintf("%#x", resp.SessionID),
		"timeout_ms": resp.TimeoutMs,
	}).Info("session established")
	c.fireStateEvent(saber.StateConnected)
	c.schedulePing()
}

func (c *Client) schedulePing() {
	interval := time.Duration(c.timeoutMs/3) * time.Millisecond
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	gen := c.connGen
	time.AfterFunc(interval, func() {
		c.ioLoop.RunInLoop(func() {
			c.pingTick(gen)
		})
	})
}

func (c *Client) pingTick(gen int) {
	if gen != c.connGen || c.State() != Connected {
		return
	}
	if time.Since(c.lastRecv) > time.Duration(c.timeoutMs)*time.Millisecond {
		c.log.Warn("nothing heard within the session timeout")
		c.dropConnection()
		return
	}
	if err := c.msgr.Send(&saber.Message{Type: saber.MTPing}); err != nil {
		c.dropConnection()
		return
	}
	c.schedulePing()
}

// handleResponse pops the per-op FIFO and the outgoing buffer for one typed
// response. Any mismatch between the two and the response is stream
// corruption: the connection is closed and replay recovers.
func (c *Client) handleResponse(msg *saber.Message) {
	q, ok := c.queues[msg.Type]
	if !ok {
		c.log.WithField("type", msg.Type.String()).Error("unknown response type")
		c.dropConnection()
		return
	}
	if len(c.outgoing) == 0 || c.outgoing[0].Type != msg.Type {
		c.log.WithField("type", msg.Type.String()).Error("response does not match outgoing queue")
		c.dropConnection()
		return
	}
	if q.len() == 0 {
		c.log.WithField("type", msg.Type.String()).Error("response with no pending request")
		c.dropConnection()
		return
	}
	req := q.items[0]
	userPath := c.stripRoot(req.path)

	switch msg.Type {
	case saber.MTCreate:
		var resp saber.CreateResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		// Sequential creates come back with the suffix appended, so the
		// recorded path must be a prefix of the response path.
		if resp.Code == saber.CodeOK && !strings.HasPrefix(resp.Path, req.path) {
			c.inconsistent(req.path, resp.Path)
			return
		}
		resp.Path = c.stripRoot(resp.Path)
		cb := req.cb.(CreateCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTDelete:
		var resp saber.DeleteResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		resp.Path = userPath
		cb := req.cb.(DeleteCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTExists:
		var resp saber.ExistsResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		if req.watcher != nil {
			// A miss still registers: the watcher fires when the node
			// appears.
			if resp.Code == saber.CodeOK {
				c.wm.AddDataWatch(req.path, req.watcher)
			} else {
				c.wm.AddExistWatch(req.path, req.watcher)
			}
		}
		resp.Path = userPath
		cb := req.cb.(ExistsCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTGetData:
		var resp saber.GetDataResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		if req.watcher != nil && resp.Code == saber.CodeOK {
			c.wm.AddDataWatch(req.path, req.watcher)
		}
		resp.Path = userPath
		cb := req.cb.(GetDataCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTSetData:
		var resp saber.SetDataResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		resp.Path = userPath
		cb := req.cb.(SetDataCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTGetACL:
		var resp saber.GetACLResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		resp.Path = userPath
		cb := req.cb.(GetACLCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTSetACL:
		var resp saber.SetACLResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		resp.Path = userPath
		cb := req.cb.(SetACLCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	case saber.MTGetChildren:
		var resp saber.GetChildrenResponse
		if err := saber.Unmarshal(msg.Data, &resp); err != nil {
			c.dropConnection()
			return
		}
		if resp.Path != req.path {
			c.inconsistent(req.path, resp.Path)
			return
		}
		if req.watcher != nil && resp.Code == saber.CodeOK {
			c.wm.AddChildWatch(req.path, req.watcher)
		}
		resp.Path = userPath
		cb := req.cb.(GetChildrenCallback)
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, &resp) })
	}
	// Only a response that decoded and matched consumes the two heads; on a
	// mismatch they stay queued for the replay after the reconnect.
	c.outgoing[0] = nil
	c.outgoing = c.outgoing[1:]
	q.pop()
}

func (c *Client) inconsistent(want, got string) {
	c.log.WithFields(logrus.Fields{"want": want, "got": got}).
		Error("response path does not match queue head")
	c.dropConnection()
}

// ---------------------------------------------------------------------------
// Watch and failure dispatch.

// triggerWatchers resolves an event against the watch tables (full paths)
// and delivers it with the chroot stripped.
func (c *Client) triggerWatchers(event saber.WatchedEvent) {
	fired := c.wm.Trigger(event)
	if len(fired) == 0 {
		return
	}
	user := event
	user.Path = c.stripRoot(event.Path)
	c.evLoop.RunInLoop(func() {
		for _, w := range fired {
			w.Process(user)
		}
	})
}

func (c *Client) fireStateEvent(state saber.SessionState) {
	c.triggerWatchers(saber.WatchedEvent{Type: saber.EventNone, State: state})
}

// failAllPending empties every per-op queue and the outgoing buffer, failing
// each request with the given code.
func (c *Client) failAllPending(code saber.Code) {
	for _, t := range opTypes {
		q := c.queues[t]
		for req := q.pop(); req != nil; req = q.pop() {
			c.fail(t, req, code)
		}
	}
	c.outgoing = nil
}

func (c *Client) fail(t saber.MessageType, req *pendingRequest, code saber.Code) {
	userPath := c.stripRoot(req.path)
	switch t {
	case saber.MTCreate:
		cb := req.cb.(CreateCallback)
		resp := &saber.CreateResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTDelete:
		cb := req.cb.(DeleteCallback)
		resp := &saber.DeleteResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTExists:
		cb := req.cb.(ExistsCallback)
		resp := &saber.ExistsResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTGetData:
		cb := req.cb.(GetDataCallback)
		resp := &saber.GetDataResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTSetData:
		cb := req.cb.(SetDataCallback)
		resp := &saber.SetDataResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTGetACL:
		cb := req.cb.(GetACLCallback)
		resp := &saber.GetACLResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTSetACL:
		cb := req.cb.(SetACLCallback)
		resp := &saber.SetACLResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	case saber.MTGetChildren:
		cb := req.cb.(GetChildrenCallback)
		resp := &saber.GetChildrenResponse{Code: code, Path: userPath}
		c.evLoop.RunInLoop(func() { cb(userPath, req.ctx, resp) })
	}
}

// ---------------------------------------------------------------------------
// Chroot handling.

func (c *Client) chrootPath(p string) string {
	if c.opts.Root == "" {
		return p
	}
	if p == paths.Root {
		return c.opts.Root
	}
	return c.opts.Root + p
}

func (c *Client) stripRoot(p string) string {
	if c.opts.Root == "" || p == "" {
		return p
	}
	if p == c.opts.Root {
		return paths.Root
	}
	return strings.TrimPrefix(p, c.opts.Root)
}
