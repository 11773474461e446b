package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cs706/saber/pkg/datatree"
	"github.com/cs706/saber/pkg/messager"
	"github.com/cs706/saber/pkg/paths"
	"github.com/cs706/saber/pkg/saber"
)

// proposalTimeout bounds how long a connection waits for the consensus layer
// to commit one of its writes before giving the connection up.
const proposalTimeout = 10 * time.Second

// conn serves one client connection: it parses frames in stream order,
// answers reads directly, and walks writes through propose/commit. It is also
// the watch-owner handle registered in the tree's watch tables.
type conn struct {
	id   string
	srv  *Server
	msgr *messager.Messager
	log  *logrus.Entry

	out       chan *saber.Message
	done      chan struct{}
	closeOnce sync.Once

	sess atomic.Pointer[Session]
}

func newConn(srv *Server, msgr *messager.Messager) *conn {
	id := uuid.New().String()
	return &conn{
		id:   id,
		srv:  srv,
		msgr: msgr,
		log:  srv.log.WithField("conn", id),
		out:  make(chan *saber.Message, 256),
		done: make(chan struct{}),
	}
}

// ConnID, SessionID and Notify implement datatree.Notifier.

func (c *conn) ConnID() string {
	return c.id
}

func (c *conn) SessionID() uint64 {
	if s := c.sess.Load(); s != nil {
		return s.ID
	}
	return 0
}

// Notify enqueues a watch notification. Events for a connection that already
// went away are dropped; the client rebuilds its watches on reconnect.
func (c *conn) Notify(event saber.WatchedEvent) {
	msg, err := saber.NewMessage(saber.MTNotification, &event)
	if err != nil {
		c.log.WithError(err).Error("encoding notification")
		return
	}
	c.enqueue(msg)
}

func (c *conn) enqueue(msg *saber.Message) {
	select {
	case c.out <- msg:
	case <-c.done:
	}
}

func (c *conn) serve() {
	defer c.srv.wg.Done()
	go c.writeLoop()

	err := c.msgr.ReadLoop(c.handle)
	if err != nil {
		c.log.WithError(err).Debug("connection closed")
	}
	c.teardown()
}

func (c *conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			if err := c.msgr.Send(msg); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close unblocks both loops by tearing the transport down.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.msgr.Close()
	})
}

func (c *conn) teardown() {
	c.close()
	// Watches registered through this connection can never be delivered
	// again; the client re-registers through SET_WATCHES on reconnect.
	c.srv.tree.RemoveConn(c.id)
	c.srv.removeConn(c.id)
}

func (c *conn) session() *Session {
	return c.sess.Load()
}

func (c *conn) sendPayload(t saber.MessageType, payload any) bool {
	msg, err := saber.NewMessage(t, payload)
	if err != nil {
		c.log.WithError(err).Error("encoding response")
		return false
	}
	c.enqueue(msg)
	return true
}

// handle processes one frame. Returning false tears the connection down,
// which is the tier-1 answer to stream corruption.
func (c *conn) handle(msg *saber.Message) bool {
	now := time.Now()
	if s := c.session(); s != nil {
		s.Touch(now)
	}

	// A non-master answers everything except keepalives and CLOSE with the
	// master hint; the client closes and redials.
	if !c.srv.cfg.isMaster() && msg.Type != saber.MTPing && msg.Type != saber.MTClose {
		return c.sendPayload(saber.MTMaster, &saber.Master{
			Host: c.srv.cfg.Master.Host,
			Port: c.srv.cfg.Master.Port,
		})
	}

	switch msg.Type {
	case saber.MTConnect:
		return c.handleConnect(msg, now)
	case saber.MTPing:
		c.enqueue(&saber.Message{Type: saber.MTPing})
		return true
	case saber.MTClose:
		if s := c.session(); s != nil {
			c.srv.expireSession(s)
		}
		return false
	}

	if c.session() == nil {
		c.log.Warn("request before handshake")
		return false
	}

	switch msg.Type {
	case saber.MTExists:
		var req saber.ExistsRequest
		if err := saber.Unmarshal(msg.Data, &req); err != nil {
			return false
		}
		if err := paths.Validate(req.Path); err != nil {
			return c.sendPayload(saber.MTExists, &saber.ExistsResponse{Code: saber.CodeSystemError, Path: req.Path})
		}
		return c.sendPayload(saber.MTExists, c.srv.tree.Exists(req.Path, c.watcher(req.Watch)))
	case saber.MTGetData:
		var req saber.GetDataRequest
		if err := saber.Unmarshal(msg.Data, &req); err != nil {
			return false
		}
		if err := paths.Validate(req.Path); err != nil {
			return c.sendPayload(saber.MTGetData, &saber.GetDataResponse{Code: saber.CodeSystemError, Path: req.Path})
		}
		return c.sendPayload(saber.MTGetData, c.srv.tree.GetData(req.Path, c.watcher(req.Watch)))
	case saber.MTGetChildren:
		var req saber.GetChildrenRequest
		if err := saber.Unmarshal(msg.Data, &req); err != nil {
			return false
		}
		if err := paths.Validate(req.Path); err != nil {
			return c.sendPayload(saber.MTGetChildren, &saber.GetChildrenResponse{Code: saber.CodeSystemError, Path: req.Path})
		}
		return c.sendPayload(saber.MTGetChildren, c.srv.tree.GetChildren(req.Path, c.watcher(req.Watch)))
	case saber.MTGetACL:
		var req saber.GetACLRequest
		if err := saber.Unmarshal(msg.Data, &req); err != nil {
			return false
		}
		if err := paths.Validate(req.Path); err != nil {
			return c.sendPayload(saber.MTGetACL, &saber.GetACLResponse{Code: saber.CodeSystemError, Path: req.Path})
		}
		return c.sendPayload(saber.MTGetACL, c.srv.tree.GetACL(req.Path))
	case saber.MTSetWatches:
		var req saber.SetWatchesRequest
		if err := saber.Unmarshal(msg.Data, &req); err != nil {
			return false
		}
		c.srv.tree.SetWatches(&req, c)
		return true
	case saber.MTCreate:
		return c.handleCreate(msg)
	case saber.MTDelete:
		return c.handleDelete(msg)
	case saber.MTSetData:
		return c.handleSetData(msg)
	case saber.MTSetACL:
		return c.handleSetACL(msg)
	default:
		c.log.WithField("type", msg.Type.String()).Warn("unexpected message type")
		return false
	}
}

func (c *conn) handleConnect(msg *saber.Message, now time.Time) bool {
	var req saber.ConnectRequest
	if err := saber.Unmarshal(msg.Data, &req); err != nil {
		return false
	}

	if req.SessionID != 0 {
		s, ok := c.srv.sessions.Get(req.SessionID)
		if !ok {
			// The echoed session is gone: tell the client it expired.
			return c.sendPayload(saber.MTConnect, &saber.ConnectResponse{SessionID: 0})
		}
		s.Attach(c.id, now)
		c.sess.Store(s)
		return c.sendPayload(saber.MTConnect, &saber.ConnectResponse{SessionID: s.ID, TimeoutMs: s.TimeoutMs})
	}

	s := c.srv.sessions.Create(req.TimeoutMs, c.id)
	c.sess.Store(s)
	return c.sendPayload(saber.MTConnect, &saber.ConnectResponse{SessionID: s.ID, TimeoutMs: s.TimeoutMs})
}

func (c *conn) handleCreate(msg *saber.Message) bool {
	var req saber.CreateRequest
	if err := saber.Unmarshal(msg.Data, &req); err != nil {
		return false
	}
	if err := paths.Validate(req.Path); err != nil || req.Path == paths.Root {
		return c.sendPayload(saber.MTCreate, &saber.CreateResponse{Code: saber.CodeSystemError, Path: req.Path})
	}
	s := c.session()
	if code := c.srv.tree.CheckCreate(&req, s.AuthIDs); code != saber.CodeOK {
		return c.sendPayload(saber.MTCreate, &saber.CreateResponse{Code: code, Path: req.Path})
	}
	return c.proposeAndReply(&datatree.Txn{
		SessionID: s.ID,
		Op:        datatree.OpCreate,
		Path:      req.Path,
		Data:      req.Data,
		ACL:       req.ACL,
		Kind:      req.Kind,
	})
}

func (c *conn) handleDelete(msg *saber.Message) bool {
	var req saber.DeleteRequest
	if err := saber.Unmarshal(msg.Data, &req); err != nil {
		return false
	}
	if err := paths.Validate(req.Path); err != nil || req.Path == paths.Root {
		return c.sendPayload(saber.MTDelete, &saber.DeleteResponse{Code: saber.CodeSystemError, Path: req.Path})
	}
	s := c.session()
	if code := c.srv.tree.CheckDelete(&req, s.AuthIDs); code != saber.CodeOK {
		return c.sendPayload(saber.MTDelete, &saber.DeleteResponse{Code: code, Path: req.Path})
	}
	return c.proposeAndReply(&datatree.Txn{
		SessionID: s.ID,
		Op:        datatree.OpDelete,
		Path:      req.Path,
		Version:   req.Version,
	})
}

func (c *conn) handleSetData(msg *saber.Message) bool {
	var req saber.SetDataRequest
	if err := saber.Unmarshal(msg.Data, &req); err != nil {
		return false
	}
	if err := paths.Validate(req.Path); err != nil {
		return c.sendPayload(saber.MTSetData, &saber.SetDataResponse{Code: saber.CodeSystemError, Path: req.Path})
	}
	s := c.session()
	if code := c.srv.tree.CheckSetData(&req, s.AuthIDs); code != saber.CodeOK {
		return c.sendPayload(saber.MTSetData, &saber.SetDataResponse{Code: code, Path: req.Path})
	}
	return c.proposeAndReply(&datatree.Txn{
		SessionID: s.ID,
		Op:        datatree.OpSetData,
		Path:      req.Path,
		Data:      req.Data,
		Version:   req.Version,
	})
}

func (c *conn) handleSetACL(msg *saber.Message) bool {
	var req saber.SetACLRequest
	if err := saber.Unmarshal(msg.Data, &req); err != nil {
		return false
	}
	if err := paths.Validate(req.Path); err != nil {
		return c.sendPayload(saber.MTSetACL, &saber.SetACLResponse{Code: saber.CodeSystemError, Path: req.Path})
	}
	s := c.session()
	if code := c.srv.tree.CheckSetACL(&req, s.AuthIDs); code != saber.CodeOK {
		return c.sendPayload(saber.MTSetACL, &saber.SetACLResponse{Code: code, Path: req.Path})
	}
	return c.proposeAndReply(&datatree.Txn{
		SessionID: s.ID,
		Op:        datatree.OpSetACL,
		Path:      req.Path,
		ACL:       req.ACL,
		Version:   req.Version,
	})
}

// proposeAndReply walks one write through the consensus layer and enqueues
// the response produced at apply time. The read loop blocks here, so a
// connection's requests commit and answer in submission order.
func (c *conn) proposeAndReply(txn *datatree.Txn) bool {
	result := make(chan *saber.Message, 1)
	if err := c.srv.proposer.Propose(&Proposal{Txn: txn, ConnID: c.id, Result: result}); err != nil {
		c.log.WithError(err).Warn("propose failed")
		return false
	}
	select {
	case msg := <-result:
		c.enqueue(msg)
		return true
	case <-time.After(proposalTimeout):
		c.log.Error("timed out waiting for commit")
		return false
	case <-c.done:
		return false
	}
}

// watcher returns this connection as the watch owner when the request asked
// for a watch, nil otherwise.
func (c *conn) watcher(want bool) datatree.Notifier {
	if !want {
		return nil
	}
	return c
}
