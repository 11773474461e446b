// Package server hosts the coordination service: the request pipeline that
// validates and proposes client writes, the applier that replays committed
// transactions into the data tree, and session liveness tracking.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/cs706/saber/pkg/datatree"
	"github.com/cs706/saber/pkg/logging"
	"github.com/cs706/saber/pkg/messager"
	"github.com/cs706/saber/pkg/saber"
	"github.com/cs706/saber/pkg/snapshot"
	"github.com/cs706/saber/pkg/zxid"
)

type Server struct {
	cfg      *Config
	log      *logrus.Entry
	tree     *datatree.DataTree
	sessions *SessionRegistry
	proposer Proposer
	store    *snapshot.Store

	ln net.Listener

	mu    sync.Mutex
	conns map[string]*conn

	done chan struct{}

	wg      sync.WaitGroup
	applied sync.WaitGroup
	stopped atomic.Bool
	started atomic.Bool
}

// New builds a server from config, recovering the newest snapshot in DataDir
// when one exists.
func New(cfg *Config, fs afero.Fs) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		log:      logging.NewLogger("server"),
		tree:     datatree.New(),
		sessions: NewSessionRegistry(cfg.Session.MinTimeoutMs, cfg.Session.MaxTimeoutMs),
		conns:    map[string]*conn{},
		done:     make(chan struct{}),
	}

	var lastCounter int32
	if cfg.DataDir != "" {
		store, err := snapshot.NewStore(fs, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.store = store
		z, err := store.Latest()
		switch err {
		case nil:
			body, err := store.Load(z)
			if err != nil {
				return nil, fmt.Errorf("loading snapshot %d: %w", z, err)
			}
			if _, err := s.tree.Recover(body, 0); err != nil {
				return nil, fmt.Errorf("recovering snapshot %d: %w", z, err)
			}
			s.tree.SetLastZxid(z)
			if zxid.ZXID(z).Epoch() == cfg.Epoch {
				lastCounter = zxid.ZXID(z).Counter()
			}
			s.log.WithFields(logrus.Fields{"zxid": z, "nodes": s.tree.NodeCount()}).Info("tree recovered")
		case snapshot.ErrNoSnapshots:
		default:
			return nil, err
		}
	}

	s.proposer = NewStandaloneProposer(cfg.Epoch, lastCounter)
	return s, nil
}

// Start binds the listener and launches the accept, applier, and session
// sweeper loops. It returns once the server is accepting connections.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	s.applied.Add(1)
	go s.applyLoop()
	s.wg.Add(2)
	go s.acceptLoop()
	go s.sweepLoop()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stop closes the listener and every connection, drains the applier, and
// writes a final snapshot. Stop is idempotent.
func (s *Server) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	if s.ln != nil {
		_ = s.ln.Close()
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.proposer.Close()
	s.applied.Wait()

	if s.store != nil {
		body, err := s.tree.Serialize(nil)
		if err != nil {
			s.log.WithError(err).Error("serializing tree for snapshot")
		} else if err := s.store.Save(s.tree.LastZxid(), body); err != nil {
			s.log.WithError(err).Error("saving snapshot")
		}
	}
	s.log.Info("stopped")
}

// Tree exposes the data tree for replicas applying committed transactions
// without a client pipeline, and for tests.
func (s *Server) Tree() *datatree.DataTree {
	return s.tree
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		netConn, err := s.ln.Accept()
		if err != nil {
			if s.stopped.Load() {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		c := newConn(s, messager.New(netConn))
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()
		s.wg.Add(1)
		go c.serve()
	}
}

// applyLoop is the single writer behind the tree: committed transactions
// apply here, one at a time, and their responses route back to the
// originating connection.
func (s *Server) applyLoop() {
	defer s.applied.Done()
	for p := range s.proposer.Commits() {
		var msg *saber.Message
		var err error
		switch p.Txn.Op {
		case datatree.OpCreate:
			msg, err = saber.NewMessage(saber.MTCreate, s.tree.ApplyCreate(p.Txn))
		case datatree.OpDelete:
			msg, err = saber.NewMessage(saber.MTDelete, s.tree.ApplyDelete(p.Txn))
		case datatree.OpSetData:
			msg, err = saber.NewMessage(saber.MTSetData, s.tree.ApplySetData(p.Txn))
		case datatree.OpSetACL:
			msg, err = saber.NewMessage(saber.MTSetACL, s.tree.ApplySetACL(p.Txn))
		case datatree.OpKillSession:
			n := s.tree.ApplyKillSession(p.Txn)
			s.finishSession(p.Txn.SessionID)
			s.log.WithFields(logrus.Fields{
				"session":    p.Txn.SessionID,
				"ephemerals": n,
			}).Info("session killed")
		default:
			s.log.WithField("op", p.Txn.Op.String()).Error("unknown committed op")
		}
		if err != nil {
			s.log.WithError(err).Error("encoding apply response")
			continue
		}
		if p.Result != nil && msg != nil {
			p.Result <- msg
		}
	}
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.Session.MinTimeoutMs/3) * time.Millisecond
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, sess := range s.sessions.Expired(time.Now()) {
				s.log.WithField("session", sess.ID).Warn("session timed out")
				s.expireSession(sess)
			}
		case <-s.done:
			return
		}
	}
}

// expireSession proposes the session's KillSession transaction exactly once.
func (s *Server) expireSession(sess *Session) {
	if !sess.markExpiring() {
		return
	}
	err := s.proposer.Propose(&Proposal{
		Txn: &datatree.Txn{SessionID: sess.ID, Op: datatree.OpKillSession},
	})
	if err != nil {
		s.log.WithError(err).WithField("session", sess.ID).Warn("expiry propose failed")
	}
}

// finishSession forgets a killed session and drops its connection if one is
// still attached.
func (s *Server) finishSession(sessionID uint64) {
	sess, ok := s.sessions.Get(sessionID)
	s.sessions.Remove(sessionID)
	if !ok {
		return
	}
	if connID := sess.ConnID(); connID != "" {
		s.mu.Lock()
		c := s.conns[connID]
		s.mu.Unlock()
		if c != nil {
			c.close()
		}
	}
}

func (s *Server) removeConn(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}
