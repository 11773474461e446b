package server

import (
	"errors"
	"sync"
	"time"

	"github.com/cs706/saber/pkg/datatree"
	"github.com/cs706/saber/pkg/saber"
	"github.com/cs706/saber/pkg/zxid"
)

// Proposal carries a transaction into the consensus layer together with the
// routing needed to answer the originating connection once it commits.
// Result is nil for server-internal proposals such as session expiry.
type Proposal struct {
	Txn    *datatree.Txn
	ConnID string
	Result chan *saber.Message
}

var ErrProposerClosed = errors.New("proposer is closed")

// Proposer is the seam to the replicated log: proposals go in, committed
// transactions come back on the commit stream with a zxid assigned, in a
// single total order shared by every replica.
type Proposer interface {
	Propose(p *Proposal) error
	// Commits yields committed proposals in commit order. The channel
	// closes when the proposer shuts down.
	Commits() <-chan *Proposal
	Close()
}

// StandaloneProposer is the single-node implementation: every proposal
// commits immediately, in propose order.
type StandaloneProposer struct {
	gen     *zxid.Generator
	commits chan *Proposal

	mu     sync.Mutex
	closed bool
}

func NewStandaloneProposer(epoch int32, lastCounter int32) *StandaloneProposer {
	return &StandaloneProposer{
		gen:     zxid.NewGenerator(epoch, lastCounter),
		commits: make(chan *Proposal, 256),
	}
}

func (sp *StandaloneProposer) Propose(p *Proposal) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return ErrProposerClosed
	}
	p.Txn.Zxid = int64(sp.gen.Next())
	p.Txn.Time = time.Now().UnixMilli()
	sp.commits <- p
	return nil
}

func (sp *StandaloneProposer) Commits() <-chan *Proposal {
	return sp.commits
}

func (sp *StandaloneProposer) Close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.closed {
		sp.closed = true
		close(sp.commits)
	}
}

// LastZxid returns the most recently assigned id.
func (sp *StandaloneProposer) LastZxid() int64 {
	return int64(sp.gen.Last())
}
