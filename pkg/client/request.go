package client

import (
	"github.com/cs706/saber/pkg/saber"
)

// Callback signatures per operation. Each fires exactly once on the client's
// event loop with the path the caller supplied (chroot stripped) and the
// context passed at submission.
type (
	CreateCallback      func(path string, ctx any, resp *saber.CreateResponse)
	DeleteCallback      func(path string, ctx any, resp *saber.DeleteResponse)
	ExistsCallback      func(path string, ctx any, resp *saber.ExistsResponse)
	GetDataCallback     func(path string, ctx any, resp *saber.GetDataResponse)
	SetDataCallback     func(path string, ctx any, resp *saber.SetDataResponse)
	GetACLCallback      func(path string, ctx any, resp *saber.GetACLResponse)
	SetACLCallback      func(path string, ctx any, resp *saber.SetACLResponse)
	GetChildrenCallback func(path string, ctx any, resp *saber.GetChildrenResponse)
)

// pendingRequest is one submitted operation waiting for its response. path is
// the full (chrooted) path recorded for the FIFO-order invariant check.
type pendingRequest struct {
	path    string
	ctx     any
	watcher saber.Watcher
	cb      any
}

// requestQueue is a FIFO of pending requests of one message type. Responses
// of a type arrive in submission order, so the front is always the request a
// response answers.
type requestQueue struct {
	items []*pendingRequest
}

func (q *requestQueue) push(r *pendingRequest) {
	q.items = append(q.items, r)
}

func (q *requestQueue) pop() *pendingRequest {
	if len(q.items) == 0 {
		return nil
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r
}

func (q *requestQueue) len() int {
	return len(q.items)
}

// opTypes is every message type with a per-operation queue.
var opTypes = []saber.MessageType{
	saber.MTCreate,
	saber.MTDelete,
	saber.MTExists,
	saber.MTGetData,
	saber.MTSetData,
	saber.MTGetACL,
	saber.MTSetACL,
	saber.MTGetChildren,
}
