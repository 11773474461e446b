// Package datatree holds the server's namespace: the node table, the
// redundant children index, the ephemeral-session index, and the two watch
// tables. Mutations arrive as committed transactions applied by a single
// writer; reads run concurrently under a shared lock.
package datatree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cs706/saber/pkg/logging"
	"github.com/cs706/saber/pkg/paths"
	"github.com/cs706/saber/pkg/saber"
)

type DataTree struct {
	mu sync.RWMutex

	// nodes holds every live path. For every non-root path in here its
	// parent is in here too.
	nodes map[string]*DataNode
	// childrenIndex mirrors each node's child set for O(1) GetChildren.
	// Entries exist only for paths with at least one child.
	childrenIndex map[string]map[string]struct{}
	// ephemerals maps a session id to the paths it owns.
	ephemerals map[uint64]map[string]struct{}

	dataWatches  *WatchManager
	childWatches *WatchManager

	lastZxid int64

	log *logrus.Entry
}

// firedWatch pairs a watch owner with the event it is owed. The pair is
// collected under the tree lock and delivered after it is released.
type firedWatch struct {
	notifier Notifier
	event    saber.WatchedEvent
}

func New() *DataTree {
	t := &DataTree{
		nodes:         map[string]*DataNode{},
		childrenIndex: map[string]map[string]struct{}{},
		ephemerals:    map[uint64]map[string]struct{}{},
		dataWatches:   NewWatchManager(),
		childWatches:  NewWatchManager(),
		log:           logging.NewLogger("datatree"),
	}
	t.nodes[paths.Root] = NewDataNode(nil, saber.WorldACL(saber.PermAll), saber.Stat{})
	return t
}

// LastZxid returns the id of the most recently applied transaction.
func (t *DataTree) LastZxid() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastZxid
}

// SetLastZxid seeds the applied-transaction cursor after recovering a
// serialized tree, which carries no zxid of its own.
func (t *DataTree) SetLastZxid(z int64) {
	t.mu.Lock()
	t.lastZxid = z
	t.mu.Unlock()
}

// NodeCount returns the number of live nodes including the root.
func (t *DataTree) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// ---------------------------------------------------------------------------
// Checks: ACL and precondition validation against current state, run under a
// read lock before a write is proposed. Checks never mutate.

// CheckCreate validates a create against current state on behalf of the
// requester identified by ids.
func (t *DataTree) CheckCreate(req *saber.CreateRequest, ids []saber.ID) saber.Code {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parent, ok := t.nodes[paths.Parent(req.Path)]
	if !ok {
		return saber.CodeNoNode
	}
	if parent.IsEphemeral() {
		return saber.CodeNoChildrenForEphemerals
	}
	if !req.Kind.IsSequential() {
		if _, ok := t.nodes[req.Path]; ok {
			return saber.CodeNodeExists
		}
	}
	if !saber.ValidateACL(req.ACL) {
		return saber.CodeInvalidACL
	}
	if !saber.CheckACL(parent.ACL, saber.PermCreate, ids) {
		return saber.CodeNoAuth
	}
	return saber.CodeOK
}

// CheckDelete validates a delete against current state.
func (t *DataTree) CheckDelete(req *saber.DeleteRequest, ids []saber.ID) saber.Code {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[req.Path]
	if !ok {
		return saber.CodeNoNode
	}
	if !versionOK(req.Version, node.Stat.Version) {
		return saber.CodeBadVersion
	}
	if node.NumChildren() > 0 {
		return saber.CodeNotEmpty
	}
	parent := t.nodes[paths.Parent(req.Path)]
	if parent != nil && !saber.CheckACL(parent.ACL, saber.PermDelete, ids) {
		return saber.CodeNoAuth
	}
	return saber.CodeOK
}

// CheckSetData validates a data write against current state.
func (t *DataTree) CheckSetData(req *saber.SetDataRequest, ids []saber.ID) saber.Code {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[req.Path]
	if !ok {
		return saber.CodeNoNode
	}
	if !versionOK(req.Version, node.Stat.Version) {
		return saber.CodeBadVersion
	}
	if !saber.CheckACL(node.ACL, saber.PermWrite, ids) {
		return saber.CodeNoAuth
	}
	return saber.CodeOK
}

// CheckSetACL validates an ACL write against current state.
func (t *DataTree) CheckSetACL(req *saber.SetACLRequest, ids []saber.ID) saber.Code {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[req.Path]
	if !ok {
		return saber.CodeNoNode
	}
	if !versionOK(req.Version, node.Stat.Aversion) {
		return saber.CodeBadVersion
	}
	if !saber.ValidateACL(req.ACL) {
		return saber.CodeInvalidACL
	}
	if !saber.CheckACL(node.ACL, saber.PermAdmin, ids) {
		return saber.CodeNoAuth
	}
	return saber.CodeOK
}

// versionOK implements the conditional checks for update and delete. -1 skips
// the check, anything else must match exactly.
func versionOK(expected, actual int32) bool {
	return expected == -1 || expected == actual
}

// ---------------------------------------------------------------------------
// Applies: mutations driven by committed transactions. Preconditions are
// re-verified on the serialized commit stream; that verdict, not the
// pre-propose check, is authoritative, so two racing conditional writes
// resolve deterministically.

// ApplyCreate inserts the node described by txn. For sequential kinds the
// final name carries the 10-digit suffix derived from the parent's
// pre-increment cversion.
func (t *DataTree) ApplyCreate(txn *Txn) *saber.CreateResponse {
	t.mu.Lock()
	resp := &saber.CreateResponse{Path: txn.Path}

	t.lastZxid = txn.Zxid
	parentPath := paths.Parent(txn.Path)
	parent, ok := t.nodes[parentPath]
	if !ok {
		t.mu.Unlock()
		resp.Code = saber.CodeNoNode
		return resp
	}
	if parent.IsEphemeral() {
		t.mu.Unlock()
		resp.Code = saber.CodeNoChildrenForEphemerals
		return resp
	}

	createPath := txn.Path
	if txn.Kind.IsSequential() {
		name := fmt.Sprintf("%s%010d", paths.Segment(txn.Path), parent.Stat.Cversion)
		createPath = paths.Join(parentPath, name)
	}
	if _, ok := t.nodes[createPath]; ok {
		t.mu.Unlock()
		resp.Code = saber.CodeNodeExists
		return resp
	}

	stat := saber.Stat{
		Czxid: txn.Zxid,
		Mzxid: txn.Zxid,
		Pzxid: txn.Zxid,
		Ctime: txn.Time,
		Mtime: txn.Time,
	}
	if txn.Kind.IsEphemeral() {
		stat.EphemeralOwner = txn.SessionID
	}
	node := NewDataNode(txn.Data, txn.ACL, stat)
	t.nodes[createPath] = node

	segment := paths.Segment(createPath)
	parent.AddChild(segment)
	parent.Stat.Cversion++
	parent.Stat.Pzxid = txn.Zxid
	t.indexChild(parentPath, segment)

	if txn.Kind.IsEphemeral() {
		owned, ok := t.ephemerals[txn.SessionID]
		if !ok {
			owned = map[string]struct{}{}
			t.ephemerals[txn.SessionID] = owned
		}
		owned[createPath] = struct{}{}
	}

	fired := t.collectLocked(nil, t.dataWatches, createPath, saber.EventNodeCreated)
	fired = t.collectLocked(fired, t.childWatches, parentPath, saber.EventNodeChildrenChanged)
	t.mu.Unlock()

	t.deliver(fired)
	resp.Path = createPath
	return resp
}

// ApplyDelete removes the node at txn.Path.
func (t *DataTree) ApplyDelete(txn *Txn) *saber.DeleteResponse {
	t.mu.Lock()
	resp := &saber.DeleteResponse{Path: txn.Path}

	t.lastZxid = txn.Zxid
	fired, code := t.deleteLocked(txn.Path, txn.Version, txn.Zxid)
	t.mu.Unlock()

	t.deliver(fired)
	resp.Code = code
	return resp
}

// deleteLocked removes one node, updates the parent and every index, and
// collects the watches the removal fires. Callers hold the write lock.
func (t *DataTree) deleteLocked(path string, expectedVersion int32, zxid int64) ([]firedWatch, saber.Code) {
	node, ok := t.nodes[path]
	if !ok {
		return nil, saber.CodeNoNode
	}
	if !versionOK(expectedVersion, node.Stat.Version) {
		return nil, saber.CodeBadVersion
	}
	if node.NumChildren() > 0 {
		return nil, saber.CodeNotEmpty
	}

	delete(t.nodes, path)
	parentPath := paths.Parent(path)
	segment := paths.Segment(path)
	if parent, ok := t.nodes[parentPath]; ok {
		parent.RemoveChild(segment)
		parent.Stat.Cversion++
		parent.Stat.Pzxid = zxid
	}
	t.unindexChild(parentPath, segment)

	if owner := node.Stat.EphemeralOwner; owner != 0 {
		if owned, ok := t.ephemerals[owner]; ok {
			delete(owned, path)
			if len(owned) == 0 {
				delete(t.ephemerals, owner)
			}
		}
	}

	fired := t.collectLocked(nil, t.dataWatches, path, saber.EventNodeDeleted)
	fired = t.collectLocked(fired, t.childWatches, parentPath, saber.EventNodeChildrenChanged)
	// Watches on the removed node's children list go away without firing.
	t.childWatches.Drop(path)
	return fired, saber.CodeOK
}

// ApplySetData overwrites a node's payload under its version check.
func (t *DataTree) ApplySetData(txn *Txn) *saber.SetDataResponse {
	t.mu.Lock()
	resp := &saber.SetDataResponse{Path: txn.Path}

	t.lastZxid = txn.Zxid
	node, ok := t.nodes[txn.Path]
	if !ok {
		t.mu.Unlock()
		resp.Code = saber.CodeNoNode
		return resp
	}
	if !versionOK(txn.Version, node.Stat.Version) {
		t.mu.Unlock()
		resp.Code = saber.CodeBadVersion
		return resp
	}

	node.Data = txn.Data
	node.Stat.Version++
	node.Stat.Mzxid = txn.Zxid
	node.Stat.Mtime = txn.Time
	node.Stat.DataLength = int32(len(txn.Data))
	resp.Stat = node.StatCopy()

	fired := t.collectLocked(nil, t.dataWatches, txn.Path, saber.EventNodeDataChanged)
	t.mu.Unlock()

	t.deliver(fired)
	return resp
}

// ApplySetACL replaces a node's ACL under its aversion check. No watches
// fire for ACL changes.
func (t *DataTree) ApplySetACL(txn *Txn) *saber.SetACLResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	resp := &saber.SetACLResponse{Path: txn.Path}

	t.lastZxid = txn.Zxid
	node, ok := t.nodes[txn.Path]
	if !ok {
		resp.Code = saber.CodeNoNode
		return resp
	}
	if !versionOK(txn.Version, node.Stat.Aversion) {
		resp.Code = saber.CodeBadVersion
		return resp
	}

	node.ACL = txn.ACL
	node.Stat.Aversion++
	resp.Stat = node.StatCopy()
	return resp
}

// ApplyKillSession deletes every ephemeral the session owns, firing the same
// watches a client-issued delete would, then forgets the session. It also
// drops every watch the session registered.
func (t *DataTree) ApplyKillSession(txn *Txn) int {
	t.mu.Lock()
	t.lastZxid = txn.Zxid

	owned := make([]string, 0, len(t.ephemerals[txn.SessionID]))
	for path := range t.ephemerals[txn.SessionID] {
		owned = append(owned, path)
	}
	sort.Strings(owned)

	var fired []firedWatch
	for _, path := range owned {
		f, code := t.deleteLocked(path, -1, txn.Zxid)
		if code != saber.CodeOK {
			t.log.WithFields(logrus.Fields{
				"session": txn.SessionID,
				"path":    path,
				"code":    code.String(),
			}).Error("ephemeral cleanup failed")
			continue
		}
		fired = append(fired, f...)
	}
	delete(t.ephemerals, txn.SessionID)
	t.dataWatches.RemoveSession(txn.SessionID)
	t.childWatches.RemoveSession(txn.SessionID)
	t.mu.Unlock()

	t.deliver(fired)
	return len(owned)
}

// ---------------------------------------------------------------------------
// Reads. Each runs under the shared lock and optionally registers a watch
// while still holding it, so no event between read and registration is lost.

// Exists returns the node's stat. A watcher is registered whether or not the
// node exists; on a miss it acts as an exist-watch and fires on creation.
func (t *DataTree) Exists(path string, watcher Notifier) *saber.ExistsResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &saber.ExistsResponse{Path: path}
	if watcher != nil {
		t.dataWatches.Add(path, watcher)
	}
	node, ok := t.nodes[path]
	if !ok {
		resp.Code = saber.CodeNoNode
		return resp
	}
	resp.Stat = node.StatCopy()
	return resp
}

// GetData returns a node's payload and stat. The watcher is registered only
// on success.
func (t *DataTree) GetData(path string, watcher Notifier) *saber.GetDataResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &saber.GetDataResponse{Path: path}
	node, ok := t.nodes[path]
	if !ok {
		resp.Code = saber.CodeNoNode
		return resp
	}
	if watcher != nil {
		t.dataWatches.Add(path, watcher)
	}
	resp.Data = node.Data
	resp.Stat = node.StatCopy()
	return resp
}

// GetChildren returns the lexicographically sorted child segments. The
// watcher is registered only on success.
func (t *DataTree) GetChildren(path string, watcher Notifier) *saber.GetChildrenResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &saber.GetChildrenResponse{Path: path}
	node, ok := t.nodes[path]
	if !ok {
		resp.Code = saber.CodeNoNode
		return resp
	}
	if watcher != nil {
		t.childWatches.Add(path, watcher)
	}
	resp.Children = node.Children()
	return resp
}

// GetACL returns a node's ACL list and stat.
func (t *DataTree) GetACL(path string) *saber.GetACLResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &saber.GetACLResponse{Path: path}
	node, ok := t.nodes[path]
	if !ok {
		resp.Code = saber.CodeNoNode
		return resp
	}
	resp.ACL = append([]saber.ACL(nil), node.ACL...)
	resp.Stat = node.StatCopy()
	return resp
}

// SetWatches rebuilds the watch tables for a reconnected client in one shot.
func (t *DataTree) SetWatches(req *saber.SetWatchesRequest, watcher Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, path := range req.DataWatches {
		t.dataWatches.Add(path, watcher)
	}
	for _, path := range req.ExistWatches {
		t.dataWatches.Add(path, watcher)
	}
	for _, path := range req.ChildWatches {
		t.childWatches.Add(path, watcher)
	}
}

// RemoveConn drops every watch registered through a connection that went
// away without its session expiring.
func (t *DataTree) RemoveConn(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dataWatches.RemoveConn(connID)
	t.childWatches.RemoveConn(connID)
}

// DataWatchCount and ChildWatchCount expose table sizes for tests and stats.
func (t *DataTree) DataWatchCount(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dataWatches.Count(path)
}

func (t *DataTree) ChildWatchCount(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.childWatches.Count(path)
}

// EphemeralPaths returns the sorted paths owned by a session.
func (t *DataTree) EphemeralPaths(sessionID uint64) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.ephemerals[sessionID]))
	for path := range t.ephemerals[sessionID] {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------

func (t *DataTree) indexChild(parent, segment string) {
	set, ok := t.childrenIndex[parent]
	if !ok {
		set = map[string]struct{}{}
		t.childrenIndex[parent] = set
	}
	set[segment] = struct{}{}
}

func (t *DataTree) unindexChild(parent, segment string) {
	if set, ok := t.childrenIndex[parent]; ok {
		delete(set, segment)
		if len(set) == 0 {
			delete(t.childrenIndex, parent)
		}
	}
}

// collectLocked snapshots the watches Trigger removes for path into the
// fired list. The snapshot happens under the tree lock; delivery does not.
func (t *DataTree) collectLocked(fired []firedWatch, wm *WatchManager, path string, et saber.EventType) []firedWatch {
	event := saber.WatchedEvent{Type: et, State: saber.StateConnected, Path: path}
	for _, n := range wm.Trigger(path) {
		fired = append(fired, firedWatch{notifier: n, event: event})
	}
	return fired
}

func (t *DataTree) deliver(fired []firedWatch) {
	for _, f := range fired {
		f.notifier.Notify(f.event)
	}
}
