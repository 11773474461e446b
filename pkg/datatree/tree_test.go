package datatree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs706/saber/pkg/saber"
)

// txnFactory stamps txns with increasing zxids the way the consensus layer
// would.
type txnFactory struct {
	zxid int64
	time int64
}

func (f *txnFactory) next() (int64, int64) {
	f.zxid++
	f.time += 10
	return f.zxid, f.time
}

func (f *txnFactory) create(path string, data []byte, kind saber.NodeKind, session uint64) *Txn {
	z, now := f.next()
	return &Txn{
		Zxid:      z,
		Time:      now,
		SessionID: session,
		Op:        OpCreate,
		Path:      path,
		Data:      data,
		ACL:       saber.WorldACL(saber.PermAll),
		Kind:      kind,
	}
}

func (f *txnFactory) delete(path string, version int32) *Txn {
	z, now := f.next()
	return &Txn{Zxid: z, Time: now, Op: OpDelete, Path: path, Version: version}
}

func (f *txnFactory) setData(path string, data []byte, version int32) *Txn {
	z, now := f.next()
	return &Txn{Zxid: z, Time: now, Op: OpSetData, Path: path, Data: data, Version: version}
}

func (f *txnFactory) setACL(path string, acl []saber.ACL, version int32) *Txn {
	z, now := f.next()
	return &Txn{Zxid: z, Time: now, Op: OpSetACL, Path: path, ACL: acl, Version: version}
}

func (f *txnFactory) killSession(session uint64) *Txn {
	z, now := f.next()
	return &Txn{Zxid: z, Time: now, SessionID: session, Op: OpKillSession}
}

var worldIDs = []saber.ID{{Scheme: "world", ID: "anyone"}}

func TestTree_CreateThenGetData(t *testing.T) {
	tree := New()
	f := &txnFactory{}

	resp := tree.ApplyCreate(f.create("/a", []byte("hello"), saber.Persistent, 0))
	require.Equal(t, saber.CodeOK, resp.Code)
	assert.Equal(t, "/a", resp.Path)

	got := tree.GetData("/a", nil)
	require.Equal(t, saber.CodeOK, got.Code)
	assert.Equal(t, []byte("hello"), got.Data)
	assert.Equal(t, int32(0), got.Stat.Version)
	assert.Equal(t, int32(0), got.Stat.NumChildren)
	assert.Equal(t, int32(5), got.Stat.DataLength)
	assert.Equal(t, resp.Path, "/a")
}

func TestTree_ApplyCreateErrors(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(tree *DataTree, f *txnFactory)
		txn          func(f *txnFactory) *Txn
		expectedCode saber.Code
	}{
		{
			name:         "parent missing",
			setup:        func(*DataTree, *txnFactory) {},
			txn:          func(f *txnFactory) *Txn { return f.create("/x/y", nil, saber.Persistent, 0) },
			expectedCode: saber.CodeNoNode,
		},
		{
			name: "node exists",
			setup: func(tree *DataTree, f *txnFactory) {
				tree.ApplyCreate(f.create("/x", nil, saber.Persistent, 0))
			},
			txn:          func(f *txnFactory) *Txn { return f.create("/x", nil, saber.Persistent, 0) },
			expectedCode: saber.CodeNodeExists,
		},
		{
			name: "parent is ephemeral",
			setup: func(tree *DataTree, f *txnFactory) {
				tree.ApplyCreate(f.create("/x", nil, saber.Ephemeral, 9))
			},
			txn:          func(f *txnFactory) *Txn { return f.create("/x/y", nil, saber.Persistent, 0) },
			expectedCode: saber.CodeNoChildrenForEphemerals,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tree := New()
			f := &txnFactory{}
			test.setup(tree, f)
			resp := tree.ApplyCreate(test.txn(f))
			assert.Equal(t, test.expectedCode, resp.Code)
		})
	}
}

func TestTree_CheckCreateACL(t *testing.T) {
	tree := New()
	f := &txnFactory{}

	// A parent that only a digest identity may create under.
	txn := f.create("/locked", nil, saber.Persistent, 0)
	txn.ACL = saber.DigestACL(saber.PermAll, "alice", "secret")
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(txn).Code)

	req := &saber.CreateRequest{
		Path: "/locked/child",
		ACL:  saber.WorldACL(saber.PermAll),
		Kind: saber.Persistent,
	}
	assert.Equal(t, saber.CodeNoAuth, tree.CheckCreate(req, worldIDs))

	aliceIDs := []saber.ID{{Scheme: "digest", ID: saber.DigestACL(saber.PermAll, "alice", "secret")[0].ID}}
	assert.Equal(t, saber.CodeOK, tree.CheckCreate(req, aliceIDs))

	// An empty ACL list on the new node is rejected outright.
	bad := &saber.CreateRequest{Path: "/locked2", Kind: saber.Persistent}
	assert.Equal(t, saber.CodeInvalidACL, tree.CheckCreate(bad, worldIDs))
}

func TestTree_SequentialNaming(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/x", nil, saber.Persistent, 0)).Code)

	for i := 0; i < 3; i++ {
		resp := tree.ApplyCreate(f.create("/x/q-", nil, saber.PersistentSequential, 0))
		require.Equal(t, saber.CodeOK, resp.Code)
		assert.Equal(t, fmt.Sprintf("/x/q-%010d", i), resp.Path)
	}

	stat := tree.Exists("/x", nil).Stat
	require.NotNil(t, stat)
	assert.Equal(t, int32(3), stat.Cversion)
	assert.Equal(t, int32(3), stat.NumChildren)
}

func TestTree_ApplyDeleteErrors(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a", nil, saber.Persistent, 0)).Code)
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a/b", nil, saber.Persistent, 0)).Code)

	assert.Equal(t, saber.CodeNoNode, tree.ApplyDelete(f.delete("/missing", -1)).Code)
	assert.Equal(t, saber.CodeBadVersion, tree.ApplyDelete(f.delete("/a/b", 3)).Code)
	assert.Equal(t, saber.CodeNotEmpty, tree.ApplyDelete(f.delete("/a", -1)).Code)

	assert.Equal(t, saber.CodeOK, tree.ApplyDelete(f.delete("/a/b", 0)).Code)
	assert.Equal(t, saber.CodeOK, tree.ApplyDelete(f.delete("/a", -1)).Code)
	assert.Equal(t, saber.CodeNoNode, tree.GetData("/a", nil).Code)
}

func TestTree_SetDataVersioning(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a", nil, saber.Persistent, 0)).Code)

	first := tree.ApplySetData(f.setData("/a", []byte("x"), 0))
	require.Equal(t, saber.CodeOK, first.Code)
	assert.Equal(t, int32(1), first.Stat.Version)

	// A second conditional write against the stale version loses.
	second := tree.ApplySetData(f.setData("/a", []byte("y"), 0))
	assert.Equal(t, saber.CodeBadVersion, second.Code)

	got := tree.GetData("/a", nil)
	assert.Equal(t, []byte("x"), got.Data)
	assert.Equal(t, int32(1), got.Stat.Version)
}

func TestTree_VersionCountsSetDatas(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a", nil, saber.Persistent, 0)).Code)

	for i := 0; i < 5; i++ {
		resp := tree.ApplySetData(f.setData("/a", []byte{byte(i)}, int32(i)))
		require.Equal(t, saber.CodeOK, resp.Code)
		assert.Equal(t, int32(i+1), resp.Stat.Version)
	}
}

func TestTree_SetACL(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a", nil, saber.Persistent, 0)).Code)

	resp := tree.ApplySetACL(f.setACL("/a", saber.WorldACL(saber.PermRead), 0))
	require.Equal(t, saber.CodeOK, resp.Code)
	assert.Equal(t, int32(1), resp.Stat.Aversion)

	assert.Equal(t, saber.CodeBadVersion, tree.ApplySetACL(f.setACL("/a", saber.WorldACL(saber.PermAll), 0)).Code)

	got := tree.GetACL("/a")
	require.Equal(t, saber.CodeOK, got.Code)
	assert.Equal(t, saber.WorldACL(saber.PermRead), got.ACL)
	assert.Equal(t, int32(1), got.Stat.Aversion)
}

func TestTree_GetChildrenSorted(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/p", nil, saber.Persistent, 0)).Code)
	for _, name := range []string{"zebra", "ant", "mole"} {
		require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/p/"+name, nil, saber.Persistent, 0)).Code)
	}

	resp := tree.GetChildren("/p", nil)
	require.Equal(t, saber.CodeOK, resp.Code)
	assert.Equal(t, []string{"ant", "mole", "zebra"}, resp.Children)
}

func TestTree_ExistsWatchFiresOnCreate(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	w := &recordingNotifier{id: "c1", session: 1}

	resp := tree.Exists("/a", w)
	require.Equal(t, saber.CodeNoNode, resp.Code)

	tree.ApplyCreate(f.create("/a", nil, saber.Persistent, 0))
	events := w.Events()
	require.Len(t, events, 1)
	assert.Equal(t, saber.EventNodeCreated, events[0].Type)
	assert.Equal(t, "/a", events[0].Path)
	assert.Equal(t, saber.StateConnected, events[0].State)
}

func TestTree_WatchIsOneShot(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/k", nil, saber.Persistent, 0)).Code)

	w := &recordingNotifier{id: "c1", session: 1}
	require.Equal(t, saber.CodeOK, tree.GetData("/k", w).Code)

	tree.ApplySetData(f.setData("/k", []byte("v1"), -1))
	tree.ApplySetData(f.setData("/k", []byte("v2"), -1))

	events := w.Events()
	require.Len(t, events, 1)
	assert.Equal(t, saber.EventNodeDataChanged, events[0].Type)
	assert.Equal(t, "/k", events[0].Path)
}

func TestTree_DeleteFiresWatches(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/p", nil, saber.Persistent, 0)).Code)
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/p/c", nil, saber.Persistent, 0)).Code)

	onNode := &recordingNotifier{id: "c1", session: 1}
	onParentData := &recordingNotifier{id: "c2", session: 1}
	onParentChildren := &recordingNotifier{id: "c3", session: 1}
	require.Equal(t, saber.CodeOK, tree.GetData("/p/c", onNode).Code)
	require.Equal(t, saber.CodeOK, tree.GetData("/p", onParentData).Code)
	require.Equal(t, saber.CodeOK, tree.GetChildren("/p", onParentChildren).Code)

	require.Equal(t, saber.CodeOK, tree.ApplyDelete(f.delete("/p/c", -1)).Code)

	nodeEvents := onNode.Events()
	require.Len(t, nodeEvents, 1)
	assert.Equal(t, saber.EventNodeDeleted, nodeEvents[0].Type)

	childEvents := onParentChildren.Events()
	require.Len(t, childEvents, 1)
	assert.Equal(t, saber.EventNodeChildrenChanged, childEvents[0].Type)
	assert.Equal(t, "/p", childEvents[0].Path)

	// The parent's data watch stays silent for a child delete.
	assert.Empty(t, onParentData.Events())
}

func TestTree_KillSessionRemovesEphemerals(t *testing.T) {
	const session = uint64(42)
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/a", nil, saber.Ephemeral, session)).Code)
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/b", nil, saber.Ephemeral, session)).Code)
	assert.Equal(t, []string{"/a", "/b"}, tree.EphemeralPaths(session))

	w := &recordingNotifier{id: "c1", session: 7}
	require.Equal(t, saber.CodeOK, tree.Exists("/a", w).Code)

	removed := tree.ApplyKillSession(f.killSession(session))
	assert.Equal(t, 2, removed)

	assert.Equal(t, saber.CodeNoNode, tree.Exists("/a", nil).Code)
	assert.Equal(t, saber.CodeNoNode, tree.Exists("/b", nil).Code)
	assert.Empty(t, tree.EphemeralPaths(session))

	events := w.Events()
	require.Len(t, events, 1)
	assert.Equal(t, saber.EventNodeDeleted, events[0].Type)
	assert.Equal(t, saber.StateConnected, events[0].State)
	assert.Equal(t, "/a", events[0].Path)
}

func TestTree_KillSessionDropsOwnedWatches(t *testing.T) {
	const session = uint64(9)
	tree := New()
	f := &txnFactory{}
	require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create("/k", nil, saber.Persistent, 0)).Code)

	w := &recordingNotifier{id: "c1", session: session}
	require.Equal(t, saber.CodeOK, tree.GetData("/k", w).Code)
	tree.ApplyKillSession(f.killSession(session))

	tree.ApplySetData(f.setData("/k", []byte("v"), -1))
	assert.Empty(t, w.Events())
}

func TestTree_ChildrenIndexStaysCoherent(t *testing.T) {
	tree := New()
	f := &txnFactory{}
	layout := []string{"/a", "/a/b", "/a/b/c", "/a/d", "/e"}
	for _, p := range layout {
		require.Equal(t, saber.CodeOK, tree.ApplyCreate(f.create(p, nil, saber.Persistent, 0)).Code)
	}
	require.Equal(t, saber.CodeOK, tree.ApplyDelete(f.delete("/a/b/c", -1)).Code)

	// Every live node's NumChildren agrees with GetChildren, and every
	// child path resolves.
	for _, p := range []string{"/", "/a", "/a/b", "/a/d", "/e"} {
		resp := tree.GetChildren(p, nil)
		require.Equal(t, saber.CodeOK, resp.Code, p)
		stat := tree.Exists(p, nil).Stat
		require.NotNil(t, stat, p)
		assert.Equal(t, stat.NumChildren, int32(len(resp.Children)), p)
		for _, child := range resp.Children {
			childPath := p + "/" + child
			if p == "/" {
				childPath = "/" + child
			}
			assert.Equal(t, saber.CodeOK, tree.Exists(childPath, nil).Code, childPath)
		}
	}
}
