package datatree

import (
	"sort"

	"github.com/cs706/saber/pkg/saber"
)

// DataNode is one node of the namespace: its payload, its ACL, its stat, and
// the index of its children's segment names. Nodes are only ever touched with
// the tree's lock held.
type DataNode struct {
	Data []byte
	ACL  []saber.ACL
	Stat saber.Stat

	children map[string]struct{}
}

func NewDataNode(data []byte, acl []saber.ACL, stat saber.Stat) *DataNode {
	stat.DataLength = int32(len(data))
	return &DataNode{
		Data:     data,
		ACL:      acl,
		Stat:     stat,
		children: map[string]struct{}{},
	}
}

// AddChild records a child segment. It reports whether the segment was new
// and keeps NumChildren in sync.
func (n *DataNode) AddChild(name string) bool {
	if _, ok := n.children[name]; ok {
		return false
	}
	n.children[name] = struct{}{}
	n.Stat.NumChildren = int32(len(n.children))
	return true
}

// RemoveChild drops a child segment, keeping NumChildren in sync.
func (n *DataNode) RemoveChild(name string) bool {
	if _, ok := n.children[name]; !ok {
		return false
	}
	delete(n.children, name)
	n.Stat.NumChildren = int32(len(n.children))
	return true
}

func (n *DataNode) HasChild(name string) bool {
	_, ok := n.children[name]
	return ok
}

func (n *DataNode) NumChildren() int {
	return len(n.children)
}

// Children returns the child segment names in lexicographic order, which is
// the stable order GetChildren responses are required to use.
func (n *DataNode) Children() []string {
	out := make([]string, 0, len(n.children))
	for name := range n.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StatCopy returns a detached copy safe to hand out past the tree lock.
func (n *DataNode) StatCopy() *saber.Stat {
	s := n.Stat
	return &s
}

// IsEphemeral reports whether the node is bound to a session.
func (n *DataNode) IsEphemeral() bool {
	return n.Stat.EphemeralOwner != 0
}
