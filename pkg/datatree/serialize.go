package datatree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cs706/saber/pkg/paths"
	"github.com/cs706/saber/pkg/saber"
)

// The serialized tree is two tables: |nodes| length-prefixed node records in
// sorted path order, then |childrenIndex| children records, also sorted. The
// order is an implementation detail but deterministic, so serializing a
// recovered tree reproduces the input byte for byte and snapshots can be
// checksummed.

type nodeRecord struct {
	Path string      `cbor:"1,keyasint"`
	Data []byte      `cbor:"2,keyasint,omitempty"`
	ACL  []saber.ACL `cbor:"3,keyasint,omitempty"`
	Stat saber.Stat  `cbor:"4,keyasint"`
}

type childrenRecord struct {
	Path     string   `cbor:"1,keyasint"`
	Children []string `cbor:"2,keyasint"`
}

// Serialize appends the whole tree to out and returns the result.
func (t *DataTree) Serialize(out []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodePaths := make([]string, 0, len(t.nodes))
	for p := range t.nodes {
		nodePaths = append(nodePaths, p)
	}
	sort.Strings(nodePaths)

	out = binary.BigEndian.AppendUint32(out, uint32(len(nodePaths)))
	for _, p := range nodePaths {
		n := t.nodes[p]
		rec, err := saber.Marshal(nodeRecord{Path: p, Data: n.Data, ACL: n.ACL, Stat: n.Stat})
		if err != nil {
			return nil, fmt.Errorf("encoding node %s: %w", p, err)
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(rec)))
		out = append(out, rec...)
	}

	indexPaths := make([]string, 0, len(t.childrenIndex))
	for p := range t.childrenIndex {
		indexPaths = append(indexPaths, p)
	}
	sort.Strings(indexPaths)

	out = binary.BigEndian.AppendUint32(out, uint32(len(indexPaths)))
	for _, p := range indexPaths {
		children := make([]string, 0, len(t.childrenIndex[p]))
		for c := range t.childrenIndex[p] {
			children = append(children, c)
		}
		sort.Strings(children)
		rec, err := saber.Marshal(childrenRecord{Path: p, Children: children})
		if err != nil {
			return nil, fmt.Errorf("encoding children of %s: %w", p, err)
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(rec)))
		out = append(out, rec...)
	}
	return out, nil
}

// Recover replaces the tree's contents with the tables serialized at data
// [offset:] and returns the offset one past them. The ephemeral index is
// rebuilt by scanning the recovered nodes.
func (t *DataTree) Recover(data []byte, offset int) (int, error) {
	nodes := map[string]*DataNode{}
	childrenIndex := map[string]map[string]struct{}{}
	ephemerals := map[uint64]map[string]struct{}{}

	nodeCount, offset, err := readCount(data, offset)
	if err != nil {
		return 0, err
	}
	for i := 0; i < nodeCount; i++ {
		var raw []byte
		raw, offset, err = readRecord(data, offset)
		if err != nil {
			return 0, err
		}
		var rec nodeRecord
		if err := saber.Unmarshal(raw, &rec); err != nil {
			return 0, fmt.Errorf("decoding node record: %w", err)
		}
		node := NewDataNode(rec.Data, rec.ACL, rec.Stat)
		nodes[rec.Path] = node
		if owner := rec.Stat.EphemeralOwner; owner != 0 {
			owned, ok := ephemerals[owner]
			if !ok {
				owned = map[string]struct{}{}
				ephemerals[owner] = owned
			}
			owned[rec.Path] = struct{}{}
		}
	}

	childCount, offset, err := readCount(data, offset)
	if err != nil {
		return 0, err
	}
	for i := 0; i < childCount; i++ {
		var raw []byte
		raw, offset, err = readRecord(data, offset)
		if err != nil {
			return 0, err
		}
		var rec childrenRecord
		if err := saber.Unmarshal(raw, &rec); err != nil {
			return 0, fmt.Errorf("decoding children record: %w", err)
		}
		node, ok := nodes[rec.Path]
		if !ok {
			return 0, fmt.Errorf("children record for unknown path %s", rec.Path)
		}
		set := map[string]struct{}{}
		for _, c := range rec.Children {
			set[c] = struct{}{}
			node.children[c] = struct{}{}
		}
		childrenIndex[rec.Path] = set
	}

	if _, ok := nodes[paths.Root]; !ok {
		return 0, fmt.Errorf("serialized tree has no root")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = nodes
	t.childrenIndex = childrenIndex
	t.ephemerals = ephemerals
	return offset, nil
}

func readCount(data []byte, offset int) (int, int, error) {
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("truncated table header at %d", offset)
	}
	return int(binary.BigEndian.Uint32(data[offset:])), offset + 4, nil
}

func readRecord(data []byte, offset int) ([]byte, int, error) {
	if offset+4 > len(data) {
		return nil, 0, fmt.Errorf("truncated record header at %d", offset)
	}
	n := int(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	if offset+n > len(data) {
		return nil, 0, fmt.Errorf("truncated record at %d", offset)
	}
	return data[offset : offset+n], offset + n, nil
}
