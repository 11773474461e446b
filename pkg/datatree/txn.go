package datatree

import "github.com/cs706/saber/pkg/saber"

// Op enumerates the mutations the consensus layer can commit.
type Op int32

const (
	OpCreate Op = iota
	OpDelete
	OpSetData
	OpSetACL
	OpKillSession
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpDelete:
		return "DELETE"
	case OpSetData:
		return "SETDATA"
	case OpSetACL:
		return "SETACL"
	case OpKillSession:
		return "KILL_SESSION"
	default:
		return "UNKNOWN"
	}
}

// Txn is a committed mutation: the op, its arguments, the session that issued
// it, and the zxid the consensus layer assigned at commit. Txns apply
// idempotently to every replica's tree.
type Txn struct {
	Zxid      int64          `cbor:"1,keyasint"`
	SessionID uint64         `cbor:"2,keyasint"`
	Time      int64          `cbor:"3,keyasint"`
	Op        Op             `cbor:"4,keyasint"`
	Path      string         `cbor:"5,keyasint,omitempty"`
	Data      []byte         `cbor:"6,keyasint,omitempty"`
	ACL       []saber.ACL    `cbor:"7,keyasint,omitempty"`
	Kind      saber.NodeKind `cbor:"8,keyasint"`
	Version   int32          `cbor:"9,keyasint"`
}
