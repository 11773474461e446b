package saber

// Code is the status carried in every response payload. CodeOK is zero so an
// absent code reads as success.
type Code int32

const (
	CodeOK Code = iota
	CodeSystemError
	CodeRuntimeInconsistency
	CodeConnectionLoss
	CodeMarshallingError
	CodeNoNode
	CodeNoAuth
	CodeBadVersion
	CodeNoChildrenForEphemerals
	CodeNodeExists
	CodeNotEmpty
	CodeSessionExpired
	CodeInvalidACL
	CodeAuthFailed
	CodeClientClosed
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeSystemError:
		return "SYSTEM_ERROR"
	case CodeRuntimeInconsistency:
		return "RUNTIME_INCONSISTENCY"
	case CodeConnectionLoss:
		return "CONNECTION_LOSS"
	case CodeMarshallingError:
		return "MARSHALLING_ERROR"
	case CodeNoNode:
		return "NO_NODE"
	case CodeNoAuth:
		return "NO_AUTH"
	case CodeBadVersion:
		return "BAD_VERSION"
	case CodeNoChildrenForEphemerals:
		return "NO_CHILDREN_FOR_EPHEMERALS"
	case CodeNodeExists:
		return "NODE_EXISTS"
	case CodeNotEmpty:
		return "NOT_EMPTY"
	case CodeSessionExpired:
		return "SESSION_EXPIRED"
	case CodeInvalidACL:
		return "INVALID_ACL"
	case CodeAuthFailed:
		return "AUTH_FAILED"
	case CodeClientClosed:
		return "CLIENT_CLOSED"
	default:
		return "UNKNOWN"
	}
}

// NodeKind selects the lifetime and naming behavior of a node at creation.
type NodeKind int32

const (
	Persistent NodeKind = iota
	Ephemeral
	PersistentSequential
	EphemeralSequential
)

// IsEphemeral reports whether nodes of this kind are bound to the creating
// session's lifetime.
func (k NodeKind) IsEphemeral() bool {
	return k == Ephemeral || k == EphemeralSequential
}

// IsSequential reports whether nodes of this kind get the 10-digit counter
// suffix appended to their name.
func (k NodeKind) IsSequential() bool {
	return k == PersistentSequential || k == EphemeralSequential
}

// Stat is the metadata attached to every node.
type Stat struct {
	Czxid          int64  `cbor:"1,keyasint"`
	Mzxid          int64  `cbor:"2,keyasint"`
	Ctime          int64  `cbor:"3,keyasint"`
	Mtime          int64  `cbor:"4,keyasint"`
	Version        int32  `cbor:"5,keyasint"`
	Cversion       int32  `cbor:"6,keyasint"`
	Aversion       int32  `cbor:"7,keyasint"`
	EphemeralOwner uint64 `cbor:"8,keyasint"`
	DataLength     int32  `cbor:"9,keyasint"`
	NumChildren    int32  `cbor:"10,keyasint"`
	Pzxid          int64  `cbor:"11,keyasint"`
}

// ConnectRequest is sent immediately after TCP establishment. SessionID is 0
// on the very first connect and echoes the server-assigned id on reconnects.
type ConnectRequest struct {
	SessionID uint64 `cbor:"1,keyasint"`
	TimeoutMs uint32 `cbor:"2,keyasint"`
}

// ConnectResponse carries the possibly-new session id and the negotiated
// timeout. SessionID 0 means the echoed session has expired.
type ConnectResponse struct {
	SessionID uint64 `cbor:"1,keyasint"`
	TimeoutMs uint32 `cbor:"2,keyasint"`
}

type CreateRequest struct {
	Path string   `cbor:"1,keyasint"`
	Data []byte   `cbor:"2,keyasint,omitempty"`
	ACL  []ACL    `cbor:"3,keyasint,omitempty"`
	Kind NodeKind `cbor:"4,keyasint"`
}

type CreateResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
}

type DeleteRequest struct {
	Path string `cbor:"1,keyasint"`
	// Version is the expected data version, or -1 to delete unconditionally.
	Version int32 `cbor:"2,keyasint"`
}

type DeleteResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
}

type ExistsRequest struct {
	Path  string `cbor:"1,keyasint"`
	Watch bool   `cbor:"2,keyasint,omitempty"`
}

type ExistsResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
	Stat *Stat  `cbor:"3,keyasint,omitempty"`
}

type GetDataRequest struct {
	Path  string `cbor:"1,keyasint"`
	Watch bool   `cbor:"2,keyasint,omitempty"`
}

type GetDataResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
	Data []byte `cbor:"3,keyasint,omitempty"`
	Stat *Stat  `cbor:"4,keyasint,omitempty"`
}

type SetDataRequest struct {
	Path string `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint,omitempty"`
	// Version is the expected data version, or -1 to overwrite unconditionally.
	Version int32 `cbor:"3,keyasint"`
}

type SetDataResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
	Stat *Stat  `cbor:"3,keyasint,omitempty"`
}

type GetACLRequest struct {
	Path string `cbor:"1,keyasint"`
}

type GetACLResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
	ACL  []ACL  `cbor:"3,keyasint,omitempty"`
	Stat *Stat  `cbor:"4,keyasint,omitempty"`
}

type SetACLRequest struct {
	Path string `cbor:"1,keyasint"`
	ACL  []ACL  `cbor:"2,keyasint,omitempty"`
	// Version is the expected ACL version, or -1 to overwrite unconditionally.
	Version int32 `cbor:"3,keyasint"`
}

type SetACLResponse struct {
	Code Code   `cbor:"1,keyasint"`
	Path string `cbor:"2,keyasint"`
	Stat *Stat  `cbor:"3,keyasint,omitempty"`
}

type GetChildrenRequest struct {
	Path  string `cbor:"1,keyasint"`
	Watch bool   `cbor:"2,keyasint,omitempty"`
}

type GetChildrenResponse struct {
	Code     Code     `cbor:"1,keyasint"`
	Path     string   `cbor:"2,keyasint"`
	Children []string `cbor:"3,keyasint,omitempty"`
}

// Master is the payload of an MT_MASTER redirect: the endpoint currently
// holding leadership.
type Master struct {
	Host string `cbor:"1,keyasint"`
	Port int32  `cbor:"2,keyasint"`
}

// SetWatchesRequest re-registers the watches a client held before a reconnect
// so the new master rebuilds its tables.
type SetWatchesRequest struct {
	RelativeZxid int64    `cbor:"1,keyasint"`
	DataWatches  []string `cbor:"2,keyasint,omitempty"`
	ExistWatches []string `cbor:"3,keyasint,omitempty"`
	ChildWatches []string `cbor:"4,keyasint,omitempty"`
}
