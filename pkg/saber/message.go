package saber

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MessageType tags every frame exchanged between client and server. The tag
// lives inside the frame payload, not the frame header, so the framing layer
// stays oblivious to message semantics.
type MessageType int32

const (
	MTConnect MessageType = iota
	MTNotification
	MTCreate
	MTDelete
	MTExists
	MTGetData
	MTSetData
	MTGetACL
	MTSetACL
	MTGetChildren
	MTMaster
	MTPing
	MTSetWatches
	MTClose
)

func (t MessageType) String() string {
	switch t {
	case MTConnect:
		return "CONNECT"
	case MTNotification:
		return "NOTIFICATION"
	case MTCreate:
		return "CREATE"
	case MTDelete:
		return "DELETE"
	case MTExists:
		return "EXISTS"
	case MTGetData:
		return "GETDATA"
	case MTSetData:
		return "SETDATA"
	case MTGetACL:
		return "GETACL"
	case MTSetACL:
		return "SETACL"
	case MTGetChildren:
		return "GETCHILDREN"
	case MTMaster:
		return "MASTER"
	case MTPing:
		return "PING"
	case MTSetWatches:
		return "SET_WATCHES"
	case MTClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Message is the envelope for every frame on the wire. Data holds the CBOR
// encoding of the typed payload for Type. ExtraData carries the client's
// chroot prefix on requests and is otherwise empty.
type Message struct {
	Type      MessageType `cbor:"1,keyasint"`
	Data      []byte      `cbor:"2,keyasint,omitempty"`
	ExtraData []byte      `cbor:"3,keyasint,omitempty"`
}

// Marshal encodes a message envelope or typed payload for the wire.
func Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal decodes data produced by Marshal into v.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// NewMessage builds an envelope around the given payload. It returns an error
// for payloads that CBOR cannot encode, which would be a programming error.
func NewMessage(t MessageType, payload any) (*Message, error) {
	data, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	return &Message{Type: t, Data: data}, nil
}
