package saber

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
)

// Perm is a bitmask over the per-node permissions.
type Perm int32

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermCreate
	PermDelete
	PermAdmin
	PermAll Perm = 0x1f
)

// ID identifies a requester under some authentication scheme.
type ID struct {
	Scheme string `cbor:"1,keyasint"`
	ID     string `cbor:"2,keyasint"`
}

// ACL grants Perms to the requesters matched by Scheme/ID.
type ACL struct {
	Perms  Perm   `cbor:"1,keyasint"`
	Scheme string `cbor:"2,keyasint"`
	ID     string `cbor:"3,keyasint"`
}

// WorldACL grants perms to everyone.
func WorldACL(perms Perm) []ACL {
	return []ACL{{Perms: perms, Scheme: "world", ID: "anyone"}}
}

// AuthACL grants perms to any authenticated requester.
func AuthACL(perms Perm) []ACL {
	return []ACL{{Perms: perms, Scheme: "auth", ID: ""}}
}

// DigestACL grants perms to the user identified by the sha1 digest of
// user:password, matching the id a digest-authenticated session carries.
func DigestACL(perms Perm, user, password string) []ACL {
	h := sha1.Sum([]byte(user + ":" + password))
	digest := base64.StdEncoding.EncodeToString(h[:])
	return []ACL{{Perms: perms, Scheme: "digest", ID: fmt.Sprintf("%s:%s", user, digest)}}
}

// ValidateACL rejects lists a node must never carry: empty lists, entries
// granting nothing, and entries outside the known permission bits.
func ValidateACL(acl []ACL) bool {
	if len(acl) == 0 {
		return false
	}
	for _, a := range acl {
		if a.Perms == 0 || a.Perms&^PermAll != 0 {
			return false
		}
		if a.Scheme == "" {
			return false
		}
	}
	return true
}

// Match reports whether the ACL entry applies to the given requester id.
func (a ACL) Match(id ID) bool {
	switch a.Scheme {
	case "world":
		return a.ID == "anyone"
	case "auth":
		// Grants to any id carried by an authenticated session.
		return id.Scheme != "world"
	default:
		return a.Scheme == id.Scheme && a.ID == id.ID
	}
}

// CheckACL reports whether any entry of acl grants perm to any of ids.
func CheckACL(acl []ACL, perm Perm, ids []ID) bool {
	if len(acl) == 0 {
		// A node with no ACL is open. The tree never creates one, but a
		// recovered snapshot from an older build may carry them.
		return true
	}
	for _, a := range acl {
		if a.Perms&perm == 0 {
			continue
		}
		for _, id := range ids {
			if a.Match(id) {
				return true
			}
		}
	}
	return false
}
