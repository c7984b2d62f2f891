package community

import (
	"strings"
)

const publicIDLength = 8

// PublicID is the form of an identity shown to other users. It only hides
// the rest of the token from casual view.
func PublicID(identity string) string {
	if len(identity) <= publicIDLength {
		return identity
	}
	return identity[:publicIDLength]
}

// IsValidIdentity reports whether identity can be used as a storage key.
func IsValidIdentity(identity string) bool {
	if identity == "" || identity == "." || identity == ".." {
		return false
	}
	return !strings.ContainsAny(identity, "/\\\x00")
}
