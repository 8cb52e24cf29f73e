// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxIdentityLen = 64
	MaxRoomIDLen   = 64
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity names one participant in the relay's identity namespace.
type Identity string

// NewIdentity is a tiny helper to avoid unchecked conversions in adapters.
func NewIdentity(s string) (Identity, error) {
	if len(s) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(s) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(s), nil
}

// RandomIdentity is used when the operator does not configure one.
func RandomIdentity() Identity {
	return Identity(uuid.NewString())
}

// Less orders identities by plain byte comparison.
func (id Identity) Less(other Identity) bool { return id < other }

func (id Identity) String() string { return string(id) }
