package domain

import "errors"

var (
	// Configuration errors are fatal to a join and surfaced synchronously.
	ErrSameIdentity       = errors.New("local and peer identity are equal")
	ErrMissingCredentials = errors.New("missing relay credentials")

	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not joined")
	ErrRoomLeft      = errors.New("room left")
	ErrBadEnvelope   = errors.New("bad signaling envelope")
	ErrSessionClosed = errors.New("session closed")
)

func IsConfigError(err error) bool {
	return errors.Is(err, ErrSameIdentity) ||
		errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrIdentityEmpty) ||
		errors.Is(err, ErrIdentityTooLong) ||
		errors.Is(err, ErrRoomIDEmpty) ||
		errors.Is(err, ErrRoomIDTooLong)
}
