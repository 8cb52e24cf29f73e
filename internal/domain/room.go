package domain

import "errors"

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

func NewRoomID(s string) (RoomID, error) {
	if len(s) == 0 {
		return "", ErrRoomIDEmpty
	}
	if len(s) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(s), nil
}

func (r RoomID) String() string { return string(r) }

// SignalingTopic is the relay topic every member of the room publishes to.
func SignalingTopic(room RoomID) string {
	return "rooms/" + string(room) + "/signaling"
}

// SignalName is the relay message name carrying signaling envelopes.
const SignalName = "signal"
