package domain

type PresenceAction string

const (
	PresenceEnter PresenceAction = "enter"
	PresenceLeave PresenceAction = "leave"
)

// PresenceEvent reports a membership change on a relay topic.
type PresenceEvent struct {
	Topic    string
	Identity Identity
	Action   PresenceAction
}
