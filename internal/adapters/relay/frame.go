package relay

import (
	"encoding/json"

	"github.com/dkeye/meshcall/internal/domain"
)

// Frame actions. Requests carry an id and are answered by an ack with the
// same id; message and presence frames are pushed by the relay.
const (
	ActionAttach            = "attach"
	ActionDetach            = "detach"
	ActionPublish           = "publish"
	ActionSubscribe         = "subscribe"
	ActionSubscribePresence = "presence_subscribe"
	ActionPresenceEnter     = "presence_enter"
	ActionPresenceLeave     = "presence_leave"
	ActionPresenceSnapshot  = "presence_snapshot"

	ActionAck      = "ack"
	ActionMessage  = "message"
	ActionPresence = "presence"
)

// Frame is the single wire shape of the websocket relay protocol. For
// presence frames Name holds the presence action.
type Frame struct {
	Action   string            `json:"action"`
	ID       string            `json:"id,omitempty"`
	Topic    string            `json:"topic,omitempty"`
	Name     string            `json:"name,omitempty"`
	Identity domain.Identity   `json:"identity,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Members  []domain.Identity `json:"members,omitempty"`
	Error    string            `json:"error,omitempty"`
}
