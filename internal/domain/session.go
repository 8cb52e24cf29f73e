package domain

// SessionState is the negotiation state of one peer session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateEstablished
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer_sent"
	case StateOfferReceived:
		return "offer_received"
	case StateAnswerSent:
		return "answer_sent"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
