package domain

import (
	"encoding/json"
	"fmt"
)

type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate:
		return true
	}
	return false
}

// Descriptor is an opaque offer or answer blob produced by the media engine.
type Descriptor struct {
	Kind SignalKind
	Blob json.RawMessage
}

// Candidate is an opaque network path. Peer is the remote identity of the
// session it belongs to, seen from the side holding it.
type Candidate struct {
	Peer Identity
	Blob json.RawMessage
}

// SignalingMessage is the envelope published on a room topic. The relay
// fans it out to every subscriber; receivers filter on TargetIdentity.
type SignalingMessage struct {
	SenderIdentity Identity        `json:"senderIdentity"`
	TargetIdentity Identity        `json:"targetIdentity"`
	Kind           SignalKind      `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

func NewDescriptorMessage(from, to Identity, d Descriptor) SignalingMessage {
	return SignalingMessage{SenderIdentity: from, TargetIdentity: to, Kind: d.Kind, Payload: d.Blob}
}

func NewCandidateMessage(from, to Identity, c Candidate) SignalingMessage {
	return SignalingMessage{SenderIdentity: from, TargetIdentity: to, Kind: KindCandidate, Payload: c.Blob}
}

func (m SignalingMessage) AddressedTo(local Identity) bool {
	return m.TargetIdentity == local
}

// Descriptor returns the payload as a descriptor; only valid for offers and answers.
func (m SignalingMessage) Descriptor() Descriptor {
	return Descriptor{Kind: m.Kind, Blob: m.Payload}
}

// Candidate returns the payload as a candidate of the receiver's session with the sender.
func (m SignalingMessage) Candidate() Candidate {
	return Candidate{Peer: m.SenderIdentity, Blob: m.Payload}
}

func (m SignalingMessage) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrBadEnvelope, m.Kind)
	}
	if m.SenderIdentity == "" || m.TargetIdentity == "" {
		return fmt.Errorf("%w: missing sender or target", ErrBadEnvelope)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadEnvelope)
	}
	return nil
}

func (m SignalingMessage) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func DecodeSignalingMessage(data []byte) (SignalingMessage, error) {
	var m SignalingMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return SignalingMessage{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if err := m.Validate(); err != nil {
		return SignalingMessage{}, err
	}
	return m, nil
}
