package app

import (
	"github.com/dkeye/meshcall/internal/domain"
)

type PublishAction int

const (
	RetryPublish PublishAction = iota
	DropMessage
	FailPeer
)

func (a PublishAction) String() string {
	switch a {
	case RetryPublish:
		return "retry"
	case DropMessage:
		return "drop"
	case FailPeer:
		return "fail_peer"
	default:
		return "unknown"
	}
}

// Policy decides what happens to an outbound signaling message the relay
// refused. attempt counts from 1.
type Policy interface {
	OnPublishFailure(msg domain.SignalingMessage, attempt int, err error) PublishAction
}

const DefaultPublishAttempts = 3

// SimplePolicy retries up to MaxAttempts and then drops the message.
type SimplePolicy struct {
	MaxAttempts int
}

func (p SimplePolicy) OnPublishFailure(_ domain.SignalingMessage, attempt int, _ error) PublishAction {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPublishAttempts
	}
	if attempt < maxAttempts {
		return RetryPublish
	}
	return DropMessage
}
