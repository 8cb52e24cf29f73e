package core

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

type MediaState int

const (
	MediaConnecting MediaState = iota
	MediaConnected
	MediaFailed
	MediaClosed
)

func (s MediaState) String() string {
	switch s {
	case MediaConnecting:
		return "connecting"
	case MediaConnected:
		return "connected"
	case MediaFailed:
		return "failed"
	case MediaClosed:
		return "closed"
	}
	return "unknown"
}

// MediaEngine creates the media half of a negotiation session. Codec
// negotiation and transport internals stay behind it.
type MediaEngine interface {
	// NewPeer creates the media session for one remote peer and attaches
	// the local capture resources it can send.
	NewPeer(ctx context.Context, peer domain.Identity, local []Resource) (PeerMedia, error)
}

type PeerMedia interface {
	CreateOffer(ctx context.Context) (domain.Descriptor, error)
	CreateAnswer(ctx context.Context) (domain.Descriptor, error)
	// ApplyRemote sets the remote offer or answer.
	ApplyRemote(domain.Descriptor) error
	// AddCandidate applies a remote network path. Only valid after ApplyRemote.
	AddCandidate(domain.Candidate) error
	// OnLocalCandidate sets a callback for newly gathered local candidates.
	OnLocalCandidate(func(domain.Candidate))
	// OnStateChange sets a callback for connectivity changes.
	OnStateChange(func(MediaState))
	// Close should stop all underlying media resources.
	Close() error
}
