package core

//go:generate mockgen -source=resource_iface.go -destination=mocks/mock_resource.go -package=mocks

import "context"

type ResourceKind string

const (
	ResourceAudio ResourceKind = "audio"
	ResourceVideo ResourceKind = "video"
)

// Resource is a locally acquired capture resource that must be released
// when the room is left.
type Resource interface {
	ID() string
	Kind() ResourceKind
	Release() error
}

// Muter is implemented by resources that can stop sending without being released.
type Muter interface {
	SetMuted(mute bool)
}

// Capturer acquires the local capture resources for one room.
type Capturer interface {
	Capture(ctx context.Context) ([]Resource, error)
}
