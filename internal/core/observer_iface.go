package core

//go:generate mockgen -source=observer_iface.go -destination=mocks/mock_observer.go -package=mocks

import "github.com/dkeye/meshcall/internal/domain"

// Observer is what a call-UI layer sees: peer connected, disconnected or
// failed. Relay and descriptor errors never reach it directly.
type Observer interface {
	OnSessionEstablished(room domain.RoomID, peer domain.Identity)
	OnSessionClosed(room domain.RoomID, peer domain.Identity)
	OnNegotiationFailed(room domain.RoomID, peer domain.Identity, reason error)
}

// Observers fans every event out to each element in order.
type Observers []Observer

func (os Observers) OnSessionEstablished(room domain.RoomID, peer domain.Identity) {
	for _, o := range os {
		o.OnSessionEstablished(room, peer)
	}
}

func (os Observers) OnSessionClosed(room domain.RoomID, peer domain.Identity) {
	for _, o := range os {
		o.OnSessionClosed(room, peer)
	}
}

func (os Observers) OnNegotiationFailed(room domain.RoomID, peer domain.Identity, reason error) {
	for _, o := range os {
		o.OnNegotiationFailed(room, peer, reason)
	}
}
