package media

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateReleased
)

var _ core.Resource = (*LocalTrack)(nil)
var _ core.Muter = (*LocalTrack)(nil)

// LocalTrack is a captured local track shared by every peer session of a
// room. Muting keeps the track negotiated but stops writing packets.
type LocalTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	kind  core.ResourceKind
	state atomic.Int32 // Zero by default (TrackStateOk)

	stop    func() error
	once    sync.Once
	stopErr error
}

func NewLocalTrack(kind core.ResourceKind, track *webrtc.TrackLocalStaticRTP, stop func() error) *LocalTrack {
	return &LocalTrack{Track: track, kind: kind, stop: stop}
}

func (t *LocalTrack) ID() string              { return t.Track.ID() }
func (t *LocalTrack) Kind() core.ResourceKind { return t.kind }

// TrackLocal exposes the pion track to the media engine.
func (t *LocalTrack) TrackLocal() webrtc.TrackLocal { return t.Track }

func (t *LocalTrack) GetState() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) SetMuted(mute bool) {
	next := int32(TrackStateOk)
	if mute {
		next = int32(TrackStateMuted)
	}
	for {
		cur := t.state.Load()
		if cur == int32(TrackStateReleased) {
			return
		}
		if t.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// WriteRTP forwards pkt unless the track is muted. A released track returns io.ErrClosedPipe.
func (t *LocalTrack) WriteRTP(pkt *rtp.Packet) error {
	switch t.GetState() {
	case TrackStateReleased:
		return io.ErrClosedPipe
	case TrackStateMuted:
		return nil
	}
	return t.Track.WriteRTP(pkt)
}

func (t *LocalTrack) Release() error {
	t.once.Do(func() {
		t.state.Store(int32(TrackStateReleased))
		if t.stop != nil {
			t.stopErr = t.stop()
		}
	})
	return t.stopErr
}
