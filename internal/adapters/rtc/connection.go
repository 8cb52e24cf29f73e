package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var _ core.PeerMedia = (*Peer)(nil)

// Peer is the media half of one negotiation session. Descriptors travel as
// JSON of webrtc.SessionDescription, candidates as JSON of
// webrtc.ICECandidateInit.
type Peer struct {
	pc   *webrtc.PeerConnection
	peer domain.Identity

	mu      sync.RWMutex
	onCand  func(domain.Candidate)
	onState func(core.MediaState)
	closed  bool
}

func newPeer(pc *webrtc.PeerConnection, peer domain.Identity) *Peer {
	return &Peer{pc: pc, peer: peer}
}

func (p *Peer) start() {
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		blob, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("peer", string(p.peer)).Msg("encode candidate")
			return
		}
		p.mu.RLock()
		fn := p.onCand
		p.mu.RUnlock()
		if fn != nil {
			fn(domain.Candidate{Peer: p.peer, Blob: blob})
		}
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(p.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		state, ok := mapState(s)
		if !ok {
			return
		}
		p.mu.RLock()
		fn := p.onState
		p.mu.RUnlock()
		if fn != nil {
			fn(state)
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(p.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		go drain(track)
	})
}

// drain keeps the interceptors fed for a remote track nobody plays back.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func mapState(s webrtc.PeerConnectionState) (core.MediaState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting:
		return core.MediaConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return core.MediaConnected, true
	case webrtc.PeerConnectionStateFailed:
		return core.MediaFailed, true
	case webrtc.PeerConnectionStateClosed:
		return core.MediaClosed, true
	}
	return 0, false
}

func (p *Peer) addLocalTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// RTCP must be read for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) CreateOffer(_ context.Context) (domain.Descriptor, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("create offer: %w", err)
	}
	return p.setLocal(domain.KindOffer, offer)
}

func (p *Peer) CreateAnswer(_ context.Context) (domain.Descriptor, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("create answer: %w", err)
	}
	return p.setLocal(domain.KindAnswer, answer)
}

// setLocal applies desc; candidates then trickle through OnLocalCandidate.
func (p *Peer) setLocal(kind domain.SignalKind, desc webrtc.SessionDescription) (domain.Descriptor, error) {
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return domain.Descriptor{}, fmt.Errorf("set local %s: %w", kind, err)
	}
	blob, err := json.Marshal(desc)
	if err != nil {
		return domain.Descriptor{}, err
	}
	return domain.Descriptor{Kind: kind, Blob: blob}, nil
}

func (p *Peer) ApplyRemote(d domain.Descriptor) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(d.Blob, &desc); err != nil {
		return fmt.Errorf("decode remote %s: %w", d.Kind, err)
	}
	want := webrtc.SDPTypeOffer
	if d.Kind == domain.KindAnswer {
		want = webrtc.SDPTypeAnswer
	}
	if desc.Type != want {
		return fmt.Errorf("remote %s carries sdp type %s", d.Kind, desc.Type)
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", d.Kind, err)
	}
	return nil
}

func (p *Peer) AddCandidate(c domain.Candidate) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(c.Blob, &ci); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return p.pc.AddICECandidate(ci)
}

func (p *Peer) OnLocalCandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCand = fn
}

func (p *Peer) OnStateChange(fn func(core.MediaState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(p.peer)).Msg("close error")
		return err
	}
	log.Info().Str("module", "rtc").Str("peer", string(p.peer)).Msg("closed")
	return nil
}
