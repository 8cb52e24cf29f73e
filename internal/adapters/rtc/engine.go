package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type EngineConfig struct {
	ICEServers []string
	// IncludeLoopback offers loopback candidates, for same-host tests.
	IncludeLoopback bool
	// DisconnectedTimeout and FailedTimeout tune ICE liveness; zero keeps pion's defaults.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
}

func DefaultICEServers() []string {
	return []string{"stun:stun.l.google.com:19302"}
}

var _ core.MediaEngine = (*Engine)(nil)

// Engine builds one PeerConnection per remote peer from a shared pion API.
type Engine struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	if cfg.DisconnectedTimeout > 0 || cfg.FailedTimeout > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, 2*time.Second)
	}

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		cfg: webrtc.Configuration{ICEServers: servers},
	}, nil
}

// trackResource is implemented by local resources that carry a pion track.
type trackResource interface {
	TrackLocal() webrtc.TrackLocal
}

func (e *Engine) NewPeer(_ context.Context, peer domain.Identity, local []core.Resource) (core.PeerMedia, error) {
	pc, err := e.api.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := newPeer(pc, peer)
	for _, r := range local {
		tr, ok := r.(trackResource)
		if !ok {
			log.Debug().Str("module", "rtc").Str("peer", string(peer)).Str("resource", r.ID()).Msg("resource has no track, skipped")
			continue
		}
		if err := p.addLocalTrack(tr.TrackLocal()); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add track %s: %w", r.ID(), err)
		}
	}
	// Receive audio even when nothing is sent.
	if len(pc.GetTransceivers()) == 0 {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}
	p.start()
	return p, nil
}
