package orch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

const DefaultRetryBackoff = 100 * time.Millisecond

type Options struct {
	Relay  core.Relay
	Engine core.MediaEngine
	// Capturer acquires local media on join. Nil joins without local media.
	Capturer core.Capturer
	Observer core.Observer
	Policy   app.Policy

	CandidateLimit int
	RetryBackoff   time.Duration
}

// Orchestrator drives the mesh of negotiation sessions for every room the
// local participant has joined. It reacts to presence changes and inbound
// signaling from the relay, and to events raised by the media engine.
type Orchestrator struct {
	rooms          *app.RoomManager
	relay          core.Relay
	engine         core.MediaEngine
	capturer       core.Capturer
	observer       core.Observer
	policy         app.Policy
	candidateLimit int
	backoff        time.Duration

	audioMuted atomic.Bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		rooms:          app.NewRoomManager(),
		relay:          opts.Relay,
		engine:         opts.Engine,
		capturer:       opts.Capturer,
		observer:       opts.Observer,
		policy:         opts.Policy,
		candidateLimit: opts.CandidateLimit,
		backoff:        opts.RetryBackoff,
	}
	if o.observer == nil {
		o.observer = core.Observers(nil)
	}
	if o.policy == nil {
		o.policy = app.SimplePolicy{MaxAttempts: app.DefaultPublishAttempts}
	}
	if o.candidateLimit <= 0 {
		o.candidateLimit = core.DefaultCandidateLimit
	}
	if o.backoff <= 0 {
		o.backoff = DefaultRetryBackoff
	}
	return o
}

// MembershipHandle is returned by JoinRoom. It stays valid after the room
// is left; its accessors then report the final state.
type MembershipHandle struct {
	o *Orchestrator
	m *app.Membership
}

func (h *MembershipHandle) Room() domain.RoomID             { return h.m.Room }
func (h *MembershipHandle) Local() domain.Identity          { return h.m.Local }
func (h *MembershipHandle) Sessions() []core.SessionInfo    { return h.m.Snapshot() }
func (h *MembershipHandle) Left() bool                      { return h.m.Closed() }
func (h *MembershipHandle) Leave(ctx context.Context) error { return h.o.leave(ctx, h.m) }

type RoomStatus struct {
	Room     domain.RoomID      `json:"room"`
	Local    domain.Identity    `json:"local"`
	Sessions []core.SessionInfo `json:"sessions"`
}

func (o *Orchestrator) Rooms() []RoomStatus {
	all := o.rooms.All()
	out := make([]RoomStatus, 0, len(all))
	for _, m := range all {
		out = append(out, RoomStatus{Room: m.Room, Local: m.Local, Sessions: m.Snapshot()})
	}
	return out
}

// ToggleLocalAudio mutes or unmutes local audio in every joined room. The
// setting also applies to rooms joined later.
func (o *Orchestrator) ToggleLocalAudio(mute bool) {
	o.audioMuted.Store(mute)
	for _, m := range o.rooms.All() {
		m.Media.SetAudioMuted(mute)
	}
	log.Info().Str("module", "orch").Bool("mute", mute).Msg("local audio toggled")
}

func (o *Orchestrator) AudioMuted() bool { return o.audioMuted.Load() }

// Close leaves every joined room.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs error
	for _, m := range o.rooms.All() {
		errs = multierr.Append(errs, o.leave(ctx, m))
	}
	return errs
}
