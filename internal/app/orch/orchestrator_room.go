package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/media"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

// JoinRoom joins room as local and starts a session with every peer
// already present. Configuration errors fail the join and leave nothing
// behind. A LeaveRoom racing the join makes it return domain.ErrRoomLeft.
func (o *Orchestrator) JoinRoom(ctx context.Context, room domain.RoomID, local domain.Identity) (*MembershipHandle, error) {
	if _, err := domain.NewRoomID(string(room)); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	if _, err := domain.NewIdentity(string(local)); err != nil {
		return nil, fmt.Errorf("join %s: %w", room, err)
	}

	mgr := media.NewManager()
	mgr.SetAudioMuted(o.audioMuted.Load())
	m := app.NewMembership(room, local, mgr)
	if err := o.rooms.Create(m); err != nil {
		return nil, err
	}

	logger := log.With().Str("module", "orch").Str("room", string(room)).Str("local", string(local)).Logger()
	logger.Info().Msg("joining room")

	// In-flight steps observe a concurrent leave through ctx as well as the closed flag.
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(m.Context(), stop)
	defer unregister()

	if err := o.join(ctx, m); err != nil {
		if m.Closed() {
			err = fmt.Errorf("join %s: %w", room, domain.ErrRoomLeft)
		}
		o.abortJoin(m)
		logger.Warn().Err(err).Msg("join failed")
		return nil, err
	}
	logger.Info().Int("sessions", m.Count()).Msg("joined room")
	return &MembershipHandle{o: o, m: m}, nil
}

func (o *Orchestrator) join(ctx context.Context, m *app.Membership) error {
	if o.capturer != nil {
		resources, err := o.capturer.Capture(ctx)
		for _, r := range resources {
			if rerr := m.Media.Register(r); rerr != nil {
				log.Error().Err(rerr).Str("module", "orch").Str("room", string(m.Room)).Msg("register local media")
			}
		}
		if err != nil {
			return fmt.Errorf("capture local media: %w", err)
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"attach", func() error { return o.relay.Attach(ctx, m.Topic) }},
		{"subscribe", func() error {
			return o.relay.Subscribe(ctx, m.Topic, domain.SignalName, func(_ string, payload []byte) {
				o.onRelayMessage(m, payload)
			})
		}},
		{"subscribe presence", func() error {
			return o.relay.SubscribePresence(ctx, m.Topic, func(ev domain.PresenceEvent) {
				o.onPresence(m, ev)
			})
		}},
		{"enter presence", func() error { return o.relay.PresenceEnter(ctx, m.Topic, m.Local) }},
	}
	for _, step := range steps {
		// A leave tears the topic down under the same lock, so a step
		// either finishes before that teardown or never runs.
		unlock := o.rooms.Lock(m.Room)
		if m.Closed() {
			unlock()
			return domain.ErrRoomLeft
		}
		err := step.run()
		unlock()
		if err != nil {
			return fmt.Errorf("%s %s: %w", step.name, m.Topic, err)
		}
	}

	if m.Closed() {
		return domain.ErrRoomLeft
	}
	peers, err := o.relay.PresenceSnapshot(ctx, m.Topic)
	if err != nil {
		return fmt.Errorf("presence snapshot %s: %w", m.Topic, err)
	}
	for _, peer := range peers {
		if peer == m.Local {
			continue
		}
		if err := o.addPeer(ctx, m, peer); err != nil {
			return err
		}
	}
	return nil
}

// abortJoin undoes a failed join. When a concurrent leave already ran, the
// relay side is done and may belong to a newer membership of the room by
// now; only local media is left to release.
func (o *Orchestrator) abortJoin(m *app.Membership) {
	if !m.Closed() {
		if err := o.leave(context.Background(), m); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("room", string(m.Room)).Msg("teardown after failed join")
		}
		return
	}
	if err := m.Media.ReleaseAll(); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(m.Room)).Msg("release local media")
	}
}

// LeaveRoom closes every session of room, leaves presence, detaches from
// the topic and releases local media. Local media is released even when
// an earlier step fails or panics.
func (o *Orchestrator) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	m, ok := o.rooms.Get(room)
	if !ok {
		return fmt.Errorf("leave %s: %w", room, domain.ErrNotJoined)
	}
	return o.leave(ctx, m)
}

func (o *Orchestrator) leave(ctx context.Context, m *app.Membership) (errs error) {
	if !m.Close() {
		return nil
	}
	// Held until the relay teardown is done so a rejoin of the room
	// cannot attach before this detach.
	unlock := o.rooms.Lock(m.Room)
	defer unlock()
	o.rooms.RemoveIf(m)
	logger := log.With().Str("module", "orch").Str("room", string(m.Room)).Logger()

	defer func() {
		if err := m.Media.ReleaseAll(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release local media: %w", err))
		}
		logger.Info().Err(errs).Msg("left room")
	}()

	sessions := m.Drain()
	var wg conc.WaitGroup
	for _, s := range sessions {
		wg.Go(func() {
			if err := s.Close(); err != nil {
				logger.Warn().Err(err).Str("peer", string(s.Peer())).Msg("close session")
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		logger.Error().Err(r.AsError()).Msg("panic while closing sessions")
	}
	for _, s := range sessions {
		o.observer.OnSessionClosed(m.Room, s.Peer())
	}

	if err := o.relay.PresenceLeave(ctx, m.Topic); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("leave presence %s: %w", m.Topic, err))
	}
	if err := o.relay.Detach(ctx, m.Topic); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("detach %s: %w", m.Topic, err))
	}
	return errs
}

// OnPeerJoined starts a session with peer unless one already exists.
func (o *Orchestrator) OnPeerJoined(ctx context.Context, room domain.RoomID, peer domain.Identity) error {
	m, ok := o.rooms.Get(room)
	if !ok {
		return fmt.Errorf("peer joined %s: %w", room, domain.ErrNotJoined)
	}
	if peer == m.Local {
		return nil
	}
	return o.addPeer(ctx, m, peer)
}

// OnPeerLeft closes and forgets the session with peer.
func (o *Orchestrator) OnPeerLeft(room domain.RoomID, peer domain.Identity) error {
	m, ok := o.rooms.Get(room)
	if !ok {
		return fmt.Errorf("peer left %s: %w", room, domain.ErrNotJoined)
	}
	o.removePeer(m, peer)
	return nil
}

func (o *Orchestrator) onPresence(m *app.Membership, ev domain.PresenceEvent) {
	if m.Closed() || ev.Identity == m.Local {
		return
	}
	switch ev.Action {
	case domain.PresenceEnter:
		if err := o.addPeer(m.Context(), m, ev.Identity); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(ev.Identity)).Msg("peer joined")
		}
	case domain.PresenceLeave:
		o.removePeer(m, ev.Identity)
	}
}

func (o *Orchestrator) addPeer(ctx context.Context, m *app.Membership, peer domain.Identity) error {
	s, created, err := o.sessionFor(m, peer)
	if err != nil || !created {
		return err
	}
	step, err := s.Start(ctx)
	if err != nil {
		o.failPeer(m, s, err)
		return nil
	}
	o.deliver(ctx, m, s, step)
	return nil
}

func (o *Orchestrator) removePeer(m *app.Membership, peer domain.Identity) {
	s, ok := m.Remove(peer)
	if !ok {
		return
	}
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(peer)).Msg("close session")
	}
	log.Info().Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(peer)).Msg("peer left")
	o.observer.OnSessionClosed(m.Room, peer)
}

// sessionFor returns the session with peer, creating it when absent.
func (o *Orchestrator) sessionFor(m *app.Membership, peer domain.Identity) (*core.Session, bool, error) {
	initiator, err := core.DecideInitiator(m.Local, peer)
	if err != nil {
		return nil, false, err
	}
	if m.Closed() {
		return nil, false, domain.ErrRoomLeft
	}
	s, created := m.GetOrCreate(peer, func() *core.Session {
		return o.newSession(m, peer, initiator)
	})
	if s == nil {
		return nil, false, domain.ErrRoomLeft
	}
	return s, created, nil
}

func (o *Orchestrator) newSession(m *app.Membership, peer domain.Identity, initiator bool) *core.Session {
	var s *core.Session
	s = core.NewSession(core.SessionConfig{
		Room:           m.Room,
		Local:          m.Local,
		Peer:           peer,
		Initiator:      initiator,
		Engine:         o.engine,
		LocalMedia:     m.Media.Resources(),
		CandidateLimit: o.candidateLimit,
		BindMedia: func(pm core.PeerMedia) {
			o.bindMedia(m, s, pm)
		},
	})
	return s
}
