package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

var errMediaFailed = errors.New("media connection failed")

// OnSignalingMessage routes msg to the session with its sender, creating
// the session first when the message beats the presence event.
func (o *Orchestrator) OnSignalingMessage(ctx context.Context, room domain.RoomID, msg domain.SignalingMessage) error {
	m, ok := o.rooms.Get(room)
	if !ok {
		return fmt.Errorf("signal for %s: %w", room, domain.ErrNotJoined)
	}
	return o.handleSignal(ctx, m, msg)
}

func (o *Orchestrator) onRelayMessage(m *app.Membership, payload []byte) {
	msg, err := domain.DecodeSignalingMessage(payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Msg("undecodable signaling message dropped")
		return
	}
	if err := o.handleSignal(m.Context(), m, msg); err != nil && !errors.Is(err, domain.ErrRoomLeft) {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Msg("signaling message")
	}
}

func (o *Orchestrator) handleSignal(ctx context.Context, m *app.Membership, msg domain.SignalingMessage) error {
	if !msg.AddressedTo(m.Local) || msg.SenderIdentity == m.Local {
		return nil
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	logger := log.With().
		Str("module", "orch").
		Str("room", string(m.Room)).
		Str("peer", string(msg.SenderIdentity)).
		Str("kind", string(msg.Kind)).
		Logger()
	logger.Debug().Msg("signaling message")

	s, created, err := o.sessionFor(m, msg.SenderIdentity)
	if err != nil {
		return err
	}
	if created {
		step, err := s.Start(ctx)
		if err != nil {
			o.failPeer(m, s, err)
			return nil
		}
		o.deliver(ctx, m, s, step)
	}

	var step core.Step
	switch msg.Kind {
	case domain.KindOffer:
		step, err = s.HandleOffer(ctx, msg.Descriptor())
	case domain.KindAnswer:
		step, err = s.HandleAnswer(ctx, msg.Descriptor())
	case domain.KindCandidate:
		s.HandleCandidate(msg.Candidate())
		return nil
	}
	if errors.Is(err, domain.ErrSessionClosed) {
		// Raced a teardown of the same session.
		logger.Debug().Err(err).Msg("signaling message for closed session dropped")
		return nil
	}
	if err != nil {
		o.failPeer(m, s, err)
		return nil
	}
	o.deliver(ctx, m, s, step)
	return nil
}

func (o *Orchestrator) bindMedia(m *app.Membership, s *core.Session, pm core.PeerMedia) {
	pm.OnLocalCandidate(func(c domain.Candidate) {
		o.onLocalCandidate(m, s, c)
	})
	pm.OnStateChange(func(state core.MediaState) {
		o.onMediaState(m, s, state)
	})
}

func (o *Orchestrator) onLocalCandidate(m *app.Membership, s *core.Session, c domain.Candidate) {
	if m.Closed() || s.State() == domain.StateClosed {
		return
	}
	msg := domain.NewCandidateMessage(m.Local, s.Peer(), c)
	if err := o.publish(m.Context(), m, s, msg); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(s.Peer())).Msg("local candidate not sent")
	}
}

func (o *Orchestrator) onMediaState(m *app.Membership, s *core.Session, state core.MediaState) {
	log.Debug().Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(s.Peer())).Str("media", state.String()).Msg("media state")
	switch state {
	case core.MediaConnected:
		if s.MarkEstablished() {
			o.observer.OnSessionEstablished(m.Room, s.Peer())
		}
	case core.MediaFailed:
		o.failPeer(m, s, fmt.Errorf("%w with %s", errMediaFailed, s.Peer()))
	case core.MediaConnecting, core.MediaClosed:
	}
}

// deliver publishes the outbound messages of step and reports the
// transitions it completed. A responder counts as established once its
// answer is out.
func (o *Orchestrator) deliver(ctx context.Context, m *app.Membership, s *core.Session, step core.Step) {
	for _, msg := range step.Outbound {
		if err := o.publish(ctx, m, s, msg); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(s.Peer())).Str("kind", string(msg.Kind)).Msg("outbound signaling not delivered")
			continue
		}
		if msg.Kind == domain.KindAnswer && s.MarkEstablished() {
			o.observer.OnSessionEstablished(m.Room, s.Peer())
		}
	}
	if step.Established {
		o.observer.OnSessionEstablished(m.Room, s.Peer())
	}
}

// publish sends msg on the room topic, consulting the policy after each
// refused attempt. Session state is never touched here.
func (o *Orchestrator) publish(ctx context.Context, m *app.Membership, s *core.Session, msg domain.SignalingMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		if m.Closed() {
			return domain.ErrRoomLeft
		}
		err := o.relay.Publish(ctx, m.Topic, domain.SignalName, payload)
		if err == nil {
			log.Debug().Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(msg.TargetIdentity)).Str("kind", string(msg.Kind)).Int("attempt", attempt).Msg("published")
			return nil
		}

		action := o.policy.OnPublishFailure(msg, attempt, err)
		log.Warn().Err(err).
			Str("module", "orch").
			Str("room", string(m.Room)).
			Str("peer", string(msg.TargetIdentity)).
			Str("kind", string(msg.Kind)).
			Int("attempt", attempt).
			Str("action", action.String()).
			Msg("publish failed")

		switch action {
		case app.RetryPublish:
			t := time.NewTimer(o.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		case app.FailPeer:
			err = fmt.Errorf("publish %s: %w", msg.Kind, err)
			o.failPeer(m, s, err)
			return err
		default:
			return fmt.Errorf("publish %s dropped after %d attempts: %w", msg.Kind, attempt, err)
		}
	}
}

// failPeer closes s and drops it from the room. Other sessions are untouched.
func (o *Orchestrator) failPeer(m *app.Membership, s *core.Session, cause error) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(s.Peer())).Msg("close failed session")
	}
	if !m.RemoveSession(s) {
		return
	}
	log.Error().Err(cause).Str("module", "orch").Str("room", string(m.Room)).Str("peer", string(s.Peer())).Msg("negotiation failed")
	o.observer.OnNegotiationFailed(m.Room, s.Peer(), cause)
}
