package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SessionConfig struct {
	Room      domain.RoomID
	Local     domain.Identity
	Peer      domain.Identity
	Initiator bool

	Engine MediaEngine
	// LocalMedia is attached to the peer media when it is created.
	LocalMedia     []Resource
	CandidateLimit int
	// BindMedia runs once, right after the peer media is created and before
	// it is used for negotiation.
	BindMedia func(PeerMedia)
}

// Step is the outcome of one transition. State has already changed when a
// Step is returned, so Outbound can be published (and republished) without
// touching the session again.
type Step struct {
	Outbound    []domain.SignalingMessage
	Established bool
}

// SessionInfo is a read-only view for APIs.
type SessionInfo struct {
	Peer      domain.Identity `json:"peer"`
	State     string          `json:"state"`
	Initiator bool            `json:"initiator"`
	Pending   int             `json:"pending_candidates"`
	Dropped   int             `json:"dropped_candidates"`
}

// Session negotiates one peer-to-peer media session. Every transition is
// serialized on the session's own lock; different sessions proceed
// independently.
type Session struct {
	mu     sync.Mutex
	cfg    SessionConfig
	state  domain.SessionState
	media  PeerMedia
	local  *domain.Descriptor
	remote *domain.Descriptor
	buffer *CandidateBuffer
	logger zerolog.Logger
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{
		cfg:    cfg,
		state:  domain.StateIdle,
		buffer: NewCandidateBuffer(cfg.CandidateLimit),
		logger: log.With().
			Str("module", "core.session").
			Str("room", string(cfg.Room)).
			Str("peer", string(cfg.Peer)).
			Bool("initiator", cfg.Initiator).
			Logger(),
	}
}

func (s *Session) Peer() domain.Identity { return s.cfg.Peer }
func (s *Session) Initiator() bool       { return s.cfg.Initiator }

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteDescriptor returns the applied remote offer or answer, if any.
func (s *Session) RemoteDescriptor() (domain.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return domain.Descriptor{}, false
	}
	return *s.remote, true
}

func (s *Session) Snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		Peer:      s.cfg.Peer,
		State:     s.state.String(),
		Initiator: s.cfg.Initiator,
		Pending:   s.buffer.Len(),
		Dropped:   s.buffer.Dropped(),
	}
}

// Start runs the creation transition. The initiator builds and returns its
// offer; the responder stays idle until the remote offer arrives.
func (s *Session) Start(ctx context.Context) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateIdle || !s.cfg.Initiator {
		return Step{}, nil
	}
	if err := s.ensureMediaLocked(ctx); err != nil {
		return Step{}, s.failLocked("create peer media", err)
	}
	offer, err := s.media.CreateOffer(ctx)
	if err != nil {
		return Step{}, s.failLocked("create offer", err)
	}
	offer.Kind = domain.KindOffer
	s.local = &offer
	s.setStateLocked(domain.StateOfferSent)
	return Step{Outbound: []domain.SignalingMessage{
		domain.NewDescriptorMessage(s.cfg.Local, s.cfg.Peer, offer),
	}}, nil
}

// HandleOffer applies a remote offer and returns the answer. Offers on a
// closed session fail with domain.ErrSessionClosed; duplicates are ignored.
func (s *Session) HandleOffer(ctx context.Context, offer domain.Descriptor) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == domain.StateClosed:
		return Step{}, fmt.Errorf("offer from %s: %w", s.cfg.Peer, domain.ErrSessionClosed)
	case s.cfg.Initiator:
		// Glare is resolved at creation; this is a malformed or stray delivery.
		s.logger.Warn().Str("state", s.state.String()).Msg("offer received on initiator side, discarded")
		return Step{}, nil
	case s.remote != nil:
		s.logger.Debug().Str("state", s.state.String()).Msg("duplicate offer ignored")
		return Step{}, nil
	}

	s.remote = &offer
	s.setStateLocked(domain.StateOfferReceived)
	if err := s.ensureMediaLocked(ctx); err != nil {
		return Step{}, s.failLocked("create peer media", err)
	}
	if err := s.media.ApplyRemote(offer); err != nil {
		return Step{}, s.failLocked("apply remote offer", err)
	}
	s.flushLocked()

	answer, err := s.media.CreateAnswer(ctx)
	if err != nil {
		return Step{}, s.failLocked("create answer", err)
	}
	answer.Kind = domain.KindAnswer
	s.local = &answer
	s.setStateLocked(domain.StateAnswerSent)
	return Step{Outbound: []domain.SignalingMessage{
		domain.NewDescriptorMessage(s.cfg.Local, s.cfg.Peer, answer),
	}}, nil
}

func (s *Session) HandleAnswer(_ context.Context, answer domain.Descriptor) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateClosed {
		return Step{}, fmt.Errorf("answer from %s: %w", s.cfg.Peer, domain.ErrSessionClosed)
	}
	if s.state != domain.StateOfferSent {
		s.logger.Debug().Str("state", s.state.String()).Msg("answer ignored")
		return Step{}, nil
	}
	s.remote = &answer
	if err := s.media.ApplyRemote(answer); err != nil {
		return Step{}, s.failLocked("apply remote answer", err)
	}
	s.flushLocked()
	s.setStateLocked(domain.StateEstablished)
	return Step{Established: true}, nil
}

// HandleCandidate applies c right away once the remote descriptor is set and
// defers it otherwise. A candidate the media engine rejects is logged and
// does not fail the session.
func (s *Session) HandleCandidate(c domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateClosed {
		return
	}
	if s.remote == nil {
		if s.buffer.Append(c) {
			s.logger.Warn().Int("limit", s.buffer.limit).Msg("candidate buffer full, oldest candidate dropped")
		}
		return
	}
	if err := s.media.AddCandidate(c); err != nil {
		s.logger.Warn().Err(err).Msg("add candidate")
	}
}

// MarkEstablished moves a responder from AnswerSent to Established. It
// reports whether the state changed.
func (s *Session) MarkEstablished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateAnswerSent {
		return false
	}
	s.setStateLocked(domain.StateEstablished)
	return true
}

// Close releases the peer media and discards pending candidates. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.state == domain.StateClosed {
		return nil
	}
	s.setStateLocked(domain.StateClosed)
	s.buffer.Clear()
	if s.media == nil {
		return nil
	}
	return s.media.Close()
}

func (s *Session) failLocked(op string, cause error) error {
	if err := s.closeLocked(); err != nil {
		s.logger.Error().Err(err).Msg("close after failure")
	}
	return fmt.Errorf("%s with %s: %w", op, s.cfg.Peer, cause)
}

func (s *Session) ensureMediaLocked(ctx context.Context) error {
	if s.media != nil {
		return nil
	}
	pm, err := s.cfg.Engine.NewPeer(ctx, s.cfg.Peer, s.cfg.LocalMedia)
	if err != nil {
		return err
	}
	s.media = pm
	if s.cfg.BindMedia != nil {
		s.cfg.BindMedia(pm)
	}
	return nil
}

func (s *Session) flushLocked() {
	pending := s.buffer.DrainIfReady(s.remote != nil)
	for _, c := range pending {
		if err := s.media.AddCandidate(c); err != nil {
			s.logger.Warn().Err(err).Msg("add buffered candidate")
		}
	}
	if len(pending) > 0 {
		s.logger.Debug().Int("count", len(pending)).Msg("buffered candidates applied")
	}
}

func (s *Session) setStateLocked(next domain.SessionState) {
	s.logger.Debug().Str("from", s.state.String()).Str("to", next.String()).Msg("state change")
	s.state = next
}
