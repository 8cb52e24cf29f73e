package media

import (
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
)

// Manager tracks the capture resources acquired for one room and
// guarantees their release.
type Manager struct {
	mu        sync.Mutex
	resources []core.Resource
	muted     bool
	released  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds r to the managed set. A resource registered after
// ReleaseAll is released right away.
func (m *Manager) Register(r core.Resource) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		log.Warn().Str("module", "media.manager").Str("resource", r.ID()).Msg("register after release, releasing now")
		return releaseOne(r)
	}
	m.resources = append(m.resources, r)
	muted := m.muted
	m.mu.Unlock()

	if mu, ok := r.(core.Muter); ok && r.Kind() == core.ResourceAudio {
		mu.SetMuted(muted)
	}
	log.Debug().Str("module", "media.manager").Str("resource", r.ID()).Str("kind", string(r.Kind())).Msg("resource registered")
	return nil
}

// Resources returns a snapshot of the managed resources in registration order.
func (m *Manager) Resources() []core.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Resource, len(m.resources))
	copy(out, m.resources)
	return out
}

// SetAudioMuted mutes or unmutes every audio resource, including ones registered later.
func (m *Manager) SetAudioMuted(mute bool) {
	m.mu.Lock()
	m.muted = mute
	snapshot := make([]core.Resource, len(m.resources))
	copy(snapshot, m.resources)
	m.mu.Unlock()

	for _, r := range snapshot {
		if r.Kind() != core.ResourceAudio {
			continue
		}
		if mu, ok := r.(core.Muter); ok {
			mu.SetMuted(mute)
		}
	}
}

// ReleaseAll releases every resource exactly once. A failing or panicking
// resource does not stop the release of the rest; all failures are
// returned together. Calls after the first return nil.
func (m *Manager) ReleaseAll() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	resources := m.resources
	m.resources = nil
	m.mu.Unlock()

	var errs error
	for _, r := range resources {
		if err := releaseOne(r); err != nil {
			log.Error().Err(err).Str("module", "media.manager").Msg("release failed")
			errs = multierr.Append(errs, err)
		}
	}
	log.Info().Str("module", "media.manager").Int("count", len(resources)).Msg("local media released")
	return errs
}

func (m *Manager) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func releaseOne(r core.Resource) (err error) {
	id := r.ID()
	if rec := panics.Try(func() { err = r.Release() }); rec != nil {
		return fmt.Errorf("release %s: %w", id, rec.AsError())
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}
