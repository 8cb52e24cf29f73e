package core

import "github.com/dkeye/meshcall/internal/domain"

const DefaultCandidateLimit = 64

// CandidateBuffer holds remote candidates that arrived before the remote
// descriptor. It is not safe for concurrent use; the owning session
// serializes access.
type CandidateBuffer struct {
	limit   int
	items   []domain.Candidate
	dropped int
}

func NewCandidateBuffer(limit int) *CandidateBuffer {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &CandidateBuffer{limit: limit}
}

// Append queues c. When the buffer is full the oldest entry is evicted and
// dropped reports true.
func (b *CandidateBuffer) Append(c domain.Candidate) (dropped bool) {
	if len(b.items) >= b.limit {
		b.items[0] = domain.Candidate{}
		b.items = b.items[1:]
		b.dropped++
		dropped = true
	}
	b.items = append(b.items, c)
	return dropped
}

// DrainIfReady hands over every queued candidate in arrival order once the
// remote descriptor exists. Drained candidates are never returned again.
func (b *CandidateBuffer) DrainIfReady(hasRemoteDescriptor bool) []domain.Candidate {
	if !hasRemoteDescriptor || len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = nil
	return out
}

func (b *CandidateBuffer) Clear() {
	b.items = nil
}

func (b *CandidateBuffer) Len() int     { return len(b.items) }
func (b *CandidateBuffer) Dropped() int { return b.dropped }
