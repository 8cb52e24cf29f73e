package core

import (
	"fmt"

	"github.com/dkeye/meshcall/internal/domain"
)

// DecideInitiator resolves glare without a coordination message: the side
// whose identity sorts lexicographically smaller sends the offer. For any
// unordered pair exactly one side gets true.
func DecideInitiator(local, peer domain.Identity) (bool, error) {
	if local == peer {
		return false, fmt.Errorf("%w: %q", domain.ErrSameIdentity, local)
	}
	return local.Less(peer), nil
}
