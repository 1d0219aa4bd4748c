package savings

import (
	"sort"
	"sync"
)

// failureSet tracks quote assets whose last rebalance attempt failed due to
// unavailability or a transient error. It carries its own lock because the
// recovery monitor reads membership without holding the evaluator guard.
type failureSet struct {
	mu     sync.Mutex
	assets map[string]struct{}
}

func newFailureSet() *failureSet {
	return &failureSet{assets: make(map[string]struct{})}
}

func (s *failureSet) add(asset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[asset] = struct{}{}
}

// members returns the current membership, sorted for deterministic
// notifications and tests.
func (s *failureSet) members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.assets))
	for asset := range s.assets {
		out = append(out, asset)
	}
	sort.Strings(out)

	return out
}

// clear drops the whole set at once. Membership is never cleared
// per asset: recovery is all-or-nothing.
func (s *failureSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = make(map[string]struct{})
}
