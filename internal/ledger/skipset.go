package ledger

// SkipSet is the set of prompts omitted from the current run. It is derived at
// the start of each run and never persisted.
type SkipSet map[string]struct{}

// ResolveSkipSet unions the prompts recorded as succeeded with every prompt
// already transmitted. A prompt that was sent but never recorded success stays
// skipped; recovering it is a manual ledger edit (Forget or Reset).
func ResolveSkipSet(status RunStatus, sent []string) SkipSet {
	skip := make(SkipSet, len(status.Items)+len(sent))
	for _, it := range status.Items {
		if it.Status == StatusSuccess {
			skip[it.Prompt] = struct{}{}
		}
	}
	for _, p := range sent {
		skip[p] = struct{}{}
	}
	return skip
}

// Contains reports whether prompt is skipped.
func (s SkipSet) Contains(prompt string) bool {
	_, ok := s[prompt]
	return ok
}

// Add marks prompt as skipped for the rest of the run.
func (s SkipSet) Add(prompt string) {
	s[prompt] = struct{}{}
}

// Len returns the number of skipped prompts.
func (s SkipSet) Len() int {
	return len(s)
}

// Resolve loads both documents for project and derives its SkipSet.
func (s *Store) Resolve(project string) SkipSet {
	return ResolveSkipSet(s.LoadStatus(project), s.LoadSent(project))
}
