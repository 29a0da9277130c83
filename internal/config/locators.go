package config

import "time"

// LocatorsConfig overrides the built-in pattern lists per UI concept.
// A concept left empty keeps its built-in chain.
type LocatorsConfig struct {
	Composer    []string `yaml:"composer" json:"composer,omitempty"`
	Response    []string `yaml:"response" json:"response,omitempty"`
	Dialog      []string `yaml:"dialog" json:"dialog,omitempty"`
	NewChat     []string `yaml:"new_chat" json:"new_chat,omitempty"`
	SendButton  []string `yaml:"send_button" json:"send_button,omitempty"`
	SaveControl []string `yaml:"save_control" json:"save_control,omitempty"`
	// CandidateTimeout is the per-pattern budget.
	CandidateTimeout string `yaml:"candidate_timeout" json:"candidate_timeout,omitempty"`
}

// GetCandidateTimeout returns the per-pattern budget.
func (l LocatorsConfig) GetCandidateTimeout() time.Duration {
	return parseDuration(l.CandidateTimeout, 2*time.Second)
}
