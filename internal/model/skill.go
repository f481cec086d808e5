package model

import "time"

// SkillOrigin records how a skill entered the store.
type SkillOrigin string

const (
	SkillOriginCurated        SkillOrigin = "curated"
	SkillOriginLearnedPositive SkillOrigin = "learned-positive"
	SkillOriginLearnedNegative SkillOrigin = "learned-negative"
)

// Skill is a named, reusable prompt-time pattern (spec §3 "Skill", §4.6).
// It is stored as a text document with a structured header plus an
// instructions body; this struct is the parsed form of that document.
type Skill struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Category     string      `json:"category"`
	AppliesTo    []string    `json:"applies_to"`
	Instructions string      `json:"instructions"`

	UsageCount   int         `json:"usage_count"`
	SuccessCount int         `json:"success_count"`
	CreatedAt    time.Time   `json:"created_at"`
	SourceTask   string      `json:"source_task,omitempty"`
	Origin       SkillOrigin `json:"origin"`
	LastUsed     time.Time   `json:"last_used,omitempty"`
	Version      int         `json:"version"`
}

// SuccessRate is success_count / max(1, usage_count) per spec §3.
func (s *Skill) SuccessRate() float64 {
	denom := s.UsageCount
	if denom < 1 {
		denom = 1
	}
	return float64(s.SuccessCount) / float64(denom)
}

// Feature is one entry of the progress model's feature list (spec §3,
// §4.7). Priority: lower values are scheduled earlier.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Passes      bool   `json:"passes"`
}

// Checkpoint is an immutable record of a test-gated commit (spec §3, §4.8).
type Checkpoint struct {
	FeatureName string    `json:"feature_name"`
	CommitHash  string    `json:"commit_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// VoteTally maps a candidate label to the number of voters that picked it
// (spec §3 "MAKER vote tally", §4.9).
type VoteTally map[string]int

// Winner returns the argmax label, breaking ties by insertion (label) order.
// labelOrder must list every label that appears in the tally, in the order
// they were assigned (A, B, C, ...).
func (t VoteTally) Winner(labelOrder []string) string {
	best := ""
	bestCount := -1
	for _, label := range labelOrder {
		count := t[label]
		if count > bestCount {
			bestCount = count
			best = label
		}
	}
	return best
}
