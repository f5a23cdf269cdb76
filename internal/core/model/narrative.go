package model

import "time"

type ParticipationLevel string

const (
	LevelInitiator   ParticipationLevel = "initiator"
	LevelContributor ParticipationLevel = "contributor"
	LevelMentioned   ParticipationLevel = "mentioned"
	LevelObserver    ParticipationLevel = "observer"
)

// Levels lists participation levels from strongest to weakest.
var Levels = []ParticipationLevel{LevelInitiator, LevelContributor, LevelMentioned, LevelObserver}

// Weight is the evidence weight of a level used in confidence scoring.
func (l ParticipationLevel) Weight() float64 {
	switch l {
	case LevelInitiator:
		return 1.0
	case LevelContributor:
		return 0.8
	case LevelMentioned:
		return 0.5
	default:
		return 0.2
	}
}

type ParticipationResult struct {
	ActivityID string             `json:"activity_id"`
	Level      ParticipationLevel `json:"level"`
	Signals    []string           `json:"signals"`
}

type NarrativeComponent struct {
	Section    string   `json:"section"`
	Text       string   `json:"text"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

type ValidationResult struct {
	Passed      bool     `json:"passed"`
	Score       float64  `json:"score"`
	FailedGates []string `json:"failed_gates,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type NarrativeMetadata struct {
	DateRange     DateRange  `json:"date_range"`
	Tools         []ToolType `json:"tools"`
	ActivityCount int        `json:"activity_count"`
}

type GeneratedNarrative struct {
	ClusterID            string                     `json:"cluster_id"`
	Framework            string                     `json:"framework"`
	Components           []NarrativeComponent       `json:"components"`
	Confidence           float64                    `json:"confidence"`
	ParticipationSummary map[ParticipationLevel]int `json:"participation_summary"`
	SuggestedEdits       []string                   `json:"suggested_edits,omitempty"`
	Metadata             NarrativeMetadata          `json:"metadata"`
	Validation           ValidationResult           `json:"validation"`
	// Enriched is true when at least one component was polished. Others may
	// still carry draft text; check PolishErrors on the result.
	Enriched             bool                       `json:"enriched"`
}

// Component returns the component for a section, if present.
func (n *GeneratedNarrative) Component(section string) (NarrativeComponent, bool) {
	for _, c := range n.Components {
		if c.Section == section {
			return c, true
		}
	}
	return NarrativeComponent{}, false
}

// Clone returns a deep copy so later stages can rewrite components without
// touching the validated original.
func (n *GeneratedNarrative) Clone() *GeneratedNarrative {
	if n == nil {
		return nil
	}
	out := *n
	out.Components = make([]NarrativeComponent, len(n.Components))
	for i, c := range n.Components {
		c.Sources = append([]string(nil), c.Sources...)
		out.Components[i] = c
	}
	out.ParticipationSummary = make(map[ParticipationLevel]int, len(n.ParticipationSummary))
	for k, v := range n.ParticipationSummary {
		out.ParticipationSummary[k] = v
	}
	out.SuggestedEdits = append([]string(nil), n.SuggestedEdits...)
	out.Metadata.Tools = append([]ToolType(nil), n.Metadata.Tools...)
	out.Validation.FailedGates = append([]string(nil), n.Validation.FailedGates...)
	out.Validation.Warnings = append([]string(nil), n.Validation.Warnings...)
	return &out
}
