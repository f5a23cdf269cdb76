package model

import (
	"fmt"
	"strings"
)

// Confidence is the trust tier of a reference pattern. Higher values are
// stronger.
type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Weight maps the tier onto [0,1] for scoring.
func (c Confidence) Weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMedium:
		return 0.75
	case ConfidenceLow:
		return 0.5
	default:
		return 0.25
	}
}

func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return ConfidenceUnknown, nil
	case "low":
		return ConfidenceLow, nil
	case "medium":
		return ConfidenceMedium, nil
	case "high":
		return ConfidenceHigh, nil
	}
	return ConfidenceUnknown, fmt.Errorf("unknown confidence tier %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// PatternMatch is one occurrence of a canonical reference in the input.
type PatternMatch struct {
	Reference      string     `json:"reference"`
	PatternID      string     `json:"pattern_id"`
	PatternVersion int        `json:"pattern_version"`
	Confidence     Confidence `json:"confidence"`
	Source         string     `json:"source"` // "text[i]" or "url"
	Start          int        `json:"start"`
	End            int        `json:"end"`
	Context        string     `json:"context"`
	Raw            string     `json:"raw"`
}
