// Package patterns holds the versioned, self-validating rules that turn free
// text into canonical reference identifiers.
package patterns

import (
	"fmt"
	"regexp"

	"github.com/agenthands/storyline/internal/core/model"
)

// Normalizer maps the submatches of a regex hit (index 0 is the full match)
// to a canonical reference. Returning false rejects the hit.
type Normalizer func(groups []string) (string, bool)

type Example struct {
	Input    string
	Expected string
}

// Pattern is an immutable extraction rule together with the fixtures it must
// pass before it is allowed to run.
type Pattern struct {
	ID         string
	Name       string
	Version    int
	Regex      *regexp.Regexp
	ToolType   model.ToolType
	Normalize  Normalizer
	Confidence model.Confidence
	Positive   []Example
	Negative   []string
	Supersedes string
}

// Apply normalizes one regex hit, converting a panicking normalizer into an
// error.
func (p Pattern) Apply(groups []string) (ref string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pattern %s normalizer panicked: %v", p.ID, r)
		}
	}()
	ref, ok = p.Normalize(groups)
	return ref, ok, nil
}

// Validate runs the pattern against its own fixtures and returns every
// failure found. An empty slice means the pattern may run.
func Validate(p Pattern) []string {
	var failures []string
	if p.ID == "" {
		failures = append(failures, "pattern id is empty")
	}
	if p.Version < 1 {
		failures = append(failures, fmt.Sprintf("version must be >= 1, got %d", p.Version))
	}
	if p.Confidence == model.ConfidenceUnknown {
		failures = append(failures, "confidence tier is not set")
	}
	if p.Regex == nil || p.Normalize == nil {
		return append(failures, "regex and normalizer are required")
	}
	if len(p.Positive) == 0 {
		failures = append(failures, "at least one positive example is required")
	}

	for _, ex := range p.Positive {
		groups := p.Regex.FindStringSubmatch(ex.Input)
		if groups == nil {
			failures = append(failures, fmt.Sprintf("positive example %q did not match", ex.Input))
			continue
		}
		got, ok, err := p.Apply(groups)
		switch {
		case err != nil:
			failures = append(failures, err.Error())
		case !ok:
			failures = append(failures, fmt.Sprintf("positive example %q was rejected by the normalizer", ex.Input))
		case got != ex.Expected:
			failures = append(failures, fmt.Sprintf("positive example %q normalized to %q, want %q", ex.Input, got, ex.Expected))
		}
	}

	for _, neg := range p.Negative {
		if p.Regex.MatchString(neg) {
			failures = append(failures, fmt.Sprintf("negative example %q matched", neg))
		}
	}
	return failures
}
