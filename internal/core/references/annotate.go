package references

import (
	"sort"

	"github.com/agenthands/storyline/internal/core/model"
)

// AnnotateActivities returns copies of the activities with References filled
// from their title, body and source URL. The returned result aggregates the
// envelope of every per-activity extraction.
func (e *Extractor) AnnotateActivities(activities []model.Activity, opts Options) ([]model.Activity, *Result) {
	agg := &Result{References: []string{}, Matches: []model.PatternMatch{}}
	defer agg.Begin(stage)()

	seen := make(map[string]bool)
	out := make([]model.Activity, len(activities))
	for i, a := range activities {
		res := e.Extract(a.TextFragments(), a.SourceURL, opts)
		a.References = res.References
		out[i] = a

		agg.Warnings = append(agg.Warnings, res.Warnings...)
		agg.Errors = append(agg.Errors, res.Errors...)
		for _, m := range res.Matches {
			if !seen[m.Reference] {
				seen[m.Reference] = true
				agg.References = append(agg.References, m.Reference)
			}
		}
		agg.Matches = append(agg.Matches, res.Matches...)
	}
	sort.Strings(agg.References)
	agg.Count("activities", len(activities))
	agg.Count("references", len(agg.References))
	return out, agg
}

// ReferenceConfidence returns the strongest tier with which the activity's
// text supports any of refs. References that were supplied on the activity
// without textual evidence count as low.
func (e *Extractor) ReferenceConfidence(a model.Activity, refs []string) model.Confidence {
	want := make(map[string]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}

	res := e.Extract(a.TextFragments(), a.SourceURL, Options{IncludeURL: true})
	best := model.ConfidenceUnknown
	for _, m := range res.Matches {
		if want[m.Reference] && m.Confidence > best {
			best = m.Confidence
		}
	}
	if best == model.ConfidenceUnknown {
		for _, r := range a.References {
			if want[r] {
				return model.ConfidenceLow
			}
		}
	}
	return best
}
