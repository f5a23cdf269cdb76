// Package references applies the pattern library to activity text and
// produces canonical reference identifiers.
package references

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/patterns"
)

const (
	stage = "references"

	ReasonNoInput  = "no input"
	ReasonNoMatch  = "pattern did not match"
	maxNearMisses  = 5
	defaultContext = 40
)

type Options struct {
	Debug         bool
	PatternIDs    []string
	ToolTypes     []model.ToolType
	MinConfidence model.Confidence
	IncludeURL    bool
}

type PatternAnalysis struct {
	PatternID  string   `json:"pattern_id"`
	Matches    int      `json:"matches"`
	Rejected   int      `json:"rejected,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	NearMisses []string `json:"near_misses,omitempty"`
}

type Result struct {
	common.Envelope
	References []string             `json:"references"`
	Matches    []model.PatternMatch `json:"matches"`
	Analysis   []PatternAnalysis    `json:"analysis"`
}

type Extractor struct {
	Library       *patterns.Library
	ContextWindow int
}

func NewExtractor(lib *patterns.Library) *Extractor {
	if lib == nil {
		lib = patterns.Default()
	}
	return &Extractor{
		Library:       lib,
		ContextWindow: defaultContext,
	}
}

type input struct {
	source string
	text   string
}

// Extract runs every eligible pattern over the non-nil fragments (and the
// URL when opts.IncludeURL is set). Duplicate canonical references keep the
// highest-confidence match, then the highest pattern version.
func (e *Extractor) Extract(texts []*string, sourceURL string, opts Options) *Result {
	res := &Result{References: []string{}, Matches: []model.PatternMatch{}}
	defer res.Begin(stage)()

	active := e.eligible(opts)
	if len(active) == 0 {
		res.Warn(common.CodeNoPatterns, map[string]any{
			"tool_types":     opts.ToolTypes,
			"pattern_ids":    opts.PatternIDs,
			"min_confidence": opts.MinConfidence.String(),
		}, "no patterns are eligible for the given filters")
		return res
	}

	var inputs []input
	for i, t := range texts {
		if t != nil && *t != "" {
			inputs = append(inputs, input{source: fmt.Sprintf("text[%d]", i), text: *t})
		}
	}
	if opts.IncludeURL && sourceURL != "" {
		inputs = append(inputs, input{source: "url", text: sourceURL})
	}

	best := make(map[string]model.PatternMatch)
	for _, p := range active {
		analysis := PatternAnalysis{PatternID: p.ID}
		if len(inputs) == 0 {
			analysis.Reason = ReasonNoInput
			res.Analysis = append(res.Analysis, analysis)
			continue
		}

		found, rejected, err := e.scan(p, inputs)
		if err != nil {
			res.AddError(common.NewStageError(stage, common.CodePatternError, common.ErrInternal, err,
				"pattern %s failed during evaluation and was skipped", p.ID).With("pattern_id", p.ID))
			analysis.Reason = err.Error()
			res.Analysis = append(res.Analysis, analysis)
			continue
		}

		analysis.Matches = len(found)
		analysis.Rejected = len(rejected)
		if len(found) == 0 {
			analysis.Reason = ReasonNoMatch
			if opts.Debug {
				analysis.NearMisses = nearMisses(p, inputs, rejected)
			}
		}
		res.Analysis = append(res.Analysis, analysis)

		for _, m := range found {
			cur, ok := best[m.Reference]
			if !ok || preferred(m, cur) {
				best[m.Reference] = m
			}
		}
	}

	for ref := range best {
		res.References = append(res.References, ref)
	}
	sort.Strings(res.References)
	for _, ref := range res.References {
		res.Matches = append(res.Matches, best[ref])
	}

	res.Count("inputs", len(inputs))
	res.Count("patterns", len(active))
	res.Count("references", len(res.References))
	return res
}

func (e *Extractor) eligible(opts Options) []patterns.Pattern {
	active := e.Library.ListActive(patterns.ListOptions{
		ToolTypes:     opts.ToolTypes,
		MinConfidence: opts.MinConfidence,
	})
	if len(opts.PatternIDs) == 0 {
		return active
	}
	want := make(map[string]bool, len(opts.PatternIDs))
	for _, id := range opts.PatternIDs {
		want[id] = true
	}
	filtered := active[:0]
	for _, p := range active {
		if want[p.ID] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// scan collects one pattern's matches. A panic anywhere in the pattern's
// evaluation discards everything that pattern produced.
func (e *Extractor) scan(p patterns.Pattern, inputs []input) (found []model.PatternMatch, rejected []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, rejected = nil, nil
			err = fmt.Errorf("pattern %s panicked: %v", p.ID, r)
		}
	}()

	for _, in := range inputs {
		for _, loc := range p.Regex.FindAllStringSubmatchIndex(in.text, -1) {
			groups := submatches(in.text, loc)
			ref, ok, applyErr := p.Apply(groups)
			if applyErr != nil {
				return nil, nil, applyErr
			}
			if !ok || ref == "" {
				rejected = append(rejected, groups[0])
				continue
			}
			found = append(found, model.PatternMatch{
				Reference:      ref,
				PatternID:      p.ID,
				PatternVersion: p.Version,
				Confidence:     p.Confidence,
				Source:         in.source,
				Start:          loc[0],
				End:            loc[1],
				Context:        e.context(in.text, loc[0], loc[1]),
				Raw:            groups[0],
			})
		}
	}
	return found, rejected, nil
}

func preferred(candidate, current model.PatternMatch) bool {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	return candidate.PatternVersion > current.PatternVersion
}

func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}

func (e *Extractor) context(text string, start, end int) string {
	window := e.ContextWindow
	if window <= 0 {
		window = defaultContext
	}
	from := start - window
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from++
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[from:to]
}

// nearMisses reports substrings that a case-insensitive variant of the
// pattern matches, plus hits the normalizer rejected.
func nearMisses(p patterns.Pattern, inputs []input, rejected []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if len(out) < maxNearMisses && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, r := range rejected {
		add(r)
	}
	loose, err := regexp.Compile("(?i)" + p.Regex.String())
	if err != nil {
		return out
	}
	for _, in := range inputs {
		for _, s := range loose.FindAllString(in.text, maxNearMisses) {
			add(s)
		}
	}
	return out
}
