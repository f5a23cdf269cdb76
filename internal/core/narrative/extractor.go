// Package narrative turns a hydrated cluster into a confidence-scored,
// evidence-linked story draft.
package narrative

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/participation"
	"github.com/agenthands/storyline/internal/core/references"
)

const stage = "extraction"

// Warning codes attached to a passing extraction.
const (
	CodeNoDirectParticipation = "NO_DIRECT_PARTICIPATION"
	CodeLongSpan              = "LONG_SPAN"
	CodeNoOutcomeEvidence     = "NO_OUTCOME_EVIDENCE"
)

const (
	maxExcerpt = 200
	// Sources weaker than this fraction of the best source are left out.
	relativeCutoff = 0.6
)

type Options struct {
	Framework            string
	Gates                Gates
	MaxSourcesPerSection int
	RelevanceFloor       float64
	ConfidenceFloor      float64
	ConfidenceBonus      float64
	MaxSpan              time.Duration
}

func DefaultOptions() Options {
	return Options{
		Framework:            DefaultFramework,
		Gates:                DefaultGates(),
		MaxSourcesPerSection: 3,
		RelevanceFloor:       0.3,
		ConfidenceFloor:      0.6,
		ConfidenceBonus:      0.15,
		MaxSpan:              180 * 24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Framework == "" {
		o.Framework = d.Framework
	}
	if o.Gates == (Gates{}) {
		o.Gates = d.Gates
	}
	if o.MaxSourcesPerSection <= 0 {
		o.MaxSourcesPerSection = d.MaxSourcesPerSection
	}
	if o.RelevanceFloor <= 0 {
		o.RelevanceFloor = d.RelevanceFloor
	}
	if o.ConfidenceFloor <= 0 {
		o.ConfidenceFloor = d.ConfidenceFloor
	}
	if o.ConfidenceBonus <= 0 {
		o.ConfidenceBonus = d.ConfidenceBonus
	}
	if o.MaxSpan <= 0 {
		o.MaxSpan = d.MaxSpan
	}
	return o
}

type Result struct {
	common.Envelope
	Narrative     *model.GeneratedNarrative   `json:"narrative,omitempty"`
	Validation    model.ValidationResult      `json:"validation"`
	Participation []model.ParticipationResult `json:"participation"`
}

type Extractor struct {
	Analyzer   *participation.Analyzer
	References *references.Extractor
}

func NewExtractor(refs *references.Extractor) *Extractor {
	if refs == nil {
		refs = references.NewExtractor(nil)
	}
	return &Extractor{
		Analyzer:   participation.NewAnalyzer(),
		References: refs,
	}
}

// Extract analyzes participation and then extracts the narrative.
func (e *Extractor) Extract(hc model.HydratedCluster, persona model.Persona, opts Options) (*Result, error) {
	return e.ExtractWith(hc, persona, e.Analyzer.Analyze(hc, persona), opts)
}

// ExtractWith extracts a narrative from a precomputed participation
// analysis. A cluster failing its gates is not an error: the result carries
// the failed ValidationResult, no narrative and a VALIDATION_GATES_FAILED
// entry in Errors.
func (e *Extractor) ExtractWith(hc model.HydratedCluster, persona model.Persona, parts []model.ParticipationResult, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	fw, ok := Lookup(opts.Framework)
	if !ok {
		names := make([]string, 0, len(frameworks))
		for _, f := range Frameworks() {
			names = append(names, f.Name)
		}
		return nil, common.NewStageError(stage, common.CodeUnknownFramework, common.ErrInput, nil,
			"unknown framework %q", opts.Framework).With("available", names)
	}

	res := &Result{}
	defer res.Begin(stage)()

	res.Participation = alignParticipation(hc.Activities, parts)
	res.Validation = opts.Gates.Check(hc, res.Participation)
	res.Count("activities", len(hc.Activities))
	if !res.Validation.Passed {
		res.AddError(common.NewStageError(stage, common.CodeValidationGatesFailed, common.ErrValidation, nil,
			"cluster %s is not ready for a story: %s", hc.ID, strings.Join(res.Validation.FailedGates, ", ")).
			With("failed_gates", res.Validation.FailedGates).
			With("score", res.Validation.Score))
		return res, nil
	}

	levels := make(map[string]model.ParticipationLevel, len(res.Participation))
	direct := false
	for _, p := range res.Participation {
		levels[p.ActivityID] = p.Level
		if p.Level == model.LevelInitiator || p.Level == model.LevelContributor {
			direct = true
		}
	}

	timeline := make([]model.Activity, len(hc.Activities))
	copy(timeline, hc.Activities)
	sort.SliceStable(timeline, func(i, j int) bool {
		if !timeline[i].Timestamp.Equal(timeline[j].Timestamp) {
			return timeline[i].Timestamp.Before(timeline[j].Timestamp)
		}
		return timeline[i].ID < timeline[j].ID
	})

	refs := hc.SharedReferences
	if len(refs) == 0 {
		for _, a := range timeline {
			refs = append(refs, a.References...)
		}
	}

	texts := make(map[string]string, len(timeline))
	tiers := make(map[string]model.Confidence, len(timeline))
	outcomeEvidence := false
	for _, a := range timeline {
		texts[a.ID] = strings.ToLower(a.Text())
		tiers[a.ID] = e.References.ReferenceConfidence(a, refs)
		if cueHits(IntentOutcome, texts[a.ID], a) > 0 {
			outcomeEvidence = true
		}
	}

	n := &model.GeneratedNarrative{
		ClusterID:            hc.ID,
		Framework:            fw.Name,
		ParticipationSummary: participation.Summarize(res.Participation),
		Metadata: model.NarrativeMetadata{
			DateRange:     model.DateRange{Start: timeline[0].Timestamp, End: timeline[len(timeline)-1].Timestamp},
			Tools:         sortedTools(hc),
			ActivityCount: len(timeline),
		},
		Validation: res.Validation,
	}

	for _, sec := range fw.Sections {
		var candidates []scored
		for i, a := range timeline {
			pos := 0.5
			if len(timeline) > 1 {
				pos = float64(i) / float64(len(timeline)-1)
			}
			candidates = append(candidates, scored{
				activity:  a,
				level:     levels[a.ID],
				tier:      tiers[a.ID],
				relevance: relevance(sec.Intent, a, texts[a.ID], pos, levels[a.ID]),
			})
		}
		sources := selectSources(candidates, opts)

		comp := model.NarrativeComponent{
			Section:    sec.Name,
			Confidence: round(componentConfidence(sources)),
		}
		excerpts := make([]string, 0, len(sources))
		for _, s := range sources {
			comp.Sources = append(comp.Sources, s.activity.ID)
			excerpts = append(excerpts, excerpt(s.activity))
		}
		comp.Text = strings.Join(excerpts, " ")
		n.Components = append(n.Components, comp)

		if comp.Confidence < opts.ConfidenceFloor {
			n.SuggestedEdits = append(n.SuggestedEdits,
				fmt.Sprintf("Add detail on %s: %s.", sec.Name, hints[sec.Intent]))
		}
	}
	n.Confidence = round(overallConfidence(n.Components, opts.ConfidenceBonus))

	if !direct {
		msg := "persona is never the initiator or a contributor in this cluster"
		res.Warn(CodeNoDirectParticipation, map[string]any{"persona_id": persona.ID}, "%s", msg)
		n.Validation.Warnings = append(n.Validation.Warnings, msg)
		n.SuggestedEdits = append(n.SuggestedEdits,
			"Clarify your own role: none of the activities show you as author, assignee or reviewer.")
	}
	if span := n.Metadata.DateRange.End.Sub(n.Metadata.DateRange.Start); span > opts.MaxSpan {
		msg := fmt.Sprintf("activities span %d days", int(span.Hours()/24))
		res.Warn(CodeLongSpan, map[string]any{"span": span.String()}, "%s", msg)
		n.Validation.Warnings = append(n.Validation.Warnings, msg)
	}
	if !outcomeEvidence {
		msg := "no activity records a measurable outcome"
		res.Warn(CodeNoOutcomeEvidence, nil, "%s", msg)
		n.Validation.Warnings = append(n.Validation.Warnings, msg)
	}
	res.Validation = n.Validation
	res.Narrative = n
	res.Count("components", len(n.Components))
	res.Count("suggested_edits", len(n.SuggestedEdits))
	return res, nil
}

var hints = map[Intent]string{
	IntentContext:    "what was happening and why it mattered",
	IntentGoal:       "what you were responsible for",
	IntentObstacle:   "what stood in the way",
	IntentAction:     "the specific steps you took",
	IntentOutcome:    "measurable results or impact",
	IntentReflection: "what you would do differently",
}

// selectSources keeps the best candidate plus up to max-1 others that clear
// both the absolute floor and the relative cutoff.
func selectSources(candidates []scored, opts Options) []scored {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].relevance > candidates[j].relevance
	})
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0].relevance
	out := []scored{candidates[0]}
	for _, c := range candidates[1:] {
		if len(out) == opts.MaxSourcesPerSection {
			break
		}
		if c.relevance >= opts.RelevanceFloor && c.relevance >= best*relativeCutoff {
			out = append(out, c)
		}
	}
	return out
}

// alignParticipation returns one result per activity in cluster order.
// Activities without a result count as observers.
func alignParticipation(acts []model.Activity, parts []model.ParticipationResult) []model.ParticipationResult {
	byID := make(map[string]model.ParticipationResult, len(parts))
	for _, p := range parts {
		byID[p.ActivityID] = p
	}
	out := make([]model.ParticipationResult, len(acts))
	for i, a := range acts {
		p, ok := byID[a.ID]
		if !ok {
			p = model.ParticipationResult{ActivityID: a.ID, Level: model.LevelObserver, Signals: []string{participation.SignalNone}}
		}
		out[i] = p
	}
	return out
}

func sortedTools(hc model.HydratedCluster) []model.ToolType {
	tools := hc.ToolTypes()
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })
	return tools
}

// excerpt is the title followed by the first sentence of the body.
func excerpt(a model.Activity) string {
	title := strings.TrimSpace(a.Title)
	var first string
	if a.Body != nil {
		first = firstSentence(*a.Body)
	}
	var s string
	switch {
	case title == "":
		s = first
	case first == "":
		s = title
	default:
		s = strings.TrimRight(title, ".:") + ": " + first
	}
	s = truncate(s, maxExcerpt)
	if s != "" && !strings.HasSuffix(s, "…") && !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}

func firstSentence(body string) string {
	body = strings.TrimSpace(body)
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}
	for i := 0; i < len(body)-1; i++ {
		if strings.ContainsRune(".!?", rune(body[i])) && body[i+1] == ' ' {
			return body[:i+1]
		}
	}
	return body
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)[:max-1]
	return strings.TrimSpace(string(r)) + "…"
}
