package narrative

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_AuthStory(t *testing.T) {
	res, err := NewExtractor(nil).Extract(testutil.AuthCluster(), testutil.Jane(), Options{})
	require.NoError(t, err)
	require.True(t, res.Validation.Passed)
	assert.Equal(t, 1.0, res.Validation.Score)
	assert.Empty(t, res.Errors)

	n := res.Narrative
	require.NotNil(t, n)
	assert.Equal(t, "star", n.Framework)
	require.Len(t, n.Components, 4)
	var sections []string
	for _, c := range n.Components {
		sections = append(sections, c.Section)
		assert.NotEmpty(t, c.Text)
		assert.NotEmpty(t, c.Sources)
		assert.True(t, c.Confidence > 0 && c.Confidence <= 1)
	}
	assert.Equal(t, []string{"situation", "task", "action", "result"}, sections)

	action, _ := n.Component("action")
	assert.Equal(t, []string{"pr-1"}, action.Sources)
	assert.Contains(t, action.Text, "Implemented refresh token rotation")

	result, _ := n.Component("result")
	assert.Contains(t, result.Sources, "pr-1")
	assert.Contains(t, result.Sources, "jira-1")

	situation, _ := n.Component("situation")
	assert.Equal(t, []string{"jira-1"}, situation.Sources)

	assert.Equal(t, map[model.ParticipationLevel]int{
		model.LevelInitiator:   1,
		model.LevelContributor: 1,
		model.LevelMentioned:   1,
		model.LevelObserver:    0,
	}, n.ParticipationSummary)
	assert.Equal(t, []model.ToolType{model.ToolGitHub, model.ToolJira, model.ToolSlack}, n.Metadata.Tools)
	assert.Equal(t, 3, n.Metadata.ActivityCount)
	assert.Equal(t, testutil.Start, n.Metadata.DateRange.Start)
	assert.Empty(t, n.SuggestedEdits)
	assert.Empty(t, res.Warnings)
}

func TestExtract_ObserversFailGates(t *testing.T) {
	res, err := NewExtractor(nil).Extract(testutil.ObserverCluster(5), testutil.Jane(), Options{})
	require.NoError(t, err, "gate failure is a result, not an error")
	assert.Nil(t, res.Narrative)
	assert.False(t, res.Validation.Passed)
	assert.Equal(t, []string{GateMaxObserverRatio}, res.Validation.FailedGates)
	assert.InDelta(t, 2.0/3.0, res.Validation.Score, 1e-9)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, common.CodeValidationGatesFailed, res.Errors[0].Code)
	assert.True(t, common.IsValidationFailure(res.Errors[0]))
}

func TestExtract_SingleActivityFailsCountAndTools(t *testing.T) {
	hc := testutil.AuthCluster()
	hc.Activities = hc.Activities[1:2]
	res, err := NewExtractor(nil).Extract(hc, testutil.Jane(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{GateMinActivities, GateMinToolTypes}, res.Validation.FailedGates)
}

func TestExtract_UnknownFramework(t *testing.T) {
	_, err := NewExtractor(nil).Extract(testutil.AuthCluster(), testutil.Jane(), Options{Framework: "haiku"})
	require.Error(t, err)
	assert.Equal(t, common.CodeUnknownFramework, common.CodeOf(err))
	assert.True(t, common.IsInput(err))
}

func TestExtract_AllFrameworks(t *testing.T) {
	for _, fw := range Frameworks() {
		t.Run(fw.Name, func(t *testing.T) {
			res, err := NewExtractor(nil).Extract(testutil.AuthCluster(), testutil.Jane(), Options{Framework: fw.Name})
			require.NoError(t, err)
			require.NotNil(t, res.Narrative)
			require.Len(t, res.Narrative.Components, len(fw.Sections))
			for i, s := range fw.Sections {
				assert.Equal(t, s.Name, res.Narrative.Components[i].Section)
			}
		})
	}
}

func TestExtract_Warnings(t *testing.T) {
	hc := testutil.AuthCluster()
	// Push the ticket back a year and strip outcome evidence.
	hc.Activities[0].Timestamp = hc.Activities[0].Timestamp.Add(-365 * 24 * time.Hour)
	hc.Activities[0].Raw = nil
	hc.Activities[1].Body = nil
	hc.Activities[1].Raw = nil
	hc.Activities[2].Body = nil

	stranger := model.Persona{ID: "p-x", DisplayName: "Xavier Quill"}
	parts := []model.ParticipationResult{
		{ActivityID: "jira-1", Level: model.LevelMentioned},
		{ActivityID: "pr-1", Level: model.LevelMentioned},
		{ActivityID: "slack-1", Level: model.LevelObserver},
	}

	res, err := NewExtractor(nil).ExtractWith(hc, stranger, parts, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Narrative)
	assert.True(t, res.HasWarning(CodeNoDirectParticipation))
	assert.True(t, res.HasWarning(CodeLongSpan))
	assert.True(t, res.HasWarning(CodeNoOutcomeEvidence))
	assert.Len(t, res.Narrative.Validation.Warnings, 3)
	require.Len(t, res.Warnings, 3)
	for i, w := range res.Warnings {
		assert.Equal(t, res.Narrative.Validation.Warnings[i], w.Message)
		assert.NotContains(t, w.Message, "%!")
	}
	assert.NotEmpty(t, res.Narrative.SuggestedEdits)
}

func randomCluster(r *rand.Rand) model.HydratedCluster {
	tools := []model.ToolType{model.ToolGitHub, model.ToolJira, model.ToolSlack, model.ToolConfluence, model.ToolFigma}
	titles := []string{"Fix flaky login", "Plan Q3 migration", "Reduced p99 by 40%", "Blocked on vendor", "Retro notes", "Weekly sync"}
	n := 2 + r.Intn(8)
	hc := model.HydratedCluster{Cluster: model.Cluster{ID: "rnd", SharedReferences: []string{"OPS-1"}}}
	for i := 0; i < n; i++ {
		hc.Activities = append(hc.Activities, model.Activity{
			ID:         fmt.Sprintf("a%d", i),
			Tool:       tools[r.Intn(len(tools))],
			References: []string{"OPS-1"},
			Title:      titles[r.Intn(len(titles))] + " OPS-1",
			Timestamp:  testutil.Start.Add(time.Duration(r.Intn(500)) * time.Hour),
		})
	}
	return hc
}

func randomParticipation(r *rand.Rand, hc model.HydratedCluster) []model.ParticipationResult {
	var out []model.ParticipationResult
	for _, a := range hc.Activities {
		out = append(out, model.ParticipationResult{ActivityID: a.ID, Level: model.Levels[r.Intn(len(model.Levels))]})
	}
	return out
}

func TestExtract_OverallConfidenceBounds(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	e := NewExtractor(nil)
	checked := 0
	for i := 0; i < 200; i++ {
		hc := randomCluster(r)
		fw := Frameworks()[r.Intn(len(Frameworks()))]
		res, err := e.ExtractWith(hc, testutil.Jane(), randomParticipation(r, hc), Options{Framework: fw.Name})
		require.NoError(t, err)
		if res.Narrative == nil {
			continue
		}
		checked++
		lo, hi := 1.0, 0.0
		for _, c := range res.Narrative.Components {
			lo = min(lo, c.Confidence)
			hi = max(hi, c.Confidence)
		}
		assert.LessOrEqual(t, res.Narrative.Confidence, 1.0)
		assert.GreaterOrEqual(t, res.Narrative.Confidence, lo)
		assert.LessOrEqual(t, res.Narrative.Confidence, hi)
		assert.LessOrEqual(t, res.Narrative.Confidence, lo+0.15+1e-9)
	}
	assert.Greater(t, checked, 20)
}

func TestGates_Monotonic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	g := DefaultGates()
	tools := []model.ToolType{model.ToolGitHub, model.ToolJira, model.ToolFigma}
	for i := 0; i < 100; i++ {
		hc := randomCluster(r)
		parts := randomParticipation(r, hc)
		if !g.Check(hc, parts).Passed {
			continue
		}
		for k := 0; k < 1+r.Intn(5); k++ {
			a := model.Activity{ID: fmt.Sprintf("extra-%d", k), Tool: tools[r.Intn(len(tools))]}
			hc.Activities = append(hc.Activities, a)
			parts = append(parts, model.ParticipationResult{ActivityID: a.ID, Level: model.Levels[r.Intn(3)]})
			assert.True(t, g.Check(hc, parts).Passed)
		}
	}
}

func TestLookup(t *testing.T) {
	f, ok := Lookup("")
	require.True(t, ok)
	assert.Equal(t, DefaultFramework, f.Name)

	f, ok = Lookup(" CAR ")
	require.True(t, ok)
	assert.Equal(t, "challenge", f.Sections[0].Name)

	_, ok = Lookup("limerick")
	assert.False(t, ok)
}

func TestExcerpt(t *testing.T) {
	body := "First line here. Second line."
	assert.Equal(t, "Title: First line here.", excerpt(model.Activity{Title: "Title.", Body: &body}))
	assert.Equal(t, "Only title.", excerpt(model.Activity{Title: "Only title"}))

	out := excerpt(model.Activity{Title: strings.Repeat("word ", 50)})
	assert.LessOrEqual(t, len([]rune(out)), maxExcerpt)
	assert.True(t, len(out) > 0)
}
