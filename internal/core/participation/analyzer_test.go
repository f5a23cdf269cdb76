package participation

import (
	"encoding/json"
	"testing"

	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(results []model.ParticipationResult) map[string]model.ParticipationLevel {
	out := make(map[string]model.ParticipationLevel)
	for _, r := range results {
		out[r.ActivityID] = r.Level
	}
	return out
}

func TestAnalyze_AuthStory(t *testing.T) {
	results := NewAnalyzer().Analyze(testutil.AuthCluster(), testutil.Jane())
	require.Len(t, results, 3)

	assert.Equal(t, map[string]model.ParticipationLevel{
		"jira-1":  model.LevelContributor,
		"pr-1":    model.LevelInitiator,
		"slack-1": model.LevelMentioned,
	}, levels(results))

	assert.Equal(t, "jira-1", results[0].ActivityID, "cluster order is kept")
	assert.Equal(t, []string{SignalAssignee}, results[0].Signals)
	assert.Equal(t, []string{SignalAuthor}, results[1].Signals)
	assert.Equal(t, []string{SignalText}, results[2].Signals)
}

func TestAnalyze_Total(t *testing.T) {
	hc := testutil.ObserverCluster(5)
	hc.Activities = append(hc.Activities, model.Activity{ID: "no-raw", Tool: model.ToolFigma})

	results := NewAnalyzer().Analyze(hc, testutil.Jane())
	require.Len(t, results, len(hc.Activities))
	for _, r := range results {
		assert.Equal(t, model.LevelObserver, r.Level)
		assert.Equal(t, []string{SignalNone}, r.Signals)
	}

	sum := Summarize(results)
	assert.Equal(t, 6, sum[model.LevelObserver])
	assert.Equal(t, 0, sum[model.LevelInitiator])
	assert.Len(t, sum, 4)
}

func TestAnalyze_Precedence(t *testing.T) {
	act := model.Activity{
		ID:    "pr-2",
		Tool:  model.ToolGitHub,
		Title: "cc @janedoe",
		Raw: json.RawMessage(`{
			"user": {"login": "janedoe"},
			"assignees": [{"login": "JaneDoe"}],
			"mentions": ["janedoe"]
		}`),
	}
	hc := model.HydratedCluster{Activities: []model.Activity{act}}

	r := NewAnalyzer().Analyze(hc, testutil.Jane())[0]
	assert.Equal(t, model.LevelInitiator, r.Level)
	assert.Equal(t, []string{SignalAuthor, SignalAssignee, SignalMention, SignalText}, r.Signals)
}

func TestAnalyze_StructuralRoles(t *testing.T) {
	tests := []struct {
		name   string
		tool   model.ToolType
		raw    string
		level  model.ParticipationLevel
		signal string
	}{
		{"commit author email", model.ToolGitHub, `{"author": {"name": "J", "email": "Jane@Acme.io"}}`, model.LevelInitiator, SignalAuthor},
		{"jira creator", model.ToolJira, `{"fields": {"creator": {"accountId": "5f1a2b"}}}`, model.LevelInitiator, SignalAuthor},
		{"reviewer", model.ToolGitHub, `{"user": {"login": "sam"}, "reviews": [{"user": {"login": "janedoe"}}]}`, model.LevelContributor, SignalReviewer},
		{"coauthor", model.ToolGitHub, `{"co_authors": ["jane@acme.io"]}`, model.LevelContributor, SignalCoauthor},
		{"commenter", model.ToolJira, `{"fields": {"comment": {"comments": [{"author": {"displayName": "Jane Doe"}}]}}}`, model.LevelContributor, SignalCommenter},
		{"mention field", model.ToolSlack, `{"user": "U0SAM", "mentions": ["U024JANE"]}`, model.LevelMentioned, SignalMention},
		{"malformed raw", model.ToolGitHub, `{not json`, model.LevelObserver, SignalNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := model.HydratedCluster{Activities: []model.Activity{{ID: "x", Tool: tt.tool, Raw: json.RawMessage(tt.raw)}}}
			r := NewAnalyzer().Analyze(hc, testutil.Jane())[0]
			assert.Equal(t, tt.level, r.Level)
			assert.Contains(t, r.Signals, tt.signal)
		})
	}
}

func TestAnalyze_TextMentionIsWholeWord(t *testing.T) {
	p := testutil.Jane()
	cases := map[string]bool{
		"pinged @janedoe about it":         true,
		"Jane Doe signed off":              true,
		"mail jane@acme.io for access":     true,
		"janedoesnt exist":                 false,
		"the janedoe-bot posted a summary": false,
	}
	for text, want := range cases {
		hc := model.HydratedCluster{Activities: []model.Activity{{ID: "x", Tool: model.ToolGitHub, Title: text}}}
		r := NewAnalyzer().Analyze(hc, p)[0]
		assert.Equal(t, want, r.Level == model.LevelMentioned, text)
	}
}
