package narrative

import (
	"math"
	"strings"

	"github.com/agenthands/storyline/internal/core/model"
	"github.com/tidwall/gjson"
)

// Relevance weights. They sum to 1 so relevance stays in [0,1].
const (
	weightAffinity      = 0.35
	weightCues          = 0.25
	weightTemporal      = 0.20
	weightParticipation = 0.20

	cueSaturation = 2
)

var toolAffinity = map[Intent]map[model.ToolType]float64{
	IntentContext: {
		model.ToolJira: 1.0, model.ToolConfluence: 0.9, model.ToolGoogleDocs: 0.8,
		model.ToolSlack: 0.6, model.ToolFigma: 0.5, model.ToolGitHub: 0.4,
	},
	IntentGoal: {
		model.ToolJira: 1.0, model.ToolConfluence: 0.8, model.ToolGoogleDocs: 0.7,
		model.ToolFigma: 0.6, model.ToolSlack: 0.4, model.ToolGitHub: 0.4,
	},
	IntentObstacle: {
		model.ToolJira: 0.9, model.ToolSlack: 0.8, model.ToolGitHub: 0.6,
		model.ToolConfluence: 0.6, model.ToolGoogleDocs: 0.5, model.ToolFigma: 0.4,
	},
	IntentAction: {
		model.ToolGitHub: 1.0, model.ToolFigma: 0.8, model.ToolGoogleDocs: 0.6,
		model.ToolConfluence: 0.6, model.ToolJira: 0.5, model.ToolSlack: 0.3,
	},
	IntentOutcome: {
		model.ToolGitHub: 0.8, model.ToolJira: 0.8, model.ToolConfluence: 0.6,
		model.ToolSlack: 0.5, model.ToolGoogleDocs: 0.5, model.ToolFigma: 0.5,
	},
	IntentReflection: {
		model.ToolConfluence: 0.9, model.ToolGoogleDocs: 0.9, model.ToolSlack: 0.7,
		model.ToolJira: 0.4, model.ToolFigma: 0.4, model.ToolGitHub: 0.3,
	},
}

const defaultAffinity = 0.5

// cues are lower-case substrings that hint an activity speaks to an intent.
var cues = map[Intent][]string{
	IntentContext:    {"report", "users", "customer", "currently", "background", "problem", "issue", "because", "when "},
	IntentGoal:       {"need to", "should", "goal", "must", "require", "so that", "in order to", "plan", "target"},
	IntentObstacle:   {"blocked", "fail", "error", "bug", "broken", "regression", "outage", "expire", "flaky", "risk", "challenge"},
	IntentAction:     {"implement", "add", "fix", "refactor", "build", "built", "migrat", "rewr", "introduc", "creat", "updat"},
	IntentOutcome:    {"reduced", "improved", "increased", "decreased", "%", "merged", "shipped", "released", "launched", "resolved", "stable", "faster", "saved"},
	IntentReflection: {"learned", "lesson", "retro", "next time", "takeaway", "postmortem", "in hindsight"},
}

var doneStates = map[string]bool{
	"done": true, "closed": true, "resolved": true, "merged": true, "released": true, "complete": true, "completed": true,
}

// finished reports whether the raw payload records a terminal state: a
// merged pull request or a done ticket.
func finished(a model.Activity) bool {
	if len(a.Raw) == 0 || !gjson.ValidBytes(a.Raw) {
		return false
	}
	if gjson.GetBytes(a.Raw, "merged").Bool() {
		return true
	}
	for _, path := range []string{"fields.status.name", "status", "state"} {
		if doneStates[strings.ToLower(gjson.GetBytes(a.Raw, path).String())] {
			return true
		}
	}
	return false
}

func cueHits(intent Intent, text string, a model.Activity) int {
	hits := 0
	for _, c := range cues[intent] {
		if strings.Contains(text, c) {
			hits++
		}
	}
	if intent == IntentOutcome && finished(a) {
		hits++
	}
	return hits
}

// temporal scores the position of an activity in the cluster timeline, pos
// in [0,1] where 0 is the earliest.
func temporal(intent Intent, pos float64) float64 {
	switch intent {
	case IntentContext, IntentGoal:
		return 1 - pos
	case IntentOutcome, IntentReflection:
		return pos
	default:
		return 1 - math.Abs(pos-0.5)
	}
}

type scored struct {
	activity  model.Activity
	level     model.ParticipationLevel
	tier      model.Confidence
	relevance float64
}

func relevance(intent Intent, a model.Activity, text string, pos float64, level model.ParticipationLevel) float64 {
	aff, ok := toolAffinity[intent][a.Tool]
	if !ok {
		aff = defaultAffinity
	}
	cue := math.Min(1, float64(cueHits(intent, text, a))/cueSaturation)
	return weightAffinity*aff +
		weightCues*cue +
		weightTemporal*temporal(intent, pos) +
		weightParticipation*level.Weight()
}

// componentConfidence combines the quality of the sources (who did the work,
// how firmly the activity is tied to the cluster) with how many sources back
// the section and how well they fit it.
func componentConfidence(sources []scored) float64 {
	if len(sources) == 0 {
		return 0
	}
	var relSum, quality float64
	for _, s := range sources {
		relSum += s.relevance
		quality += s.relevance * (0.6*s.level.Weight() + 0.4*s.tier.Weight())
	}
	if relSum == 0 {
		return 0
	}
	quality /= relSum
	support := math.Min(1, 0.6+0.2*float64(len(sources)))
	fit := math.Min(1, (relSum/float64(len(sources)))/0.6)
	return clamp01(quality * support * fit)
}

// overallConfidence is the source-weighted mean of the components, capped
// at the weakest component plus bonus.
func overallConfidence(components []model.NarrativeComponent, bonus float64) float64 {
	if len(components) == 0 {
		return 0
	}
	var sum, weights float64
	lowest := 1.0
	for _, c := range components {
		w := float64(len(c.Sources))
		if w == 0 {
			w = 1
		}
		sum += w * c.Confidence
		weights += w
		lowest = math.Min(lowest, c.Confidence)
	}
	return clamp01(math.Min(sum/weights, lowest+bonus))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
