package narrative

import (
	"sort"
	"strings"
)

// Intent is what a section is about. Relevance scoring is keyed by intent,
// so frameworks only need to map their section names onto intents.
type Intent string

const (
	IntentContext    Intent = "context"
	IntentGoal       Intent = "goal"
	IntentObstacle   Intent = "obstacle"
	IntentAction     Intent = "action"
	IntentOutcome    Intent = "outcome"
	IntentReflection Intent = "reflection"
)

type Section struct {
	Name   string `json:"name"`
	Intent Intent `json:"intent"`
}

type Framework struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Sections    []Section `json:"sections"`
	Suitability string    `json:"suitability"`
}

const DefaultFramework = "star"

var frameworks = map[string]Framework{
	"star": {
		Name:  "star",
		Title: "Situation / Task / Action / Result",
		Sections: []Section{
			{"situation", IntentContext},
			{"task", IntentGoal},
			{"action", IntentAction},
			{"result", IntentOutcome},
		},
		Suitability: "General purpose behavioural answers where a clear responsibility was owned.",
	},
	"starl": {
		Name:  "starl",
		Title: "Situation / Task / Action / Result / Learning",
		Sections: []Section{
			{"situation", IntentContext},
			{"task", IntentGoal},
			{"action", IntentAction},
			{"result", IntentOutcome},
			{"learning", IntentReflection},
		},
		Suitability: "Growth and retrospective questions; needs a postmortem or retro to back the learning.",
	},
	"car": {
		Name:  "car",
		Title: "Challenge / Action / Result",
		Sections: []Section{
			{"challenge", IntentObstacle},
			{"action", IntentAction},
			{"result", IntentOutcome},
		},
		Suitability: "Short answers and resume bullets centred on a single hard problem.",
	},
	"soar": {
		Name:  "soar",
		Title: "Situation / Obstacles / Actions / Results",
		Sections: []Section{
			{"situation", IntentContext},
			{"obstacles", IntentObstacle},
			{"actions", IntentAction},
			{"results", IntentOutcome},
		},
		Suitability: "Incidents and projects where blockers shaped the work.",
	},
	"par": {
		Name:  "par",
		Title: "Problem / Action / Result",
		Sections: []Section{
			{"problem", IntentObstacle},
			{"action", IntentAction},
			{"result", IntentOutcome},
		},
		Suitability: "Bug fixes and technical investigations.",
	},
}

// Lookup returns the named framework. An empty name selects the default.
func Lookup(name string) (Framework, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultFramework
	}
	f, ok := frameworks[name]
	return f, ok
}

// Frameworks lists the registry sorted by name.
func Frameworks() []Framework {
	out := make([]Framework, 0, len(frameworks))
	for _, f := range frameworks {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
