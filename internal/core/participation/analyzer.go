// Package participation classifies how a persona was involved in each
// activity of a hydrated cluster.
package participation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agenthands/storyline/internal/core/model"
	"github.com/tidwall/gjson"
)

const (
	SignalAuthor    = "author-match"
	SignalAssignee  = "assignee-match"
	SignalReviewer  = "reviewer-match"
	SignalCoauthor  = "coauthor-match"
	SignalCommenter = "commenter-match"
	SignalMention   = "mention-field"
	SignalText      = "mention-text"
	SignalNone      = "no-identity-signal"
)

// Role binds raw payload paths to the level and signal they imply.
type Role struct {
	Level  model.ParticipationLevel
	Signal string
	Paths  []string
}

// DefaultRoles covers the payload shapes of GitHub, Jira, Slack, Confluence
// and generic webhook exports. Paths use gjson syntax.
var DefaultRoles = []Role{
	{model.LevelInitiator, SignalAuthor, []string{
		"author", "user", "creator", "owner", "created_by", "reporter",
		"fields.creator", "fields.reporter", "history.createdBy",
	}},
	{model.LevelContributor, SignalAssignee, []string{"assignee", "assignees", "fields.assignee"}},
	{model.LevelContributor, SignalReviewer, []string{"reviewers", "requested_reviewers", "reviews.#.user"}},
	{model.LevelContributor, SignalCoauthor, []string{"co_authors", "coauthors", "contributors"}},
	{model.LevelContributor, SignalCommenter, []string{
		"commenters", "comments.#.author", "comments.#.user", "fields.comment.comments.#.author",
	}},
	{model.LevelMentioned, SignalMention, []string{"mentions", "mentioned_users"}},
}

// identityKeys are the object members inspected when a role path resolves
// to a user object rather than a plain string.
var identityKeys = []string{
	"login", "email", "emailAddress", "name", "displayName", "display_name",
	"accountId", "account_id", "id", "username",
}

// Identifiers shorter than this are not searched for in free text.
const minTextIdentifier = 3

type Analyzer struct {
	Roles []Role
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{Roles: DefaultRoles}
}

// Analyze returns exactly one result per activity, in cluster order. The
// strongest level found wins; Signals lists every signal observed.
func (a *Analyzer) Analyze(hc model.HydratedCluster, persona model.Persona) []model.ParticipationResult {
	results := make([]model.ParticipationResult, 0, len(hc.Activities))
	for _, act := range hc.Activities {
		results = append(results, a.classify(act, persona))
	}
	return results
}

func (a *Analyzer) classify(act model.Activity, persona model.Persona) model.ParticipationResult {
	ids := make(map[string]bool)
	for _, id := range persona.Identifiers(act.Tool) {
		ids[id] = true
	}

	level := model.LevelObserver
	var signals []string
	seen := make(map[string]bool)
	hit := func(l model.ParticipationLevel, signal string) {
		if !seen[signal] {
			seen[signal] = true
			signals = append(signals, signal)
		}
		if stronger(l, level) {
			level = l
		}
	}

	if len(ids) > 0 && len(act.Raw) > 0 && gjson.ValidBytes(act.Raw) {
		for _, role := range a.Roles {
			for _, path := range role.Paths {
				if matchesAny(gjson.GetBytes(act.Raw, path), ids) {
					hit(role.Level, role.Signal)
					break
				}
			}
		}
	}

	if re := mentionRegexp(persona, act.Tool); re != nil && re.MatchString(act.Text()) {
		hit(model.LevelMentioned, SignalText)
	}

	if len(signals) == 0 {
		signals = []string{SignalNone}
	}
	return model.ParticipationResult{ActivityID: act.ID, Level: level, Signals: signals}
}

// Summarize counts results per level. Every level is present in the map.
func Summarize(results []model.ParticipationResult) map[model.ParticipationLevel]int {
	out := make(map[model.ParticipationLevel]int, len(model.Levels))
	for _, l := range model.Levels {
		out[l] = 0
	}
	for _, r := range results {
		out[r.Level]++
	}
	return out
}

func stronger(a, b model.ParticipationLevel) bool {
	return rank(a) < rank(b)
}

func rank(l model.ParticipationLevel) int {
	for i, v := range model.Levels {
		if v == l {
			return i
		}
	}
	return len(model.Levels)
}

func matchesAny(r gjson.Result, ids map[string]bool) bool {
	for _, v := range flatten(r) {
		v = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "@")
		if ids[v] {
			return true
		}
	}
	return false
}

func flatten(r gjson.Result) []string {
	switch {
	case !r.Exists():
		return nil
	case r.IsArray():
		var out []string
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, flatten(v)...)
			return true
		})
		return out
	case r.IsObject():
		var out []string
		for _, k := range identityKeys {
			out = append(out, flatten(r.Get(k))...)
		}
		return out
	case r.Type == gjson.String:
		return []string{r.Str}
	case r.Type == gjson.Number:
		return []string{r.Raw}
	}
	return nil
}

// mentionRegexp matches any persona identifier as a whole word, optionally
// prefixed with '@'. Slack style "<@U123>" mentions match too.
func mentionRegexp(persona model.Persona, tool model.ToolType) *regexp.Regexp {
	var alts []string
	for _, id := range persona.Identifiers(tool) {
		if len(id) >= minTextIdentifier {
			alts = append(alts, regexp.QuoteMeta(id))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	// Longest first so "jane doe" wins over "jane".
	sort.Slice(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	return regexp.MustCompile(`(?i)(?:^|[^\w.-])@?(?:` + strings.Join(alts, "|") + `)(?:$|[^\w-])`)
}
