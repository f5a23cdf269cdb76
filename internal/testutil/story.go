// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agenthands/storyline/internal/core/model"
)

var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func str(s string) *string { return &s }

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Jane is the persona used across the AUTH-123 fixtures.
func Jane() model.Persona {
	return model.Persona{
		ID:          "p-jane",
		DisplayName: "Jane Doe",
		Emails:      []string{"jane@acme.io"},
		Identities: map[model.ToolType]model.ToolIdentity{
			model.ToolGitHub: {Login: "janedoe"},
			model.ToolJira:   {AccountID: "5f1a2b", DisplayName: "Jane Doe"},
			model.ToolSlack:  {AccountID: "U024JANE"},
		},
	}
}

// AuthStory returns a ticket assigned to Jane, a pull request she authored
// and a Slack message mentioning her, all referencing AUTH-123.
func AuthStory() []model.Activity {
	return []model.Activity{
		{
			ID:         "jira-1",
			Tool:       model.ToolJira,
			References: []string{"AUTH-123"},
			Title:      "AUTH-123: Login sessions expire randomly for SSO users",
			Body:       str("Users report being logged out after a few minutes because refresh tokens are not rotated. We need to fix session renewal before the enterprise rollout."),
			SourceURL:  "https://acme.atlassian.net/browse/AUTH-123",
			Timestamp:  Start,
			Raw: raw(map[string]any{"fields": map[string]any{
				"reporter": map[string]any{"accountId": "7c9d", "displayName": "Sam Lee"},
				"assignee": map[string]any{"accountId": "5f1a2b", "displayName": "Jane Doe"},
				"status":   map[string]any{"name": "Done"},
			}}),
		},
		{
			ID:         "pr-1",
			Tool:       model.ToolGitHub,
			References: []string{"AUTH-123"},
			Title:      "Fix token rotation for SSO sessions (AUTH-123)",
			Body:       str("Implemented refresh token rotation and added retry on expired sessions. Reduced forced logouts by 90% in staging."),
			SourceURL:  "https://github.com/acme/auth/pull/42",
			Timestamp:  Start.Add(48 * time.Hour),
			Raw: raw(map[string]any{
				"user":                map[string]any{"login": "janedoe"},
				"merged":              true,
				"requested_reviewers": []any{map[string]any{"login": "samlee"}},
			}),
		},
		{
			ID:         "slack-1",
			Tool:       model.ToolSlack,
			References: []string{"AUTH-123"},
			Title:      "Message in #auth-team",
			Body:       str("Thanks <@U024JANE> for landing the AUTH-123 fix, SSO logins are stable now."),
			Timestamp:  Start.Add(72 * time.Hour),
			Raw:        raw(map[string]any{"user": "U0SAM", "channel": "C01AUTH"}),
		},
	}
}

// AuthCluster is the hydrated cluster of AuthStory.
func AuthCluster() model.HydratedCluster {
	acts := AuthStory()
	ids := make([]string, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
	}
	return model.HydratedCluster{
		Cluster: model.Cluster{
			ID:               "cluster-auth-123",
			ActivityIDs:      ids,
			SharedReferences: []string{"AUTH-123"},
			Metrics: model.ClusterMetrics{
				ActivityCount: 3,
				ToolCount:     3,
				Tools:         []model.ToolType{model.ToolGitHub, model.ToolJira, model.ToolSlack},
				Earliest:      acts[0].Timestamp,
				Latest:        acts[2].Timestamp,
			},
		},
		Activities: acts,
	}
}

// ObserverCluster has n activities over several tools with no identity
// signal for Jane.
func ObserverCluster(n int) model.HydratedCluster {
	tools := []model.ToolType{model.ToolJira, model.ToolGitHub, model.ToolConfluence, model.ToolSlack}
	hc := model.HydratedCluster{Cluster: model.Cluster{ID: "cluster-observed", SharedReferences: []string{"OPS-7"}}}
	for i := 0; i < n; i++ {
		a := model.Activity{
			ID:         fmt.Sprintf("obs-%d", i),
			Tool:       tools[i%len(tools)],
			References: []string{"OPS-7"},
			Title:      fmt.Sprintf("OPS-7 follow-up %d", i),
			Body:       str("Rotated the on-call schedule for the payments team."),
			Timestamp:  Start.Add(time.Duration(i) * time.Hour),
			Raw:        raw(map[string]any{"user": map[string]any{"login": "someone-else"}}),
		}
		hc.ActivityIDs = append(hc.ActivityIDs, a.ID)
		hc.Activities = append(hc.Activities, a)
	}
	return hc
}
