package patterns

import (
	"regexp"
	"strings"

	"github.com/agenthands/storyline/internal/core/model"
)

// Prefixes that look like issue keys but name standards or encodings.
var nonTicketPrefixes = map[string]bool{
	"UTF": true, "ISO": true, "SHA": true, "RFC": true, "CVE": true,
	"HTTP": true, "TLS": true, "AES": true, "MD": true, "COVID": true,
	"GPT": true, "ECMA": true, "IEEE": true, "PEP": true, "WCAG": true,
}

func issueKey(groups []string) (string, bool) {
	project := strings.ToUpper(groups[1])
	if nonTicketPrefixes[project] {
		return "", false
	}
	return project + "-" + groups[2], true
}

func githubRef(groups []string) (string, bool) {
	return "github:" + strings.ToLower(groups[1]) + "/" + strings.ToLower(groups[2]) + "#" + groups[3], true
}

// Builtin returns the default reference corpus.
func Builtin() []Pattern {
	return []Pattern{
		{
			ID:         "jira-issue-key",
			Name:       "Jira issue key",
			Version:    1,
			Regex:      regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9})-([1-9][0-9]{0,6})\b`),
			ToolType:   model.ToolJira,
			Normalize:  issueKey,
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "Fixes AUTH-123 login redirect", Expected: "AUTH-123"},
				{Input: "see [PLAT2-7] for details", Expected: "PLAT2-7"},
				{Input: "https://acme.atlassian.net/browse/OPS-42", Expected: "OPS-42"},
			},
			Negative: []string{
				"auth-123 is lowercase",
				"A-1 has a one letter project",
				"AUTH-0123 has a leading zero",
				"TOOLONGPROJECTKEY-12",
			},
		},
		{
			ID:         "linear-issue-url",
			Name:       "Linear issue URL",
			Version:    1,
			Regex:      regexp.MustCompile(`https?://linear\.app/[A-Za-z0-9_-]+/issue/([A-Za-z][A-Za-z0-9]{1,9})-([1-9][0-9]{0,6})`),
			ToolType:   model.ToolGeneric,
			Normalize:  issueKey,
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "https://linear.app/acme/issue/ENG-88/fix-login", Expected: "ENG-88"},
				{Input: "tracked in https://linear.app/acme/issue/eng-9", Expected: "ENG-9"},
			},
			Negative: []string{
				"https://linear.app/acme/project/auth",
			},
		},
		{
			ID:         "github-url",
			Name:       "GitHub pull request or issue URL",
			Version:    1,
			Regex:      regexp.MustCompile(`https?://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/(?:pull|issues)/([0-9]+)`),
			ToolType:   model.ToolGitHub,
			Normalize:  githubRef,
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "https://github.com/Acme/Web-App/pull/42", Expected: "github:acme/web-app#42"},
				{Input: "closes https://github.com/acme/api/issues/7#issuecomment-1", Expected: "github:acme/api#7"},
			},
			Negative: []string{
				"https://github.com/acme/api/tree/main",
				"https://gitlab.com/acme/api/pull/3",
			},
		},
		{
			ID:         "github-short-ref",
			Name:       "GitHub owner/repo#number reference",
			Version:    1,
			Regex:      regexp.MustCompile(`\b([A-Za-z0-9][A-Za-z0-9-]{0,38})/([A-Za-z0-9_.-]+)#([0-9]+)\b`),
			ToolType:   model.ToolGitHub,
			Normalize:  githubRef,
			Confidence: model.ConfidenceMedium,
			Positive: []Example{
				{Input: "Follow-up to acme/api#7", Expected: "github:acme/api#7"},
			},
			Negative: []string{
				"see issue #7",
				"acme/api # 7",
			},
		},
		{
			ID:       "confluence-page-url",
			Name:     "Confluence page URL",
			Version:  1,
			Regex:    regexp.MustCompile(`https?://[A-Za-z0-9-]+\.atlassian\.net/wiki/spaces/[A-Za-z0-9~_-]+/pages/([0-9]+)`),
			ToolType: model.ToolConfluence,
			Normalize: func(groups []string) (string, bool) {
				return "confluence:" + groups[1], true
			},
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "Design: https://acme.atlassian.net/wiki/spaces/ENG/pages/123456/Auth+Redesign", Expected: "confluence:123456"},
			},
			Negative: []string{
				"https://acme.atlassian.net/browse/AUTH-123",
			},
		},
		{
			ID:       "google-doc-url",
			Name:     "Google Docs URL",
			Version:  1,
			Regex:    regexp.MustCompile(`https?://docs\.google\.com/(?:document|spreadsheets|presentation)/d/([A-Za-z0-9_-]{20,})`),
			ToolType: model.ToolGoogleDocs,
			Normalize: func(groups []string) (string, bool) {
				return "gdoc:" + groups[1], true
			},
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "https://docs.google.com/document/d/1AbCdEfGhIjKlMnOpQrStUv/edit", Expected: "gdoc:1AbCdEfGhIjKlMnOpQrStUv"},
			},
			Negative: []string{
				"https://docs.google.com/document/u/0/",
			},
		},
		{
			ID:       "figma-file-url",
			Name:     "Figma file URL",
			Version:  1,
			Regex:    regexp.MustCompile(`https?://(?:www\.)?figma\.com/(?:file|design|proto)/([A-Za-z0-9]{10,})`),
			ToolType: model.ToolFigma,
			Normalize: func(groups []string) (string, bool) {
				return "figma:" + groups[1], true
			},
			Confidence: model.ConfidenceHigh,
			Positive: []Example{
				{Input: "mock: https://www.figma.com/file/AbC123xYz789/Login-Flow", Expected: "figma:AbC123xYz789"},
			},
			Negative: []string{
				"https://www.figma.com/community/plugins",
			},
		},
		{
			ID:       "slack-thread-url",
			Name:     "Slack message permalink",
			Version:  1,
			Regex:    regexp.MustCompile(`https?://[A-Za-z0-9-]+\.slack\.com/archives/([A-Z0-9]{9,11})/p([0-9]{16})`),
			ToolType: model.ToolSlack,
			Normalize: func(groups []string) (string, bool) {
				ts := groups[2]
				return "slack:" + groups[1] + "/" + ts[:10] + "." + ts[10:], true
			},
			Confidence: model.ConfidenceMedium,
			Positive: []Example{
				{Input: "https://acme.slack.com/archives/C01ABCDEF12/p1712345678901234", Expected: "slack:C01ABCDEF12/1712345678.901234"},
			},
			Negative: []string{
				"https://acme.slack.com/archives/C01ABCDEF12",
			},
		},
		{
			ID:       "git-commit-sha",
			Name:     "Full git commit SHA",
			Version:  1,
			Regex:    regexp.MustCompile(`\b([0-9a-f]{40})\b`),
			ToolType: model.ToolGitHub,
			Normalize: func(groups []string) (string, bool) {
				return "commit:" + groups[1], true
			},
			Confidence: model.ConfidenceLow,
			Positive: []Example{
				{Input: "cherry-picked 3f786850e387550fdab836ed7e6dc881de23001b onto release", Expected: "commit:3f786850e387550fdab836ed7e6dc881de23001b"},
			},
			Negative: []string{
				"short sha 3f78685",
				"3F786850E387550FDAB836ED7E6DC881DE23001B",
			},
		},
	}
}
