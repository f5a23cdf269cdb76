package model

import (
	"encoding/json"
	"strings"
	"time"
)

type ToolType string

const (
	ToolGitHub     ToolType = "github"
	ToolJira       ToolType = "jira"
	ToolConfluence ToolType = "confluence"
	ToolSlack      ToolType = "slack"
	ToolGoogleDocs ToolType = "google_docs"
	ToolFigma      ToolType = "figma"
	ToolGeneric    ToolType = "generic"
)

// ParseToolType maps a free-form tool name onto a known ToolType. Unknown
// names become ToolGeneric.
func ParseToolType(s string) ToolType {
	switch t := ToolType(strings.ToLower(strings.TrimSpace(s))); t {
	case ToolGitHub, ToolJira, ToolConfluence, ToolSlack, ToolGoogleDocs, ToolFigma:
		return t
	case "gdocs", "google-docs":
		return ToolGoogleDocs
	default:
		return ToolGeneric
	}
}

// Activity is a single unit of recorded work pulled from an external tool.
// The pipeline never mutates activities it did not create.
type Activity struct {
	ID         string          `json:"id"`
	Tool       ToolType        `json:"tool"`
	References []string        `json:"references,omitempty"`
	Title      string          `json:"title"`
	Body       *string         `json:"body,omitempty"`
	SourceURL  string          `json:"source_url,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// TextFragments returns the free text of the activity in a stable order.
func (a Activity) TextFragments() []*string {
	title := a.Title
	return []*string{&title, a.Body}
}

// Text joins the non-empty free text fields.
func (a Activity) Text() string {
	if a.Body == nil || *a.Body == "" {
		return a.Title
	}
	if a.Title == "" {
		return *a.Body
	}
	return a.Title + "\n" + *a.Body
}
