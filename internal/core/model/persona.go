package model

import "strings"

type ToolIdentity struct {
	AccountID   string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Login       string `json:"login,omitempty" yaml:"login,omitempty"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Persona is the individual whose participation is evaluated.
type Persona struct {
	ID          string                    `json:"id" yaml:"id"`
	DisplayName string                    `json:"display_name" yaml:"display_name"`
	Emails      []string                  `json:"emails,omitempty" yaml:"emails,omitempty"`
	Identities  map[ToolType]ToolIdentity `json:"identities,omitempty" yaml:"identities,omitempty"`
}

// Identifiers returns the lower-cased structural identifiers the persona is
// known by in the given tool: the tool identity, the generic identity and
// every email.
func (p Persona) Identifiers(tool ToolType) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			seen[v] = true
			ids = append(ids, v)
		}
	}
	for _, t := range []ToolType{tool, ToolGeneric} {
		if id, ok := p.Identities[t]; ok {
			add(id.AccountID)
			add(id.Login)
			add(id.DisplayName)
			add(id.Email)
		}
	}
	for _, e := range p.Emails {
		add(e)
	}
	add(p.DisplayName)
	return ids
}
