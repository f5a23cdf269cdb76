package model

import "time"

type ClusterMetrics struct {
	ActivityCount int        `json:"activity_count"`
	ToolCount     int        `json:"tool_count"`
	Tools         []ToolType `json:"tools"`
	Earliest      time.Time  `json:"earliest"`
	Latest        time.Time  `json:"latest"`
}

// Cluster is a connected component of activities linked by shared references.
type Cluster struct {
	ID               string         `json:"id"`
	ActivityIDs      []string       `json:"activity_ids"`
	SharedReferences []string       `json:"shared_references"`
	Metrics          ClusterMetrics `json:"metrics"`
}

type HydratedCluster struct {
	Cluster
	Activities []Activity `json:"activities"`
}

// ToolTypes returns the distinct tools present in the hydrated activities.
func (h HydratedCluster) ToolTypes() []ToolType {
	seen := make(map[ToolType]bool)
	var tools []ToolType
	for _, a := range h.Activities {
		if !seen[a.Tool] {
			seen[a.Tool] = true
			tools = append(tools, a.Tool)
		}
	}
	return tools
}
