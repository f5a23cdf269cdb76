package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore keeps activities, clusters and personas in Memgraph.
// Activities link to (:Reference) nodes and clusters to their members via
// HAS_MEMBER, so the clustering can be inspected in the graph.
type GraphStore struct {
	Driver GraphDriver
}

func NewGraphStore(d GraphDriver) *GraphStore {
	return &GraphStore{Driver: d}
}

// SaveActivities upserts activities and returns how many were written.
func (s *GraphStore) SaveActivities(ctx context.Context, activities []model.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	rows := make([]map[string]interface{}, 0, len(activities))
	for _, a := range activities {
		var body interface{}
		if a.Body != nil {
			body = *a.Body
		}
		refs := make([]interface{}, len(a.References))
		for i, r := range a.References {
			refs[i] = r
		}
		rows = append(rows, map[string]interface{}{
			"id":         a.ID,
			"tool":       string(a.Tool),
			"title":      a.Title,
			"body":       body,
			"source_url": a.SourceURL,
			"ts":         a.Timestamp.UTC().UnixMilli(),
			"references": refs,
			"raw":        string(a.Raw),
		})
	}
	if _, err := s.Driver.ExecuteQuery(ctx, SaveActivitiesQuery, map[string]interface{}{"activities": rows}); err != nil {
		return 0, fmt.Errorf("failed to save activities: %w", err)
	}
	return len(activities), nil
}

func (s *GraphStore) Lookup(ctx context.Context, ids []string) ([]model.Activity, error) {
	res, err := s.Driver.ExecuteQuery(ctx, LookupActivitiesQuery, map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to lookup activities: %w", err)
	}
	return activitiesFrom(res)
}

// ListActivities returns activities at or after since (zero for all),
// oldest first.
func (s *GraphStore) ListActivities(ctx context.Context, since time.Time) ([]model.Activity, error) {
	var sinceParam interface{}
	if !since.IsZero() {
		sinceParam = since.UTC().UnixMilli()
	}
	res, err := s.Driver.ExecuteQuery(ctx, ListActivitiesQuery, map[string]interface{}{"since": sinceParam})
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activitiesFrom(res)
}

func (s *GraphStore) SaveClusters(ctx context.Context, clusters []model.Cluster) error {
	for _, c := range clusters {
		tools := make([]interface{}, len(c.Metrics.Tools))
		for i, t := range c.Metrics.Tools {
			tools[i] = string(t)
		}
		params := map[string]interface{}{
			"id":                c.ID,
			"activity_ids":      toAny(c.ActivityIDs),
			"shared_references": toAny(c.SharedReferences),
			"activity_count":    int64(c.Metrics.ActivityCount),
			"tool_count":        int64(c.Metrics.ToolCount),
			"tools":             tools,
			"earliest":          c.Metrics.Earliest.UTC().UnixMilli(),
			"latest":            c.Metrics.Latest.UTC().UnixMilli(),
		}
		if _, err := s.Driver.ExecuteQuery(ctx, SaveClusterQuery, params); err != nil {
			return fmt.Errorf("failed to save cluster %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *GraphStore) GetCluster(ctx context.Context, id string) (model.Cluster, error) {
	res, err := s.Driver.ExecuteQuery(ctx, GetClusterQuery, map[string]interface{}{"id": id})
	if err != nil {
		return model.Cluster{}, fmt.Errorf("failed to get cluster: %w", err)
	}
	if len(res.Records) == 0 {
		return model.Cluster{}, fmt.Errorf("cluster %s: %w", id, common.ErrNotFound)
	}
	r := res.Records[0]
	c := model.Cluster{
		ID:               str(r, "id"),
		ActivityIDs:      strs(r, "activity_ids"),
		SharedReferences: strs(r, "shared_references"),
		Metrics: model.ClusterMetrics{
			ActivityCount: int(num(r, "activity_count")),
			ToolCount:     int(num(r, "tool_count")),
			Earliest:      time.UnixMilli(num(r, "earliest")).UTC(),
			Latest:        time.UnixMilli(num(r, "latest")).UTC(),
		},
	}
	for _, t := range strs(r, "tools") {
		c.Metrics.Tools = append(c.Metrics.Tools, model.ToolType(t))
	}
	return c, nil
}

func (s *GraphStore) SavePersona(ctx context.Context, p model.Persona) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode persona: %w", err)
	}
	params := map[string]interface{}{"id": p.ID, "display_name": p.DisplayName, "doc": string(doc)}
	if _, err := s.Driver.ExecuteQuery(ctx, SavePersonaQuery, params); err != nil {
		return fmt.Errorf("failed to save persona: %w", err)
	}
	return nil
}

func (s *GraphStore) GetPersona(ctx context.Context, id string) (model.Persona, error) {
	res, err := s.Driver.ExecuteQuery(ctx, GetPersonaQuery, map[string]interface{}{"id": id})
	if err != nil {
		return model.Persona{}, fmt.Errorf("failed to get persona: %w", err)
	}
	if len(res.Records) == 0 {
		return model.Persona{}, fmt.Errorf("persona %s: %w", id, common.ErrNotFound)
	}
	var p model.Persona
	if err := json.Unmarshal([]byte(str(res.Records[0], "doc")), &p); err != nil {
		return model.Persona{}, fmt.Errorf("failed to decode persona %s: %w", id, err)
	}
	return p, nil
}

func activitiesFrom(res neo4j.EagerResult) ([]model.Activity, error) {
	out := make([]model.Activity, 0, len(res.Records))
	for _, r := range res.Records {
		a := model.Activity{
			ID:         str(r, "id"),
			Tool:       model.ToolType(str(r, "tool")),
			Title:      str(r, "title"),
			SourceURL:  str(r, "source_url"),
			Timestamp:  time.UnixMilli(num(r, "ts")).UTC(),
			References: strs(r, "references"),
		}
		if v, ok := r.Get("body"); ok && v != nil {
			body, _ := v.(string)
			a.Body = &body
		}
		if raw := str(r, "raw"); raw != "" {
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("activity %s has invalid raw payload", a.ID)
			}
			a.Raw = json.RawMessage(raw)
		}
		out = append(out, a)
	}
	return out, nil
}

func str(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

func num(r *neo4j.Record, key string) int64 {
	v, _ := r.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func strs(r *neo4j.Record, key string) []string {
	v, _ := r.Get(key)
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
