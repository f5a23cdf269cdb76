// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/core"
	"github.com/agenthands/storyline/internal/core/cluster"
	"github.com/agenthands/storyline/internal/core/enrichment"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/core/patterns"
	"github.com/agenthands/storyline/internal/core/references"
	"github.com/agenthands/storyline/internal/llm"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/agenthands/storyline/internal/store"
	"golang.org/x/time/rate"
)

type App struct {
	Config     *config.Config
	Store      store.Store
	Patterns   *patterns.Library
	References *references.Extractor
	Builder    *cluster.Builder
	Generator  *core.Generator

	closeStore func() error
}

// New opens the configured store and LLM provider and builds the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	s, closeFn, err := store.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	a := NewWith(cfg, s, client)
	a.closeStore = closeFn
	return a, nil
}

// NewWith builds the pipeline around an existing store and optional client.
func NewWith(cfg *config.Config, s store.Store, client llm.LLMClient) *App {
	lib := patterns.Default()
	refs := references.NewExtractor(lib)

	gen := core.NewGenerator(s, s, s, Polisher(cfg, client), NarrativeOptions(cfg))
	gen.Hydrator.Timeout = cfg.Store.LookupTimeout.Duration
	gen.Extractor = narrative.NewExtractor(refs)
	if cfg.Concurrency.BulkGenerate > 0 {
		gen.BulkConcurrency = cfg.Concurrency.BulkGenerate
	}

	return &App{
		Config:     cfg,
		Store:      s,
		Patterns:   lib,
		References: refs,
		Builder:    cluster.NewBuilder(),
		Generator:  gen,
	}
}

func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}

// Polisher returns a polisher whose provider is nil when enrichment is
// disabled or no LLM is configured.
func Polisher(cfg *config.Config, client llm.LLMClient) *enrichment.Polisher {
	var provider enrichment.Provider
	if cfg.Enrichment.Enabled && client != nil {
		provider = enrichment.NewLLMProvider(client, cfg.Enrichment.Prompt)
	} else {
		logging.Debug("enrichment disabled", "enabled", cfg.Enrichment.Enabled, "provider", cfg.LLM.Provider)
	}

	var limiter *rate.Limiter
	if rps := cfg.Enrichment.RequestsPerSecond; rps > 0 {
		burst := cfg.Enrichment.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return enrichment.NewPolisher(provider, cfg.Enrichment.Timeout.Duration, cfg.Enrichment.Concurrency, limiter)
}

func NarrativeOptions(cfg *config.Config) narrative.Options {
	return narrative.Options{
		Framework: cfg.Narrative.Framework,
		Gates: narrative.Gates{
			MinActivities:    cfg.Gates.MinActivities,
			MinToolTypes:     cfg.Gates.MinToolTypes,
			MaxObserverRatio: cfg.Gates.MaxObserverRatio,
		},
		MaxSourcesPerSection: cfg.Narrative.MaxSourcesPerSection,
		RelevanceFloor:       cfg.Narrative.RelevanceFloor,
		ConfidenceFloor:      cfg.Narrative.ConfidenceFloor,
		ConfidenceBonus:      cfg.Narrative.ConfidenceBonus,
		MaxSpan:              cfg.Narrative.MaxSpan.Duration,
	}
}

// ReferenceOptions maps the extraction section. Unknown tool names map to
// the generic tool.
func ReferenceOptions(cfg *config.Config) (references.Options, error) {
	opts := references.Options{IncludeURL: cfg.Extraction.IncludeURL}
	if cfg.Extraction.MinConfidence != "" {
		c, err := model.ParseConfidence(cfg.Extraction.MinConfidence)
		if err != nil {
			return opts, fmt.Errorf("invalid extraction.min_confidence: %w", err)
		}
		opts.MinConfidence = c
	}
	for _, t := range cfg.Extraction.ToolTypes {
		opts.ToolTypes = append(opts.ToolTypes, model.ParseToolType(t))
	}
	return opts, nil
}

func ClusterOptions(cfg *config.Config) cluster.Options {
	return cluster.Options{MinClusterSize: cfg.Clustering.MinClusterSize}
}

// Annotate fills references from each activity's text and keeps any
// references the activity already carried.
func (a *App) Annotate(activities []model.Activity) ([]model.Activity, *references.Result, error) {
	opts, err := ReferenceOptions(a.Config)
	if err != nil {
		return nil, nil, err
	}
	annotated, res := a.References.AnnotateActivities(activities, opts)
	for i := range annotated {
		annotated[i].References = mergeRefs(activities[i].References, annotated[i].References)
	}
	return annotated, res, nil
}

// Import annotates activities with references and saves them.
func (a *App) Import(ctx context.Context, activities []model.Activity) (*references.Result, error) {
	annotated, res, err := a.Annotate(activities)
	if err != nil {
		return nil, err
	}
	if _, err := a.Store.SaveActivities(ctx, annotated); err != nil {
		return nil, err
	}
	return res, nil
}

// Recluster rebuilds clusters over the stored activities and saves them.
func (a *App) Recluster(ctx context.Context, opts cluster.Options) (*cluster.Result, error) {
	acts, err := a.Store.ListActivities(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	res, err := a.Builder.Build(acts, opts)
	if err != nil {
		return nil, err
	}
	if err := a.Store.SaveClusters(ctx, res.Clusters); err != nil {
		return nil, fmt.Errorf("failed to save clusters: %w", err)
	}
	return res, nil
}

func mergeRefs(given, found []string) []string {
	seen := make(map[string]bool, len(given)+len(found))
	out := make([]string, 0, len(given)+len(found))
	for _, list := range [][]string{given, found} {
		for _, r := range list {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}
