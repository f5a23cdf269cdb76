package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/enrichment"
	"github.com/agenthands/storyline/internal/core/hydrate"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/core/narrative"
	"github.com/agenthands/storyline/internal/core/participation"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateHydrating     State = "HYDRATING"
	StateParticipation State = "PARTICIPATION_ANALYSIS"
	StateExtracting    State = "EXTRACTING"
	StateEnriching     State = "ENRICHING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Stage names carried by GenerationError.
const (
	StageHydration  = "hydration"
	StageExtraction = "extraction"
	StagePolish     = "polish"
)

type ClusterStore interface {
	GetCluster(ctx context.Context, id string) (model.Cluster, error)
}

type PersonaProvider interface {
	GetPersona(ctx context.Context, id string) (model.Persona, error)
}

// GenerationError names the stage a generation failed in. The stage error
// stays reachable with errors.As.
type GenerationError struct {
	Stage     string
	ClusterID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s stage for cluster %s: %v", e.Stage, e.ClusterID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

type GenerateOptions struct {
	Framework      string
	Gates          *narrative.Gates
	SkipEnrichment bool
}

type GenerationResult struct {
	ClusterID     string                      `json:"cluster_id"`
	PersonaID     string                      `json:"persona_id"`
	State         State                       `json:"state"`
	Transitions   []Transition                `json:"transitions"`
	Narrative     *model.GeneratedNarrative   `json:"narrative,omitempty"`
	Validation    *model.ValidationResult     `json:"validation,omitempty"`
	Participation []model.ParticipationResult `json:"participation,omitempty"`
	PolishErrors  []*enrichment.PolishError   `json:"polish_errors,omitempty"`
	Warnings      []common.Warning            `json:"warnings,omitempty"`
	Errors        []*common.StageError        `json:"errors,omitempty"`
	Diagnostics   []common.Diagnostics        `json:"diagnostics"`
}

// PolishFailure reports components that kept their draft text. The
// narrative is still valid when this is non-nil.
func (r *GenerationResult) PolishFailure() error {
	if len(r.PolishErrors) == 0 {
		return nil
	}
	errs := make([]error, len(r.PolishErrors))
	for i, pe := range r.PolishErrors {
		errs[i] = pe
	}
	return &GenerationError{Stage: StagePolish, ClusterID: r.ClusterID, Err: errors.Join(errs...)}
}

func (r *GenerationResult) merge(env common.Envelope) {
	r.Warnings = append(r.Warnings, env.Warnings...)
	r.Errors = append(r.Errors, env.Errors...)
	r.Diagnostics = append(r.Diagnostics, env.Diagnostics)
}

type Generator struct {
	Clusters  ClusterStore
	Personas  PersonaProvider
	Hydrator  *hydrate.Hydrator
	Analyzer  *participation.Analyzer
	Extractor *narrative.Extractor
	Polisher  *enrichment.Polisher
	Options   narrative.Options

	// BulkConcurrency bounds GenerateBatch.
	BulkConcurrency int
	Logger          *log.Logger
	Now             func() time.Time
}

func NewGenerator(activities hydrate.ActivityStore, clusters ClusterStore, personas PersonaProvider, polisher *enrichment.Polisher, opts narrative.Options) *Generator {
	if polisher == nil {
		polisher = enrichment.NewPolisher(nil, 0, 0, nil)
	}
	return &Generator{
		Clusters:        clusters,
		Personas:        personas,
		Hydrator:        hydrate.NewHydrator(activities, 10*time.Second),
		Analyzer:        participation.NewAnalyzer(),
		Extractor:       narrative.NewExtractor(nil),
		Polisher:        polisher,
		Options:         opts,
		BulkConcurrency: 4,
		Logger:          logging.WithPrefix("generator"),
		Now:             time.Now,
	}
}

type run struct {
	g   *Generator
	res *GenerationResult
}

func (r *run) enter(s State) {
	r.res.State = s
	now := time.Now
	if r.g.Now != nil {
		now = r.g.Now
	}
	r.res.Transitions = append(r.res.Transitions, Transition{State: s, At: now().UTC()})
	r.g.logger().Debug("state", "cluster_id", r.res.ClusterID, "state", s)
}

func (r *run) fail(stage string, err error) (*GenerationResult, error) {
	var se *common.StageError
	if errors.As(err, &se) {
		r.res.Errors = append(r.res.Errors, se)
	}
	r.enter(StateFailed)
	r.g.logger().Warn("generation failed", "cluster_id", r.res.ClusterID, "stage", stage, "err", err)
	return r.res, &GenerationError{Stage: stage, ClusterID: r.res.ClusterID, Err: err}
}

func (g *Generator) start(clusterID, personaID string) *run {
	r := &run{g: g, res: &GenerationResult{ClusterID: clusterID, PersonaID: personaID}}
	r.enter(StateHydrating)
	return r
}

// Generate loads the cluster and persona and runs the full pipeline. On
// failure both the partial result and a *GenerationError are returned; a
// cluster that fails its gates ends FAILED with Validation set.
func (g *Generator) Generate(ctx context.Context, clusterID, personaID string, opts GenerateOptions) (*GenerationResult, error) {
	r := g.start(clusterID, personaID)

	cluster, err := g.Clusters.GetCluster(ctx, clusterID)
	if err != nil {
		return r.fail(StageHydration, lookupError(err, common.CodeClusterNotFound, "cluster", clusterID))
	}
	persona, err := g.Personas.GetPersona(ctx, personaID)
	if err != nil {
		return r.fail(StageHydration, lookupError(err, common.CodePersonaNotFound, "persona", personaID))
	}
	return g.run(ctx, r, cluster, persona, opts)
}

// GenerateFromCluster runs the pipeline for an in-memory cluster and
// persona. Activities are still resolved through the hydrator.
func (g *Generator) GenerateFromCluster(ctx context.Context, cluster model.Cluster, persona model.Persona, opts GenerateOptions) (*GenerationResult, error) {
	return g.run(ctx, g.start(cluster.ID, persona.ID), cluster, persona, opts)
}

func (g *Generator) run(ctx context.Context, r *run, cluster model.Cluster, persona model.Persona, opts GenerateOptions) (*GenerationResult, error) {
	if persona.DisplayName == "" && len(persona.Emails) == 0 && len(persona.Identities) == 0 {
		return r.fail(StageHydration, common.NewStageError(StageHydration, common.CodeInvalidPersona, common.ErrInput, nil,
			"persona %q has no name, email or tool identity", persona.ID))
	}

	hres, err := g.Hydrator.Hydrate(ctx, cluster)
	if err != nil {
		return r.fail(StageHydration, err)
	}
	r.res.merge(hres.Envelope)

	r.enter(StateParticipation)
	parts := g.Analyzer.Analyze(hres.Cluster, persona)
	r.res.Participation = parts

	r.enter(StateExtracting)
	nopts := g.Options
	if opts.Framework != "" {
		nopts.Framework = opts.Framework
	}
	if opts.Gates != nil {
		nopts.Gates = *opts.Gates
	}
	xres, err := g.Extractor.ExtractWith(hres.Cluster, persona, parts, nopts)
	if err != nil {
		return r.fail(StageExtraction, err)
	}
	r.res.Validation = &xres.Validation
	r.res.Warnings = append(r.res.Warnings, xres.Warnings...)
	r.res.Diagnostics = append(r.res.Diagnostics, xres.Diagnostics)
	if !xres.Validation.Passed {
		return r.fail(StageExtraction, xres.Errors[0])
	}
	r.res.Narrative = xres.Narrative

	if !opts.SkipEnrichment && g.Polisher != nil {
		r.enter(StateEnriching)
		pres := g.Polisher.Polish(ctx, xres.Narrative, hres.Cluster.Activities)
		r.res.merge(pres.Envelope)
		r.res.Narrative = pres.Narrative
		r.res.PolishErrors = pres.PolishErrors
	}

	r.enter(StateDone)
	return r.res, nil
}

type BatchResult struct {
	ClusterID string            `json:"cluster_id"`
	Result    *GenerationResult `json:"result,omitempty"`
	Err       error             `json:"-"`
}

// GenerateBatch runs independent clusters concurrently for one persona.
// Results are returned in input order; one failing cluster does not affect
// the others.
func (g *Generator) GenerateBatch(ctx context.Context, clusterIDs []string, personaID string, opts GenerateOptions) []BatchResult {
	out := make([]BatchResult, len(clusterIDs))

	var eg errgroup.Group
	limit := g.BulkConcurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)
	for i, id := range clusterIDs {
		eg.Go(func() error {
			res, err := g.Generate(ctx, id, personaID, opts)
			out[i] = BatchResult{ClusterID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func lookupError(err error, notFoundCode, kind, id string) *common.StageError {
	if errors.Is(err, common.ErrNotFound) {
		return common.NewStageError(StageHydration, notFoundCode, common.ErrInput, err, "%s %s not found", kind, id).
			With(kind+"_id", id)
	}
	return common.NewStageError(StageHydration, common.CodeStoreUnavailable, common.ErrDependency, err,
		"failed to load %s %s", kind, id).With(kind+"_id", id)
}

func (g *Generator) logger() *log.Logger {
	if g.Logger == nil {
		return logging.Discard()
	}
	return g.Logger
}
