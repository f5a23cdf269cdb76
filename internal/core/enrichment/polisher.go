// Package enrichment polishes narrative components with an optional
// provider. Every component succeeds or fails on its own.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const stage = "polish"

// PolishError is the failure of a single component.
type PolishError struct {
	Component string `json:"component"`
	Code      string `json:"code"`
	Err       error  `json:"-"`
}

func (e *PolishError) Error() string {
	return fmt.Sprintf("polish %s: %s: %v", e.Component, e.Code, e.Err)
}

func (e *PolishError) Unwrap() error {
	return e.Err
}

type Result struct {
	common.Envelope
	Narrative    *model.GeneratedNarrative `json:"narrative"`
	PolishErrors []*PolishError            `json:"polish_errors,omitempty"`
}

type Polisher struct {
	Provider    Provider
	Timeout     time.Duration
	Concurrency int
	Limiter     *rate.Limiter
	Logger      *log.Logger
}

func NewPolisher(provider Provider, timeout time.Duration, concurrency int, limiter *rate.Limiter) *Polisher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Polisher{
		Provider:    provider,
		Timeout:     timeout,
		Concurrency: concurrency,
		Limiter:     limiter,
		Logger:      logging.WithPrefix("enrichment"),
	}
}

// Polish returns a copy of n with polished component text. Sources and
// confidence are never changed; failed components keep their draft text.
// The input narrative is not modified.
func (p *Polisher) Polish(ctx context.Context, n *model.GeneratedNarrative, activities []model.Activity) *Result {
	res := &Result{Narrative: n.Clone()}
	defer res.Begin(stage)()

	if p.Provider == nil {
		res.Warn(common.CodeNotConfigured, nil, "no enrichment provider configured; narrative returned unchanged")
		return res
	}
	if res.Narrative == nil || len(res.Narrative.Components) == 0 {
		return res
	}

	byID := make(map[string]model.Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a
	}

	comps := res.Narrative.Components
	texts := make([]string, len(comps))
	failures := make([]*PolishError, len(comps))

	var g errgroup.Group
	g.SetLimit(p.Concurrency)
	for i, c := range comps {
		src := SourceContext{
			ClusterID: res.Narrative.ClusterID,
			Framework: res.Narrative.Framework,
			Section:   c.Section,
		}
		for _, id := range c.Sources {
			if a, ok := byID[id]; ok {
				src.Activities = append(src.Activities, a)
			}
		}
		g.Go(func() error {
			texts[i], failures[i] = p.polishOne(ctx, c, src)
			return nil
		})
	}
	_ = g.Wait()

	polishedCount := 0
	for i := range comps {
		if pe := failures[i]; pe != nil {
			res.PolishErrors = append(res.PolishErrors, pe)
			res.AddError(common.NewStageError(stage, pe.Code, common.ErrDependency, pe.Err,
				"component %s kept its draft text", pe.Component).With("component", pe.Component))
			p.logger().Warn("component not polished", "cluster_id", res.Narrative.ClusterID, "component", pe.Component, "code", pe.Code, "err", pe.Err)
			continue
		}
		comps[i].Text = texts[i]
		polishedCount++
	}
	res.Narrative.Enriched = polishedCount > 0
	res.Count("polished", polishedCount)
	res.Count("failed", len(res.PolishErrors))
	return res
}

func (p *Polisher) polishOne(ctx context.Context, c model.NarrativeComponent, src SourceContext) (string, *PolishError) {
	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(callCtx); err != nil {
			return "", &PolishError{Component: c.Section, Code: common.CodeLLMUnavailable, Err: fmt.Errorf("rate limited: %w", err)}
		}
	}

	out, err := p.Provider.Polish(callCtx, c.Text, src)
	if err != nil {
		return "", &PolishError{Component: c.Section, Code: classify(callCtx, err), Err: err}
	}
	return out, nil
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return common.CodeLLMTimeout
	case errors.Is(err, ErrProviderUnavailable):
		return common.CodeLLMUnavailable
	default:
		return common.CodeLLMError
	}
}

func (p *Polisher) logger() *log.Logger {
	if p.Logger == nil {
		return logging.Discard()
	}
	return p.Logger
}
