package patterns

import (
	"errors"
	"sort"
	"sync"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
)

const stage = "patterns"

// Library is a registry of validated patterns. Registration happens during
// start-up; after that the library is only read and needs no locking.
type Library struct {
	patterns map[string]Pattern
}

func NewLibrary() *Library {
	return &Library{patterns: make(map[string]Pattern)}
}

// Build registers every pattern and returns all rejections joined.
func Build(ps ...Pattern) (*Library, error) {
	lib := NewLibrary()
	var errs []error
	for _, p := range ps {
		if err := lib.Register(p); err != nil {
			errs = append(errs, err)
		}
	}
	return lib, errors.Join(errs...)
}

// Register self-tests the pattern and stores it only when every fixture
// passes.
func (l *Library) Register(p Pattern) error {
	if failures := l.Validate(p); len(failures) > 0 {
		return common.NewStageError(stage, common.CodePatternValidationFailed, common.ErrPatternIntegrity, nil,
			"pattern %q failed self-test with %d failure(s)", p.ID, len(failures)).
			With("pattern_id", p.ID).
			With("failures", failures)
	}
	l.patterns[p.ID] = p
	return nil
}

// Validate runs the pattern's fixtures and also rejects an id that is
// already registered.
func (l *Library) Validate(p Pattern) []string {
	failures := Validate(p)
	if _, dup := l.patterns[p.ID]; dup && p.ID != "" {
		failures = append(failures, "duplicate pattern id")
	}
	return failures
}

func (l *Library) Get(id string) (Pattern, bool) {
	p, ok := l.patterns[id]
	return p, ok
}

func (l *Library) Len() int {
	return len(l.patterns)
}

// All returns every registered pattern, including superseded ones.
func (l *Library) All() []Pattern {
	out := make([]Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, p)
	}
	sortPatterns(out)
	return out
}

type ListOptions struct {
	ToolTypes     []model.ToolType
	MinConfidence model.Confidence
}

// ListActive returns the eligible patterns. A pattern named in the
// Supersedes field of another eligible pattern is hidden.
func (l *Library) ListActive(opts ListOptions) []Pattern {
	tools := make(map[model.ToolType]bool, len(opts.ToolTypes))
	for _, t := range opts.ToolTypes {
		tools[t] = true
	}

	var eligible []Pattern
	for _, p := range l.patterns {
		if len(tools) > 0 && !tools[p.ToolType] {
			continue
		}
		if p.Confidence < opts.MinConfidence {
			continue
		}
		eligible = append(eligible, p)
	}

	superseded := make(map[string]bool)
	for _, p := range eligible {
		if p.Supersedes != "" {
			superseded[p.Supersedes] = true
		}
	}

	active := eligible[:0]
	for _, p := range eligible {
		if !superseded[p.ID] {
			active = append(active, p)
		}
	}
	sortPatterns(active)
	return active
}

func sortPatterns(ps []Pattern) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].ToolType != ps[j].ToolType {
			return ps[i].ToolType < ps[j].ToolType
		}
		if ps[i].Version != ps[j].Version {
			return ps[i].Version > ps[j].Version
		}
		return ps[i].ID < ps[j].ID
	})
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the process-wide library built from Builtin. A builtin
// that fails its own fixtures is a programming error and panics.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Build(Builtin()...)
		if err != nil {
			panic(err)
		}
		defaultLib = lib
	})
	return defaultLib
}
