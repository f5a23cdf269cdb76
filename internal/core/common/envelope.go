package common

import (
	"fmt"
	"time"
)

// Warning is a non-fatal condition attached to a stage result.
type Warning struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Diagnostics is stage telemetry. Counters are free-form per stage.
type Diagnostics struct {
	Stage    string         `json:"stage"`
	Duration time.Duration  `json:"duration"`
	Counters map[string]int `json:"counters,omitempty"`
}

// Envelope is embedded in every stage result. Errors holds recoverable
// failures; fatal ones are returned as Go errors instead.
type Envelope struct {
	Warnings    []Warning     `json:"warnings,omitempty"`
	Errors      []*StageError `json:"errors,omitempty"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

func (e *Envelope) Warn(code string, context map[string]any, format string, args ...any) {
	e.Warnings = append(e.Warnings, Warning{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
}

func (e *Envelope) AddError(err *StageError) {
	e.Errors = append(e.Errors, err)
}

func (e *Envelope) Count(name string, n int) {
	if e.Diagnostics.Counters == nil {
		e.Diagnostics.Counters = make(map[string]int)
	}
	e.Diagnostics.Counters[name] += n
}

// HasWarning reports whether a warning with the given code was recorded.
func (e *Envelope) HasWarning(code string) bool {
	for _, w := range e.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Begin starts timing the stage; the returned func records the duration.
func (e *Envelope) Begin(stage string) func() {
	e.Diagnostics.Stage = stage
	start := time.Now()
	return func() {
		e.Diagnostics.Duration = time.Since(start)
	}
}
