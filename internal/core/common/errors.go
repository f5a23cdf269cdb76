package common

import (
	"errors"
	"fmt"
)

// Error kinds. Every StageError wraps exactly one of these so callers can
// branch with errors.Is without knowing stage-specific codes.
var (
	ErrInput            = errors.New("invalid input")
	ErrPartialData      = errors.New("partial data")
	ErrValidation       = errors.New("validation gates failed")
	ErrDependency       = errors.New("dependent service failure")
	ErrPatternIntegrity = errors.New("pattern integrity violation")
	ErrInternal         = errors.New("internal error")
)

// ErrNotFound is returned by stores for unknown ids.
var ErrNotFound = errors.New("not found")

const (
	CodeInvalidActivities       = "INVALID_ACTIVITIES"
	CodeInvalidCluster          = "INVALID_CLUSTER"
	CodeInvalidPersona          = "INVALID_PERSONA"
	CodeUnknownFramework        = "UNKNOWN_FRAMEWORK"
	CodeClusterNotFound         = "CLUSTER_NOT_FOUND"
	CodePersonaNotFound         = "PERSONA_NOT_FOUND"
	CodeActivitiesNotFound      = "ACTIVITIES_NOT_FOUND"
	CodeNoActivitiesFound       = "NO_ACTIVITIES_FOUND"
	CodeActivityLookupFailed    = "ACTIVITY_LOOKUP_FAILED"
	CodeStoreUnavailable        = "STORE_UNAVAILABLE"
	CodeValidationGatesFailed   = "VALIDATION_GATES_FAILED"
	CodeLLMUnavailable          = "LLM_UNAVAILABLE"
	CodeLLMTimeout              = "LLM_TIMEOUT"
	CodeLLMError                = "LLM_ERROR"
	CodeNotConfigured           = "NOT_CONFIGURED"
	CodePatternValidationFailed = "PATTERN_VALIDATION_FAILED"
	CodePatternError            = "PATTERN_ERROR"
	CodeNoPatterns              = "NO_PATTERNS"
	CodeDateFiltered            = "DATE_FILTERED"
	CodeActivitiesWithoutRefs   = "ACTIVITIES_WITHOUT_REFS"
)

// StageError is the failure outcome of a pipeline stage.
type StageError struct {
	Code    string         `json:"code"`
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a StageError whose chain contains kind and, when
// given, the underlying cause.
func NewStageError(stage, code string, kind error, cause error, format string, args ...any) *StageError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &StageError{
		Code:    code,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// With attaches a context value and returns the same error for chaining.
func (e *StageError) With(key string, value any) *StageError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first StageError in err's chain.
func CodeOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsInput(err error) bool {
	return errors.Is(err, ErrInput)
}

func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency)
}

func IsPartialData(err error) bool {
	return errors.Is(err, ErrPartialData)
}
