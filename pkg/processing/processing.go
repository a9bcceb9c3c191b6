// Package processing applies a declared, ordered sequence of column
// transformations to a tabular payload. Steps are looked up by name from an
// open, string-keyed registry, so new steps can be added without touching
// the pipeline itself.
package processing

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// StepFunc transforms a payload under the given parameters, returning a new
// payload rather than mutating the one it was handed.
type StepFunc func(ctx context.Context, payload *tabular.Payload, params map[string]any) (*tabular.Payload, error)

// UnknownStepError is recorded by AddStep when name has no registered step,
// and returned from Err and Process.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("processing: unknown step %q", e.Name)
}

// StepFailedError wraps a step's own error with the step name and its
// position in the chain, so a platform pipeline can report which step broke.
type StepFailedError struct {
	Name  string
	Index int
	Cause error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("processing: step %q (#%d) failed: %v", e.Name, e.Index, e.Cause)
}

func (e *StepFailedError) Unwrap() error { return e.Cause }

// Registry maps step names to their implementations. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	steps map[string]StepFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]StepFunc)}
}

// Register adds or replaces the implementation for name.
func (r *Registry) Register(name string, fn StepFunc) {
	r.steps[name] = fn
}

// Lookup returns the implementation registered for name, if any.
func (r *Registry) Lookup(name string) (StepFunc, bool) {
	fn, ok := r.steps[name]
	return fn, ok
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the package-wide registry carrying the thirteen
// built-in steps, populated by each step file's init().
func DefaultRegistry() *Registry {
	return defaultRegistry
}

type configuredStep struct {
	name   string
	params map[string]any
	fn     StepFunc
}

// Pipeline is an ordered, validated chain of processing steps built against
// a Registry. AddStep resolves the step name immediately so a bad
// configuration fails at construction time (a ConfigError upstream), not
// mid-run.
type Pipeline struct {
	registry *Registry
	steps    []configuredStep
	err      error
}

// NewPipeline starts an empty pipeline resolved against registry. A nil
// registry falls back to DefaultRegistry.
func NewPipeline(registry *Registry) *Pipeline {
	if registry == nil {
		registry = defaultRegistry
	}
	return &Pipeline{registry: registry}
}

// AddStep appends name with params to the chain, returning the same
// pipeline for chaining. Once a step name fails to resolve, further calls
// are no-ops and Process returns the original UnknownStepError.
func (p *Pipeline) AddStep(name string, params map[string]any) *Pipeline {
	if p.err != nil {
		return p
	}
	fn, ok := p.registry.Lookup(name)
	if !ok {
		p.err = &UnknownStepError{Name: name}
		return p
	}
	p.steps = append(p.steps, configuredStep{name: name, params: params, fn: fn})
	return p
}

// Err reports the construction-time error, if any, without running Process.
func (p *Pipeline) Err() error { return p.err }

// Process runs payload through every configured step in order, returning
// the transformed result or the first StepFailedError.
func (p *Pipeline) Process(ctx context.Context, payload *tabular.Payload) (*tabular.Payload, error) {
	if p.err != nil {
		return nil, p.err
	}
	current := payload
	for i, s := range p.steps {
		next, err := s.fn(ctx, current, s.params)
		if err != nil {
			return nil, &StepFailedError{Name: s.name, Index: i, Cause: err}
		}
		current = next
	}
	return current, nil
}
