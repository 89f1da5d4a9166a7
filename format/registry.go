// Package format provides the transformations the saver applies to match a
// destination's file extension, such as "to json" for "report.json".
package format

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/pipeline"
)

// Encoder renders one materialized value as text.
type Encoder func(v pipeline.Value) ([]byte, error)

// Registry is a concurrency-safe set of named transformations.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]engine.Transform
}

var _ engine.Registry = (*Registry)(nil)

// New returns a registry holding the built-in transformations.
func New() *Registry {
	r := Empty()
	r.RegisterEncoder("json", EncodeJSON)
	r.RegisterEncoder("yaml", EncodeYAML)
	r.RegisterEncoder("yml", EncodeYAML)
	r.RegisterEncoder("toml", EncodeTOML)
	r.RegisterEncoder("csv", EncodeCSV)
	r.RegisterEncoder("tsv", EncodeTSV)
	r.RegisterEncoder("txt", EncodeText)
	return r
}

// Empty returns a registry without any transformation.
func Empty() *Registry {
	return &Registry{transforms: make(map[string]engine.Transform)}
}

// Register adds or replaces the transformation called name.
func (r *Registry) Register(name string, t engine.Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = t
}

// RegisterEncoder registers enc as the transformation for ext.
func (r *Registry) RegisterEncoder(ext string, enc Encoder) {
	name := engine.TransformName(ext)
	r.Register(name, fromEncoder(name, enc))
}

func (r *Registry) Lookup(name string) (engine.Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	return t, ok
}

// Names lists the registered transformations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.transforms))
}

// fromEncoder materializes the input, encodes it and hands the text on as a
// string value. An error value anywhere in the input is returned as is.
func fromEncoder(name string, enc Encoder) engine.Transform {
	return func(ctx context.Context, input pipeline.Channel) (pipeline.Channel, error) {
		v, err := pipeline.IntoValue(input, pipeline.Span{})
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, pipeline.NewError(pipeline.Cancelled, name, err).WithSpan(v.Span())
		}
		// carried errors pass through unchanged, not as encoder failures
		if err := pipeline.FirstError(v); err != nil {
			return nil, err
		}
		out, err := enc(v)
		if err != nil {
			if _, ok := pipeline.KindOf(err); ok {
				return nil, err
			}
			return nil, pipeline.NewError(pipeline.TransformFailed, name, err).WithSpan(v.Span())
		}
		return pipeline.NewValue(pipeline.String{Val: string(out), Pos: v.Span()}), nil
	}
}
