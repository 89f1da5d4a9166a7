package engine

import (
	"context"

	"github.com/franksops/cloudsave/pipeline"
)

// Transform converts pipeline data into another representation, e.g. a
// record into JSON text.
type Transform func(ctx context.Context, input pipeline.Channel) (pipeline.Channel, error)

// Registry looks up named transformations provided by the host.
type Registry interface {
	Lookup(name string) (Transform, bool)
}

// TransformName is the registry name of the transformation for a file
// extension.
func TransformName(ext string) string {
	return "to " + ext
}

// ConvertToExtension applies the "to <ext>" transformation to input. When
// the registry has no such transformation the input is returned unchanged.
// Transformation errors are returned as is.
func ConvertToExtension(ctx context.Context, reg Registry, ext string, input pipeline.Channel) (pipeline.Channel, error) {
	if reg == nil || ext == "" {
		return input, nil
	}
	transform, ok := reg.Lookup(TransformName(ext))
	if !ok {
		return input, nil
	}
	return transform(ctx, input)
}

// wantsFormat reports whether the format bridge applies: never for raw
// saves or byte streams, and not for plain strings, which are written as
// they are.
func wantsFormat(input pipeline.Channel, raw bool) bool {
	if raw {
		return false
	}
	switch in := input.(type) {
	case *pipeline.ByteStream:
		return false
	case *pipeline.ValueData:
		if _, ok := in.Value.(pipeline.String); ok {
			return false
		}
	}
	return true
}

// inputToBytes materializes input, formatted for ext when the bridge
// applies, into the bytes of a single put.
func inputToBytes(ctx context.Context, reg Registry, input pipeline.Channel, ext string, raw bool, span pipeline.Span) ([]byte, error) {
	if wantsFormat(input, raw) {
		converted, err := ConvertToExtension(ctx, reg, ext, input)
		if err != nil {
			return nil, err
		}
		input = converted
	}

	v, err := pipeline.IntoValue(input, span)
	if err != nil {
		return nil, err
	}
	return ValueToBytes(v)
}
