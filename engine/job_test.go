package engine_test

import (
	"testing"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/pipeline"
)

func TestNewJob(t *testing.T) {
	dest, err := location.Parse("s3://bucket/out.bin", pipeline.Span{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	a := engine.NewJob(dest, engine.ModeBytes, true)
	b := engine.NewJob(dest, engine.ModeBytes, true)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Destination != dest {
		t.Errorf("Expected destination to be kept")
	}
	if a.StartedAt.IsZero() {
		t.Errorf("Expected start time to be set")
	}
}
