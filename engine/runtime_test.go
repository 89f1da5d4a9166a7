package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntime_Block(t *testing.T) {
	rt := NewRuntime(quietLogger())
	want := errors.New("transfer failed")

	err := rt.Block(context.Background(), func(ctx context.Context) error {
		return want
	})
	assert.Same(t, want, err)

	assert.NoError(t, rt.Block(context.Background(), func(context.Context) error { return nil }))
}

func TestRuntime_BlockRecoversPanic(t *testing.T) {
	rt := NewRuntime(quietLogger())

	err := rt.Block(context.Background(), func(context.Context) error {
		panic("nil map write")
	})
	assert.ErrorContains(t, err, "nil map write")
}

func TestRuntime_BlockCancelsTaskContextOnReturn(t *testing.T) {
	rt := NewRuntime(quietLogger())
	var taskCtx context.Context

	_ = rt.Block(context.Background(), func(ctx context.Context) error {
		taskCtx = ctx
		return nil
	})
	assert.ErrorIs(t, taskCtx.Err(), context.Canceled)
}
