package engine

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/pipeline"
)

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestMultipartSink_SplitsIntoParts(t *testing.T) {
	up := &fakeUpload{}
	sink := NewMultipartSink(context.Background(), up, 4, quietLogger())

	for _, chunk := range []string{"abc", "defgh", "ij"} {
		n, err := sink.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	// two full parts are uploaded before finalize
	assert.Len(t, up.parts, 2)

	require.NoError(t, sink.Finalize(context.Background()))
	assert.True(t, up.done)
	assert.Equal(t, "abcdefghij", string(up.object()))
	require.Len(t, up.completed, 3)
	for i, p := range up.completed {
		assert.Equal(t, i+1, p.Number)
	}
	assert.Equal(t, SinkStats{Bytes: 10, Chunks: 3, Parts: 3}, sink.Stats())
}

func TestMultipartSink_EmptyUploadGetsOneEmptyPart(t *testing.T) {
	up := &fakeUpload{}
	sink := NewMultipartSink(context.Background(), up, 0, quietLogger())

	require.NoError(t, sink.Finalize(context.Background()))
	require.Len(t, up.parts, 1)
	assert.Empty(t, up.parts[0])
	assert.True(t, up.done)
}

func TestMultipartSink_FinalizeOnce(t *testing.T) {
	up := &fakeUpload{}
	sink := NewMultipartSink(context.Background(), up, 16, quietLogger())

	_, err := sink.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, sink.Finalize(context.Background()))

	_, err = sink.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrSessionFinalized)
	assert.ErrorIs(t, sink.Finalize(context.Background()), ErrSessionFinalized)
	assert.Equal(t, "data", string(up.object()))
}

func TestMultipartSink_PartFailureSurfacesAtFinalize(t *testing.T) {
	up := &fakeUpload{failPart: errBackend}
	sink := NewMultipartSink(context.Background(), up, 2, quietLogger())

	// writes keep succeeding after the backend failed
	for range 3 {
		_, err := sink.Write([]byte("xyz"))
		require.NoError(t, err)
	}
	assert.ErrorIs(t, sink.Err(), errBackend)

	err := sink.Finalize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBackendWriteFailed)
	assert.ErrorIs(t, err, errBackend)
	assert.False(t, up.done)
}

func TestMultipartSink_CompleteFailure(t *testing.T) {
	up := &fakeUpload{failComplete: errBackend}
	sink := NewMultipartSink(context.Background(), up, 8, quietLogger())

	_, err := sink.Write([]byte("payload"))
	require.NoError(t, err)

	err = sink.Finalize(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrBackendWriteFailed)
	assert.Contains(t, err.Error(), "503 Service Unavailable")
}

func TestMultipartSink_Abort(t *testing.T) {
	up := &fakeUpload{}
	sink := NewMultipartSink(context.Background(), up, 8, quietLogger())

	_, err := sink.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort(context.Background()))
	assert.True(t, up.aborted)

	_, err = sink.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrSessionFinalized)
}
