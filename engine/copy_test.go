package engine

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/pipeline"
)

func TestCopy_ZeroLengthReadEndsSource(t *testing.T) {
	src := &scriptedReader{steps: []readStep{
		{data: bytes.Repeat([]byte{'x'}, 1000)},
		{data: nil},
		{data: []byte("never read")},
	}}
	var dst chunkRecorder

	n, err := Copy(src, &dst, pipeline.EmptySignals(), pipeline.Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
	assert.Equal(t, []int{1000}, dst.writes)
	assert.Equal(t, 2, src.reads)
}

func TestCopy_ChunksAtBufferSize(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 2000)
	var dst chunkRecorder

	n, err := Copy(bytes.NewReader(data), &dst, pipeline.EmptySignals(), pipeline.Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, dst.Bytes())
	assert.Equal(t, []int{CopyBufferSize, CopyBufferSize, len(data) - 2*CopyBufferSize}, dst.writes)
}

func TestCopy_RetriesInterruptedReads(t *testing.T) {
	src := &scriptedReader{steps: []readStep{
		{err: errEINTR},
		{data: []byte("ab")},
		{err: errEINTR},
		{data: []byte("cd"), err: io.EOF},
	}}
	var dst bytes.Buffer

	n, err := Copy(src, &dst, pipeline.EmptySignals(), pipeline.Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "abcd", dst.String())
}

func TestCopy_CancelledBeforeFirstRead(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)
	src := &scriptedReader{steps: []readStep{{data: []byte("data")}}}
	var dst bytes.Buffer
	span := pipeline.Span{Start: 2, End: 5}

	n, err := Copy(src, &dst, pipeline.NewSignals(&flag), span)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCancelled)
	assert.Zero(t, n)
	assert.Zero(t, src.reads)
	assert.Zero(t, dst.Len())

	var pe *pipeline.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, span, pe.Span)
}

type cancelAfter struct {
	r     io.Reader
	flag  *atomic.Bool
	after int
	reads int
}

func (c *cancelAfter) Read(p []byte) (int, error) {
	c.reads++
	if c.reads == c.after {
		c.flag.Store(true)
	}
	return c.r.Read(p)
}

func TestCopy_CancelledMidStream(t *testing.T) {
	var flag atomic.Bool
	src := &cancelAfter{r: strings.NewReader(strings.Repeat("z", 3*CopyBufferSize)), flag: &flag, after: 2}
	var dst bytes.Buffer

	n, err := Copy(src, &dst, pipeline.NewSignals(&flag), pipeline.Span{})
	assert.ErrorIs(t, err, pipeline.ErrCancelled)
	assert.Equal(t, int64(2*CopyBufferSize), n)
	assert.Equal(t, 2, src.reads)
}

func TestCopy_ReadErrorIsSourceReadFailed(t *testing.T) {
	span := pipeline.Span{Start: 7, End: 9}
	src := &scriptedReader{steps: []readStep{
		{data: []byte("partial")},
		{err: errors.New("connection reset by peer")},
	}}
	var dst bytes.Buffer

	n, err := Copy(src, &dst, pipeline.EmptySignals(), span)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrSourceReadFailed)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, int64(7), n)

	var pe *pipeline.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, span, pe.Span)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("sink closed") }

func TestCopy_WriteErrorIsBackendWriteFailed(t *testing.T) {
	_, err := Copy(strings.NewReader("x"), failingWriter{}, pipeline.EmptySignals(), pipeline.Span{})
	assert.ErrorIs(t, err, pipeline.ErrBackendWriteFailed)
}
