package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/pipeline"
)

func TestBuildInput_Lines(t *testing.T) {
	in, err := buildInput(strings.NewReader("one\ntwo\r\nthree"), inputSource{from: fromLines})
	require.NoError(t, err)

	stream, ok := in.channel.(*pipeline.ListStream)
	require.True(t, ok)
	var got []string
	for v := range stream.Values() {
		got = append(got, v.(pipeline.String).Val)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestBuildInput_LinesReadError(t *testing.T) {
	in, err := buildInput(brokenReader{}, inputSource{from: fromLines})
	require.NoError(t, err)

	var last pipeline.Value
	for v := range in.channel.(*pipeline.ListStream).Values() {
		last = v
	}
	ev, ok := last.(pipeline.ErrorValue)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, pipeline.ErrSourceReadFailed)
}

func TestBuildInput_JSON(t *testing.T) {
	in, err := buildInput(strings.NewReader(`[1, 2.5, "x", null]`), inputSource{from: fromJSON})
	require.NoError(t, err)
	v := in.channel.(*pipeline.ValueData).Value
	assert.Equal(t, pipeline.List{Vals: []pipeline.Value{
		pipeline.Int{Val: 1},
		pipeline.Float{Val: 2.5},
		pipeline.String{Val: "x"},
		pipeline.Nothing{},
	}}, v)

	_, err = buildInput(strings.NewReader(`{"broken"`), inputSource{from: fromJSON})
	assert.ErrorIs(t, err, pipeline.ErrSourceReadFailed)

	in, err = buildInput(strings.NewReader(""), inputSource{from: fromJSON})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Nothing{}, in.channel.(*pipeline.ValueData).Value)
}

func TestBuildInput_String(t *testing.T) {
	in, err := buildInput(strings.NewReader("text"), inputSource{from: fromString})
	require.NoError(t, err)
	assert.Equal(t, "text", in.channel.(*pipeline.ValueData).Value.(pipeline.String).Val)

	in, err = buildInput(strings.NewReader("\xff\xfe"), inputSource{from: fromString})
	require.NoError(t, err)
	assert.IsType(t, pipeline.Binary{}, in.channel.(*pipeline.ValueData).Value)
}

func TestBuildInput_BytesKnowsFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	in, err := buildInput(f, inputSource{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), in.size)
	assert.IsType(t, &pipeline.ByteStream{}, in.channel)

	in, err = buildInput(strings.NewReader("12345"), inputSource{})
	require.NoError(t, err)
	assert.Zero(t, in.size)
}

func TestBuildInput_Child(t *testing.T) {
	in, err := buildInput(strings.NewReader("piped"), inputSource{command: []string{"cat"}})
	require.NoError(t, err)

	stream := in.channel.(*pipeline.ByteStream)
	assert.True(t, stream.IsChild())
	r, ok := stream.Source()
	require.True(t, ok)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "piped", string(data))
	assert.NoError(t, in.finish(nil))
}

func TestBuildInput_ChildFailure(t *testing.T) {
	in, err := buildInput(strings.NewReader(""), inputSource{command: []string{"sh", "-c", "exit 3"}})
	require.NoError(t, err)

	r, ok := in.channel.(*pipeline.ByteStream).Source()
	require.True(t, ok)
	_, _ = io.ReadAll(r)
	assert.ErrorContains(t, in.finish(nil), "exit status 3")

	_, err = buildInput(strings.NewReader(""), inputSource{command: []string{"/definitely/not/here"}})
	assert.Error(t, err)
}
