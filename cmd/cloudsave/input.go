package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/franksops/cloudsave/pipeline"
)

// Input sources for the save command.
const (
	fromBytes  = "bytes"
	fromLines  = "lines"
	fromJSON   = "json"
	fromString = "string"
)

const maxLineSize = 1024 * 1024

// input is the channel handed to the saver plus how to release what feeds it.
type input struct {
	channel pipeline.Channel

	// size is the number of bytes expected, 0 when unknown.
	size int64

	// finish waits for a child process; it kills it first when the save
	// failed, since nobody drains its output anymore.
	finish func(saveErr error) error
}

func noFinish(error) error { return nil }

// inputSource describes where the save command reads its data from.
type inputSource struct {
	from    string
	value   *string
	command []string
	span    pipeline.Span
}

func buildInput(stdin io.Reader, src inputSource) (*input, error) {
	switch {
	case len(src.command) > 0:
		return startChild(stdin, src)
	case src.value != nil:
		v := pipeline.String{Val: *src.value, Pos: src.span}
		return &input{channel: pipeline.NewValue(v), finish: noFinish}, nil
	}

	switch src.from {
	case "", fromBytes:
		return &input{
			channel: pipeline.NewByteStream(stdin, src.span),
			size:    regularFileSize(stdin),
			finish:  noFinish,
		}, nil
	case fromLines:
		return &input{channel: pipeline.NewListStream(scanLines(stdin, src.span), src.span), finish: noFinish}, nil
	case fromJSON:
		v, err := decodeJSON(stdin, src.span)
		if err != nil {
			return nil, err
		}
		return &input{channel: pipeline.NewValue(v), finish: noFinish}, nil
	case fromString:
		v, err := pipeline.IntoValue(pipeline.NewByteStream(stdin, src.span), src.span)
		if err != nil {
			return nil, err
		}
		return &input{channel: pipeline.NewValue(v), finish: noFinish}, nil
	}
	return nil, fmt.Errorf("unknown input format %q (want %s, %s, %s or %s)",
		src.from, fromBytes, fromLines, fromJSON, fromString)
}

// scanLines yields stdin line by line without the line terminators. A read
// error ends the stream with an error value.
func scanLines(r io.Reader, span pipeline.Span) func(func(pipeline.Value) bool) {
	return func(yield func(pipeline.Value) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			if !yield(pipeline.String{Val: sc.Text(), Pos: span}) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(pipeline.ErrorValue{
				Err: pipeline.NewError(pipeline.SourceReadFailed, "lines", err).WithSpan(span),
				Pos: span,
			})
		}
	}
}

func decodeJSON(r io.Reader, span pipeline.Span) (pipeline.Value, error) {
	var doc any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return pipeline.Nothing{Pos: span}, nil
		}
		return nil, pipeline.NewError(pipeline.SourceReadFailed, "json", err).
			WithSpan(span).
			WithMessage("could not parse json input")
	}
	return pipeline.FromNative(doc, span), nil
}

// startChild runs command with its stdout feeding the save.
func startChild(stdin io.Reader, src inputSource) (*input, error) {
	cmd := exec.Command(src.command[0], src.command[1:]...)
	cmd.Stdin = stdin
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", strings.Join(src.command, " "), err)
	}

	child := &pipeline.ChildProcess{Stdout: stdout}
	return &input{
		channel: pipeline.NewChildStream(child, src.span),
		finish: func(saveErr error) error {
			if saveErr != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return nil
			}
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("%s: %w", src.command[0], err)
			}
			return nil
		},
	}, nil
}

func regularFileSize(r io.Reader) int64 {
	f, ok := r.(*os.File)
	if !ok {
		return 0
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}
