package pipeline

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"sync"
	"unicode/utf8"
)

// Channel is the data handed to a command by the pipeline. It is one of
// Empty, *ByteStream, *ListStream or *ValueData.
type Channel interface {
	isChannel()
}

// Empty is a channel that carries no input.
type Empty struct{}

// ValueData is a single fully materialized value.
type ValueData struct {
	Value Value
}

// ByteStream is a finite, non-restartable raw byte source.
type ByteStream struct {
	reader io.Reader
	child  *ChildProcess
	span   Span
	taken  bool
}

// ChildProcess is a running external command whose stdout feeds a ByteStream.
// Stdout is nil when the command was started without a captured output pipe.
type ChildProcess struct {
	Stdout io.ReadCloser
}

// ListStream is a lazy, finite, non-restartable sequence of values.
type ListStream struct {
	seq  iter.Seq[Value]
	span Span
	once sync.Once
}

func (Empty) isChannel()       {}
func (*ValueData) isChannel()  {}
func (*ByteStream) isChannel() {}
func (*ListStream) isChannel() {}

// NewValue wraps v into a channel.
func NewValue(v Value) *ValueData {
	return &ValueData{Value: v}
}

// NewByteStream returns a byte stream reading from r. Files, pipes and
// network bodies are all plain readers here.
func NewByteStream(r io.Reader, span Span) *ByteStream {
	return &ByteStream{reader: r, span: span}
}

// NewChildStream returns a byte stream fed by the stdout of a child process.
func NewChildStream(child *ChildProcess, span Span) *ByteStream {
	return &ByteStream{child: child, span: span}
}

// Span returns the provenance of the stream.
func (b *ByteStream) Span() Span { return b.span }

// IsChild reports whether the stream is backed by a child process.
func (b *ByteStream) IsChild() bool { return b.child != nil }

// Source hands the underlying reader to the caller. It succeeds at most once;
// ok is false when the stream was already taken or when the child process
// exposes no stdout pipe.
func (b *ByteStream) Source() (r io.Reader, ok bool) {
	if b.taken {
		return nil, false
	}
	b.taken = true
	if b.child != nil {
		stdout := b.child.Stdout
		b.child.Stdout = nil
		if stdout == nil {
			return nil, false
		}
		return stdout, true
	}
	if b.reader == nil {
		return nil, false
	}
	return b.reader, true
}

// NewListStream wraps seq. The sequence is consumed at most once.
func NewListStream(seq iter.Seq[Value], span Span) *ListStream {
	return &ListStream{seq: seq, span: span}
}

// ListStreamOf streams the given values in order.
func ListStreamOf(span Span, vals ...Value) *ListStream {
	return NewListStream(func(yield func(Value) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}, span)
}

// Span returns the provenance of the stream.
func (l *ListStream) Span() Span { return l.span }

// Values returns the underlying sequence. Later calls yield nothing.
func (l *ListStream) Values() iter.Seq[Value] {
	first := false
	l.once.Do(func() { first = true })
	if !first {
		return func(func(Value) bool) {}
	}
	return l.seq
}

// Collect drains the stream into a List.
func (l *ListStream) Collect() List {
	var vals []Value
	for v := range l.Values() {
		vals = append(vals, v)
	}
	return List{Vals: vals, Pos: l.span}
}

// IntoValue materializes any channel into a single value. Byte streams
// become a String when their content is valid UTF-8 and a Binary otherwise.
func IntoValue(ch Channel, span Span) (Value, error) {
	switch ch := ch.(type) {
	case nil, Empty:
		return Nothing{Pos: span}, nil
	case *ValueData:
		return ch.Value, nil
	case *ListStream:
		return ch.Collect(), nil
	case *ByteStream:
		r, ok := ch.Source()
		if !ok {
			return Nothing{Pos: span}, nil
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil && !errors.Is(err, io.EOF) {
			return nil, NewError(SourceReadFailed, "collect", err).WithSpan(ch.span)
		}
		if utf8.Valid(buf.Bytes()) {
			return String{Val: buf.String(), Pos: ch.span}, nil
		}
		return Binary{Val: buf.Bytes(), Pos: ch.span}, nil
	}
	return nil, NewError(CoercionFailed, "collect", nil).WithSpan(span).WithMessage("unsupported pipeline data %T", ch)
}
