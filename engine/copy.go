package engine

import (
	"errors"
	"io"
	"syscall"

	"github.com/franksops/cloudsave/pipeline"
)

var copyBuffers = NewBufferPool(CopyBufferSize)

// Copy moves src into dst in chunks of at most CopyBufferSize bytes and
// returns the number of bytes written.
//
// signals is polled before every read; once it reports cancellation Copy
// returns a Cancelled error and reads nothing more. The source ends at
// io.EOF or at a zero-length read without error. Interrupted reads (EINTR)
// are retried. Any other read error is a SourceReadFailed attributed to span.
func Copy(src io.Reader, dst io.Writer, signals pipeline.Signals, span pipeline.Span) (int64, error) {
	bufp := copyBuffers.Get()
	defer copyBuffers.Put(bufp)
	buf := *bufp

	var written int64
	for {
		if err := signals.Check(span); err != nil {
			return written, err
		}

		n, err := readRetry(src, buf)
		if n > 0 {
			nw, werr := dst.Write(buf[:n])
			written += int64(nw)
			if werr == nil && nw != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				if _, ok := pipeline.KindOf(werr); ok {
					return written, werr
				}
				return written, pipeline.NewError(pipeline.BackendWriteFailed, "copy", werr).WithSpan(span)
			}
		}

		switch {
		case err == nil && n == 0:
			return written, nil
		case err == nil, errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, io.EOF):
			return written, nil
		default:
			return written, pipeline.NewError(pipeline.SourceReadFailed, "copy", err).WithSpan(span)
		}
	}
}

// readRetry reads once, retrying reads that were interrupted before
// delivering any data.
func readRetry(src io.Reader, buf []byte) (int, error) {
	for {
		n, err := src.Read(buf)
		if n == 0 && errors.Is(err, syscall.EINTR) {
			continue
		}
		return n, err
	}
}
