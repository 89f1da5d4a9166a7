// Package location turns user-supplied location strings into validated
// object storage destinations.
package location

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/franksops/cloudsave/pipeline"
)

// SchemeFile addresses the local filesystem; the key is an absolute path.
const SchemeFile = "file"

// Destination is a parsed and validated location. It is never mutated
// after Parse returns.
type Destination struct {
	Scheme string
	Bucket string
	Key    string
	Raw    string
	Span   pipeline.Span
}

// Parse validates raw and splits it into scheme, bucket and key.
//
// Any failure is reported as an InvalidLocation error attributed to span,
// before any backend is contacted.
func Parse(raw string, span pipeline.Span) (*Destination, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalid(span, "empty location")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, invalid(span, "%v", err)
	}
	if u.Scheme == "" {
		return nil, invalid(span, "missing scheme in %q", trimmed)
	}
	if u.Opaque != "" {
		return nil, invalid(span, "%q is not a hierarchical url", trimmed)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == SchemeFile {
		return parseFile(u, trimmed, span)
	}

	if u.Host == "" {
		return nil, invalid(span, "missing bucket in %q", trimmed)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, invalid(span, "missing object key in %q", trimmed)
	}
	if strings.HasSuffix(key, "/") {
		return nil, invalid(span, "object key %q names a directory", key)
	}

	return &Destination{
		Scheme: scheme,
		Bucket: u.Host,
		Key:    key,
		Raw:    trimmed,
		Span:   span,
	}, nil
}

func parseFile(u *url.URL, trimmed string, span pipeline.Span) (*Destination, error) {
	if u.Host != "" && u.Host != "localhost" {
		return nil, invalid(span, "file url %q must not name a remote host", trimmed)
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return nil, invalid(span, "missing file name in %q", trimmed)
	}
	return &Destination{
		Scheme: SchemeFile,
		Key:    path.Clean(p),
		Raw:    trimmed,
		Span:   span,
	}, nil
}

// Extension returns the key's file extension without the leading dot, or
// the empty string when the key has none. A dotfile such as ".json" has no
// extension.
func (d *Destination) Extension() string {
	base := path.Base(d.Key)
	if strings.LastIndex(base, ".") <= 0 {
		return ""
	}
	return strings.TrimPrefix(path.Ext(base), ".")
}

func (d *Destination) String() string {
	if d.Scheme == SchemeFile {
		return "file://" + d.Key
	}
	return fmt.Sprintf("%s://%s/%s", d.Scheme, d.Bucket, d.Key)
}

func invalid(span pipeline.Span, format string, args ...any) error {
	return pipeline.NewError(pipeline.InvalidLocation, "parse", nil).
		WithSpan(span).
		WithMessage("Invalid Url: "+format, args...)
}
