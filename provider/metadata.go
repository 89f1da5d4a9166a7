package provider

import (
	"maps"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultContentType = "application/octet-stream"
	sniffLen           = 3072
)

// ContentTypeForKey returns the content type implied by the key's
// extension, or application/octet-stream.
func ContentTypeForKey(key string) string {
	if ext := path.Ext(key); ext != "" {
		if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
			return ct
		}
	}
	return defaultContentType
}

// DetectContentType sniffs head, the first bytes of an object, falling back
// to the key's extension when the sniffer only finds generic text or binary.
func DetectContentType(key string, head []byte) string {
	if len(head) == 0 {
		return ContentTypeForKey(key)
	}
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	mt := mimetype.Detect(head)
	if mt.Is("application/octet-stream") || mt.Is("text/plain") {
		if byExt := ContentTypeForKey(key); byExt != defaultContentType {
			return byExt
		}
	}
	return mt.String()
}

// MetadataMapper builds the user metadata attached to saved objects from a
// static base set plus per-save values.
type MetadataMapper struct {
	base   map[string]string
	prefix string
}

// MetadataMapperOption configures a MetadataMapper
type MetadataMapperOption func(*MetadataMapper)

// WithBaseMetadata sets metadata added to every object.
func WithBaseMetadata(md map[string]string) MetadataMapperOption {
	return func(m *MetadataMapper) {
		m.base = maps.Clone(md)
	}
}

// WithKeyPrefix namespaces every metadata key, e.g. "cloudsave-".
func WithKeyPrefix(prefix string) MetadataMapperOption {
	return func(m *MetadataMapper) {
		m.prefix = prefix
	}
}

// NewMetadataMapper creates a new MetadataMapper with the given options
func NewMetadataMapper(opts ...MetadataMapperOption) *MetadataMapper {
	m := &MetadataMapper{base: map[string]string{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map merges extra over the base set. Keys are lower-cased, as object
// stores do for user metadata. A nil mapper yields extra unchanged.
func (m *MetadataMapper) Map(extra map[string]string) map[string]string {
	if m == nil {
		return extra
	}
	out := make(map[string]string, len(m.base)+len(extra))
	for k, v := range m.base {
		out[m.key(k)] = v
	}
	for k, v := range extra {
		out[m.key(k)] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m *MetadataMapper) key(k string) string {
	k = strings.ToLower(k)
	if m.prefix != "" && !strings.HasPrefix(k, m.prefix) {
		return m.prefix + k
	}
	return k
}
