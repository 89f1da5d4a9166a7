package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name string
		key  string
		head []byte
		want string
	}{
		{"json payload", "out.json", []byte(`{"a": 1}`), "application/json"},
		{"png payload without extension", "image", png, "image/png"},
		{"plain text without extension", "notes", []byte("hello"), "text/plain; charset=utf-8"},
		{"empty payload uses extension", "data.json", nil, "application/json"},
		{"empty payload unknown extension", "blob", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.key, tt.head))
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeForKey("a/b/c.JSON"))
	assert.Equal(t, "application/octet-stream", ContentTypeForKey("noext"))
}

func TestMetadataMapper(t *testing.T) {
	m := NewMetadataMapper(
		WithBaseMetadata(map[string]string{"Team": "data"}),
		WithKeyPrefix("cloudsave-"),
	)

	got := m.Map(map[string]string{"job-id": "123", "team": "ops"})
	assert.Equal(t, map[string]string{
		"cloudsave-team":   "ops",
		"cloudsave-job-id": "123",
	}, got)

	var nilMapper *MetadataMapper
	assert.Equal(t, map[string]string{"a": "b"}, nilMapper.Map(map[string]string{"a": "b"}))
	assert.Nil(t, NewMetadataMapper().Map(nil))
}
