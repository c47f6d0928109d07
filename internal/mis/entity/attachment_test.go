package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoredFileRevisionTag(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		want  int
		ok    bool
	}{
		{"integer", map[string]string{"Version_number": "2"}, 2, true},
		{"dotted", map[string]string{"Version_number": "3.0"}, 3, true},
		{"recased key", map[string]string{"version_number": "4"}, 4, true},
		{"missing", map[string]string{"Other": "1"}, 0, false},
		{"not a number", map[string]string{"Version_number": "N/A"}, 0, false},
		{"no attributes", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StoredFile{Name: "doc.pdf", Attributes: tt.attrs}.RevisionTag()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMajorVersion(t *testing.T) {
	n, ok := MajorVersion("12.0")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = MajorVersion("")
	assert.False(t, ok)

	_, ok = MajorVersion(".5")
	assert.False(t, ok)
}
