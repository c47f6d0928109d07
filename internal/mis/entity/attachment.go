package entity

import (
	"strconv"
	"strings"
	"time"
)

// RevisionTagAttribute is the folder/file attribute carrying the record revision
// that produced the most recent attachment write.
const RevisionTagAttribute = "Version_number"

// StoredFile 文档库中的文件
type StoredFile struct {
	Name       string            `json:"name"`
	Path       string            `json:"path"`
	Size       int64             `json:"size"`
	ModifiedAt time.Time         `json:"modified_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attribute looks an attribute up by name, ignoring case; object stores may re-case metadata keys.
func (f StoredFile) Attribute(name string) (string, bool) {
	if v, ok := f.Attributes[name]; ok {
		return v, true
	}
	for k, v := range f.Attributes {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// RevisionTag returns the integer revision tag, ok=false when missing or not an integer.
// A dotted tag such as "2.0" reads as its major number.
func (f StoredFile) RevisionTag() (int, bool) {
	raw, ok := f.Attribute(RevisionTagAttribute)
	if !ok {
		return 0, false
	}
	return MajorVersion(raw)
}

// MajorVersion returns the integer before the first '.' of a revision label ("3.0" -> 3).
func MajorVersion(label string) (int, bool) {
	major, _, _ := strings.Cut(strings.TrimSpace(label), ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, false
	}
	return n, true
}
