// Package storage provides the per-key document folders that hold cost record attachments.
package storage

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrFolderExists   = errors.New("folder already exists")
	ErrFolderNotFound = errors.New("folder not found")
	ErrFileExists     = errors.New("file already exists")
	ErrFileNotFound   = errors.New("file not found")
	ErrInvalidPath    = errors.New("invalid storage path")
)

// cleanFolder normalises a slash separated folder path and rejects traversal.
func cleanFolder(folder string) (string, error) {
	p := strings.Trim(strings.ReplaceAll(folder, `\`, "/"), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty folder", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, folder)
		}
	}
	return path.Clean(p), nil
}

// cleanName validates a file name inside a folder.
func cleanName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidPath, name)
	}
	return name, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
