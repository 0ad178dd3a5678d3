// Package files talks to the file-hosting collaborator that stores task
// attachments and hands back a URL per uploaded file.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const DefaultMaxBytes int64 = 50 * 1024 * 1024 // 50MB

var ErrTooLarge = errors.New("file too large")

// File is one upload. Open is called once per upload attempt.
type File struct {
	Name     string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// PathFile uploads the file at path under its base name.
func PathFile(path string) File {
	path = filepath.Clean(strings.TrimSpace(path))
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			st, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if st.IsDir() {
				return nil, fmt.Errorf("%s is a directory", path)
			}
			return os.Open(path)
		},
	}
}

type Uploaded struct {
	FileID    string `json:"fileId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	MimeType  string `json:"mimeType,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

type Host interface {
	Upload(ctx context.Context, f File) (Uploaded, error)
	Remove(ctx context.Context, fileID string) error
}

type ItemError struct {
	Name string
	Err  error
}

// BatchError collects per-item failures of a multi-file operation; the
// items not listed succeeded.
type BatchError struct {
	Total    int
	Failures []ItemError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	return fmt.Sprintf("%d of %d failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// UploadAll uploads every file, continuing past failures. The returned
// error is nil or a *BatchError.
func UploadAll(ctx context.Context, h Host, fs []File) ([]Uploaded, error) {
	out := make([]Uploaded, 0, len(fs))
	var failures []ItemError
	for _, f := range fs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ItemError{Name: f.Name, Err: err})
			continue
		}
		up, err := h.Upload(ctx, f)
		if err != nil {
			failures = append(failures, ItemError{Name: f.Name, Err: err})
			continue
		}
		out = append(out, up)
	}
	if len(failures) > 0 {
		return out, &BatchError{Total: len(fs), Failures: failures}
	}
	return out, nil
}

// RemoveAll removes every file id, continuing past failures.
func RemoveAll(ctx context.Context, h Host, ids []string) error {
	var failures []ItemError
	for _, id := range ids {
		if err := h.Remove(ctx, id); err != nil {
			failures = append(failures, ItemError{Name: id, Err: err})
		}
	}
	if len(failures) > 0 {
		return &BatchError{Total: len(ids), Failures: failures}
	}
	return nil
}

func guessMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" {
		return "application/octet-stream"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
