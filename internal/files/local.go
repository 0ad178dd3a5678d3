package files

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local stores files under Dir/<file-id>/<name>. URLs are BaseURL joined with
// that relative path, or file:// URLs when BaseURL is empty.
type Local struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

func newFileID() (string, error) {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return "file-" + strings.ToLower(enc.EncodeToString(b[:])), nil
}

func safeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "attachment"
	}
	return name
}

func (l Local) Upload(ctx context.Context, f File) (Uploaded, error) {
	if err := ctx.Err(); err != nil {
		return Uploaded{}, err
	}
	if f.Open == nil {
		return Uploaded{}, errors.New("files: nothing to upload")
	}
	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	in, err := f.Open()
	if err != nil {
		return Uploaded{}, err
	}
	defer in.Close()

	id, err := newFileID()
	if err != nil {
		return Uploaded{}, err
	}
	name := safeName(f.Name)
	destDir := filepath.Join(l.Dir, id)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Uploaded{}, err
	}
	destPath := filepath.Join(destDir, name)
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Uploaded{}, err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), io.LimitReader(in, maxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxBytes {
		err = fmt.Errorf("%w (%d bytes > %d bytes)", ErrTooLarge, n, maxBytes)
	}
	if err != nil {
		_ = os.RemoveAll(destDir)
		return Uploaded{}, err
	}
	// Content digest sits next to the file so a later doctor pass can verify it.
	_ = os.WriteFile(filepath.Join(destDir, ".sha256"), []byte(hex.EncodeToString(h.Sum(nil))+"\n"), 0o644)

	mt := strings.TrimSpace(f.MimeType)
	if mt == "" {
		mt = guessMimeType(name)
	}
	return Uploaded{
		FileID:    id,
		Name:      name,
		URL:       l.url(id, name, destPath),
		MimeType:  mt,
		SizeBytes: n,
	}, nil
}

func (l Local) url(id, name, abs string) string {
	base := strings.TrimRight(strings.TrimSpace(l.BaseURL), "/")
	if base == "" {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return base + "/" + path.Join(url.PathEscape(id), url.PathEscape(name))
}

func (l Local) Remove(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fileID = strings.TrimSpace(fileID)
	if fileID == "" || fileID != filepath.Base(fileID) || strings.HasPrefix(fileID, ".") {
		return fmt.Errorf("files: invalid file id %q", fileID)
	}
	dir := filepath.Join(l.Dir, fileID)
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
