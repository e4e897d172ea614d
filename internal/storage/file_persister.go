package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister saves exported files. It hides where and how the bytes
// end up.
type FilePersister interface {
	Persist(ctx context.Context, name, mimeType string, data io.Reader) (string, error)
}

// LocalFilePersister writes files below Dir.
type LocalFilePersister struct {
	Dir string
}

// Persist writes data to Dir/name and returns the written path. The name
// must stay inside Dir, and a known MIME type must match its extension.
func (l *LocalFilePersister) Persist(ctx context.Context, name, mimeType string, data io.Reader) (path string, err error) {
	if err = ctx.Err(); err != nil {
		return "", err
	}

	// rooting the name first drops any leading ".." segments
	root := filepath.Clean(l.Dir)
	cp := filepath.Join(root, filepath.Clean("/"+name))
	if cp == root {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err = checkExtension(cp, mimeType); err != nil {
		return "", err
	}

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		tempErr := f.Close()
		// Only return the close error if there isn't already an existing error.
		if tempErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, tempErr)
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		return "", fmt.Errorf("writing the local file %q: %w", cp, err)
	}
	return cp, nil
}

func checkExtension(path, mimeType string) error {
	if mimeType == "" {
		return nil
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		// unknown types are written as is
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if e == ext {
			return nil
		}
	}
	return fmt.Errorf("file %q does not match content type %s", filepath.Base(path), mimeType)
}
