package blob

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FSStore serves blobs from a directory tree laid out as
// <root>/<org_id>/<document_id>, with the document row's file_path as an
// override relative to root.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Fetch reads the blob from disk.
func (s *FSStore) Fetch(ctx context.Context, ref Ref) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, filepath.FromSlash(ref.key()))
	// Keys must stay inside the root.
	if !strings.HasPrefix(path, s.root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("blob key escapes store root: %q", ref.key())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok && os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.key())
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	mimeType := mimeFromPath(path)
	if mimeType == "" && len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}

	return &Object{Data: data, Path: path, MIMEType: mimeType}, nil
}

var _ Store = (*FSStore)(nil)
