// Package blob fetches raw document bytes from the configured object store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/config"
)

// ErrNotFound indicates the blob does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// Ref identifies a blob. Path, when set on the document row, overrides the
// default <org_id>/<document_id> key.
type Ref struct {
	OrgID      string
	DocumentID string
	Path       string
}

// Object is a fetched blob.
type Object struct {
	Data     []byte
	Path     string
	MIMEType string
}

// Store fetches document bytes.
type Store interface {
	Fetch(ctx context.Context, ref Ref) (*Object, error)
}

// NewFromConfig builds the store selected by config.
func NewFromConfig(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "", "fs":
		return NewFSStore(cfg.FS.Root)
	case "s3":
		return NewMinioStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type %q", cfg.Type)
	}
}

// key resolves the object key for a ref.
func (r Ref) key() string {
	if r.Path != "" {
		return r.Path
	}
	return r.OrgID + "/" + r.DocumentID
}

// mimeFromPath guesses a MIME type from the file extension, empty when
// unknown.
func mimeFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	mt := mime.TypeByExtension(ext)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return mt
}
