// Package media stores uploaded attachments and issues short-lived signed
// download links for them.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Resource types, the coarse category a file is stored under.
const (
	ResourceImage = "image"
	ResourceVideo = "video" // video and audio
	ResourceRaw   = "raw"   // documents and anything else
)

// ErrNotFound is returned for unknown or malformed content ids.
var ErrNotFound = errors.New("media: content not found")

// Object describes a stored file.
type Object struct {
	ContentID    string `json:"contentId"`
	ResourceType string `json:"resourceType"`
	Format       string `json:"format,omitempty"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// Blob is the opaque store behind the media boundary.
type Blob interface {
	Put(ctx context.Context, originalName, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, contentID string) (io.ReadSeekCloser, string, error)
}

// Category maps a MIME type to its resource type.
func Category(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return ResourceImage
	case strings.HasPrefix(contentType, "video/"), strings.HasPrefix(contentType, "audio/"):
		return ResourceVideo
	default:
		return ResourceRaw
	}
}

// DiskStore keeps blobs as files under a root directory, one subdirectory per
// resource type.
type DiskStore struct {
	root string
}

// NewDiskStore creates root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	for _, sub := range []string{ResourceImage, ResourceVideo, ResourceRaw} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o750); err != nil {
			return nil, fmt.Errorf("media: create %s: %w", sub, err)
		}
	}
	return &DiskStore{root: root}, nil
}

// Put writes r under a fresh content id "<resourceType>/<uuid><ext>".
func (s *DiskStore) Put(ctx context.Context, originalName, contentType string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	rt := Category(contentType)
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	id := rt + "/" + uuid.NewString() + ext

	path := filepath.Join(s.root, filepath.FromSlash(id))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Object{}, fmt.Errorf("media: create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("media: write blob: %w", err)
	}

	return Object{
		ContentID:    id,
		ResourceType: rt,
		Format:       strings.TrimPrefix(ext, "."),
		OriginalName: filepath.Base(originalName),
		Size:         n,
	}, nil
}

// Open returns the blob and its content type.
func (s *DiskStore) Open(ctx context.Context, contentID string) (io.ReadSeekCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !validID(contentID) {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(contentID)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("media: open blob: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(contentID))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

// validID accepts exactly the ids Put generates, which keeps lookups inside
// the root directory.
func validID(id string) bool {
	rt, rest, ok := strings.Cut(id, "/")
	if !ok {
		return false
	}
	switch rt {
	case ResourceImage, ResourceVideo, ResourceRaw:
	default:
		return false
	}
	base := strings.TrimSuffix(rest, filepath.Ext(rest))
	if _, err := uuid.Parse(base); err != nil || len(base) != 36 {
		return false
	}
	return !strings.ContainsAny(rest, `/\`)
}
