package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PublicPrefix is the URL path the server serves LocalStore files under.
const PublicPrefix = "/uploads"

// LocalStore writes uploads to a directory tree:
//
//	<root>/tweets/<uuid>-photo.jpg   → /uploads/tweets/<uuid>-photo.jpg
//	<root>/videos/<uuid>-clip.mp4    → /uploads/videos/<uuid>-clip.mp4
//	<root>/profile/<uuid>-me.png     → /uploads/profile/<uuid>-me.png
type LocalStore struct {
	root string
}

// NewLocalStore creates root and the per-prefix directories if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	for _, p := range []string{PrefixTweetImages, PrefixTweetVideos, PrefixProfile} {
		if err := os.MkdirAll(filepath.Join(root, p), 0o755); err != nil {
			return nil, fmt.Errorf("media: creating upload dir: %w", err)
		}
	}
	return &LocalStore{root: root}, nil
}

// Root is the directory served at PublicPrefix.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Save(ctx context.Context, prefix, filename string, data []byte, mime string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := objectName(filename)
	dst := filepath.Join(s.root, prefix, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("media: writing %s: %w", dst, err)
	}
	return path.Join(PublicPrefix, prefix, name), nil
}

// Delete removes the file behind url. URLs that do not point inside the
// upload root are rejected. A file that is already gone is not an error.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	p, err := s.resolve(url)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media: removing %s: %w", p, err)
	}
	return nil
}

func (s *LocalStore) resolve(url string) (string, error) {
	rel, ok := strings.CutPrefix(url, PublicPrefix+"/")
	if !ok {
		return "", fmt.Errorf("media: %q is not a local upload", url)
	}

	p := filepath.Join(s.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(s.root, p)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", fmt.Errorf("media: %q escapes the upload root", url)
	}
	return p, nil
}
