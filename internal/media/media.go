// Package media stores uploaded tweet media and profile pictures.
//
// Two backends implement Store:
//
//	LocalStore  files under a directory, served by the API at /uploads/...
//	S3Store     objects in an S3-compatible bucket with public-read ACL
//
// Both hand back a URL that is saved verbatim on the tweet or user, and both
// accept that same URL in Delete.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Upload limits.
const (
	MaxTweetMediaSize     = 50 << 20
	MaxProfilePictureSize = 5 << 20
)

// Key prefixes, one directory (or key namespace) per kind of upload.
const (
	PrefixTweetImages = "tweets"
	PrefixTweetVideos = "videos"
	PrefixProfile     = "profile"
)

// ErrUnsupportedType is returned by Classify for anything that is neither an
// allowed image nor an allowed video type.
var ErrUnsupportedType = errors.New("media: only image or video files are allowed")

// Store persists uploaded bytes and returns the public URL for them.
type Store interface {
	Save(ctx context.Context, prefix, filename string, data []byte, mime string) (string, error)
	// Delete removes the object behind a URL previously returned by Save.
	Delete(ctx context.Context, url string) error
}

// Kind tells images and videos apart.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	tweetImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	tweetVideoTypes = map[string]bool{
		"video/mp4":       true,
		"video/webm":      true,
		"video/ogg":       true,
		"video/quicktime": true,
	}
	profileImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
	}
)

// Classify maps a tweet media content type to its Kind.
func Classify(mime string) (Kind, error) {
	mime = normalizeMime(mime)
	switch {
	case tweetImageTypes[mime]:
		return KindImage, nil
	case tweetVideoTypes[mime]:
		return KindVideo, nil
	default:
		return "", ErrUnsupportedType
	}
}

// Prefix returns where uploads of kind k are stored.
func (k Kind) Prefix() string {
	if k == KindVideo {
		return PrefixTweetVideos
	}
	return PrefixTweetImages
}

// IsProfileImage reports whether mime and the filename's extension are both
// acceptable for a profile picture.
func IsProfileImage(mime, filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return profileImageTypes[normalizeMime(mime)]
	default:
		return false
	}
}

// Media is a stored tweet upload.
//
// It encodes as {"success":true,"type":"image","imageUrl":"..."} for images
// and with "videoUrl" for videos, which is the shape the web client reads.
type Media struct {
	Kind Kind
	URL  string
}

func (m Media) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"success": true,
		"type":    m.Kind,
	}
	switch m.Kind {
	case KindImage:
		out["imageUrl"] = m.URL
	case KindVideo:
		out["videoUrl"] = m.URL
	default:
		return nil, fmt.Errorf("media: unknown kind %q", m.Kind)
	}
	return json.Marshal(out)
}

// objectName builds a collision-free name that keeps the original
// filename readable: "<uuid>-<base name>".
func objectName(filename string) string {
	base := filepath.Base(filename)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		base = "upload"
	}
	return uuid.NewString() + "-" + base
}

func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
