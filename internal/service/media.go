package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/media"
)

// MediaService accepts tweet attachments before the tweet exists. The
// returned URL is then passed as image or video to TweetService.Create.
type MediaService struct {
	store  media.Store
	logger *slog.Logger
}

func NewMediaService(store media.Store, logger *slog.Logger) *MediaService {
	return &MediaService{store: store, logger: logger}
}

// UploadTweetMedia stores one image or video.
func (s *MediaService) UploadTweetMedia(ctx context.Context, filename, mime string, data []byte) (*media.Media, error) {
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("media", "No file uploaded")
	}
	if len(data) > media.MaxTweetMediaSize {
		return nil, apperror.ValidationFailed("media", "File too large. Max 50MB.")
	}

	kind, err := media.Classify(mime)
	if err != nil {
		return nil, apperror.ValidationFailed("media", "Only image or video files are allowed")
	}

	url, err := s.store.Save(ctx, kind.Prefix(), filename, data, mime)
	if err != nil {
		return nil, fmt.Errorf("storing tweet media: %w", err)
	}

	s.logger.Info("tweet media uploaded",
		slog.String("type", string(kind)),
		slog.String("url", url),
		slog.Int("bytes", len(data)),
	)
	return &media.Media{Kind: kind, URL: url}, nil
}
