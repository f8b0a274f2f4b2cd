package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/service"
)

const (
	// multipartOverhead is allowed on top of the file limit for the
	// boundaries and part headers.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// upload is one file taken from a multipart request.
type upload struct {
	filename string
	mime     string
	data     []byte
}

// readUpload returns the first file found under one of fields. A request
// without any of them yields an empty upload, which the services reject
// with their own message. Bodies beyond limit fail with tooLarge.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64, tooLarge string, fields ...string) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperror.ValidationFailed("file", tooLarge)
		}
		return nil, apperror.ValidationFailed("file", "Expected a multipart/form-data upload")
	}
	defer r.MultipartForm.RemoveAll()

	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading form file %s: %w", field, err)
		}
		return readPart(file, header, limit)
	}
	return &upload{}, nil
}

func readPart(file multipart.File, header *multipart.FileHeader, limit int64) (*upload, error) {
	defer file.Close()

	// One byte over the limit is enough for the size check downstream.
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", header.Filename, err)
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return &upload{filename: header.Filename, mime: mime, data: data}, nil
}

// UploadHandler accepts tweet media ahead of tweet creation.
type UploadHandler struct {
	media  *service.MediaService
	logger *slog.Logger
}

func NewUploadHandler(mediaService *service.MediaService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{media: mediaService, logger: logger}
}

// HandleTweetMedia stores one image or video.
//
// HTTP: POST /api/upload/tweet
// FORM FIELD: "media" (or the older "tweetImage")
// RESPONSE: {"success": true, "type": "image", "imageUrl": "/uploads/tweets/..."}
func (h *UploadHandler) HandleTweetMedia(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, media.MaxTweetMediaSize, "File too large. Max 50MB.", "media", "tweetImage")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	stored, err := h.media.UploadTweetMedia(r.Context(), up.filename, up.mime, up.data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
