package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/social-feed/internal/service"
)

// AdminHandler serves /api/admin. The router puts RequireAuth and
// RequireAdmin in front of it.
type AdminHandler struct {
	tweets *service.TweetService
	logger *slog.Logger
}

func NewAdminHandler(tweets *service.TweetService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{tweets: tweets, logger: logger}
}

type moderateResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// HandleModerate soft-deletes any tweet.
//
// HTTP: DELETE /api/admin/tweets/{id}
// REQUEST BODY (optional): {"reason": "spam"}
func (h *AdminHandler) HandleModerate(w http.ResponseWriter, r *http.Request) {
	adminID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reason, err := h.tweets.Moderate(r.Context(), r.PathValue("id"), adminID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, moderateResponse{Message: "Tweet marked as deleted", Reason: reason})
}
