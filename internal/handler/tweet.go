package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/social-feed/internal/service"
)

// TweetHandler serves /api/tweets. Every route sits behind RequireAuth, so
// the caller id is always present; it is also the viewer for projections.
type TweetHandler struct {
	tweets *service.TweetService
	logger *slog.Logger
}

func NewTweetHandler(tweets *service.TweetService, logger *slog.Logger) *TweetHandler {
	return &TweetHandler{tweets: tweets, logger: logger}
}

type createTweetRequest struct {
	Content string `json:"content"`
	Image   string `json:"image"`
	Video   string `json:"video"`
}

// HandleCreate posts a tweet.
//
// HTTP: POST /api/tweets
// REQUEST BODY: {"content": "...", "image": "/uploads/...", "video": "..."}
func (h *TweetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req createTweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tweet, err := h.tweets.Create(r.Context(), userID, req.Content, req.Image, req.Video)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tweet)
}

// HandleFeed returns every tweet, newest first.
//
// HTTP: GET /api/tweets
func (h *TweetHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	viewer, _ := callerID(r)

	items, err := h.tweets.Feed(r.Context(), viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleSearch searches tweet content, or users with type=users.
//
// HTTP: GET /api/tweets/search?q=go&type=tweets|users
func (h *TweetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	viewer, _ := callerID(r)
	q := r.URL.Query().Get("q")

	if r.URL.Query().Get("type") == "users" {
		users, err := h.tweets.SearchUsers(r.Context(), q)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
		return
	}

	items, err := h.tweets.SearchTweets(r.Context(), viewer, q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleByUser returns one user's tweets and retweets.
//
// HTTP: GET /api/tweets/user/{username}
func (h *TweetHandler) HandleByUser(w http.ResponseWriter, r *http.Request) {
	viewer, _ := callerID(r)

	items, err := h.tweets.ByUser(r.Context(), viewer, r.PathValue("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleByHashtag returns tweets carrying a hashtag.
//
// HTTP: GET /api/tweets/hashtag/{tag}
func (h *TweetHandler) HandleByHashtag(w http.ResponseWriter, r *http.Request) {
	viewer, _ := callerID(r)

	items, err := h.tweets.ByHashtag(r.Context(), viewer, r.PathValue("tag"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleTrends returns the hashtag ranking of the last 24 hours.
//
// HTTP: GET /api/tweets/trends
func (h *TweetHandler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.tweets.Trends(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

// HandleLike toggles the caller's like.
//
// HTTP: POST /api/tweets/{id}/like
func (h *TweetHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.tweets.ToggleLike(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRetweet toggles the caller's retweet.
//
// HTTP: POST /api/tweets/{tweetId}/retweet
func (h *TweetHandler) HandleRetweet(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.tweets.ToggleRetweet(r.Context(), r.PathValue("tweetId"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleUpdate edits the caller's own tweet.
//
// HTTP: PUT /api/tweets/{id}
// REQUEST BODY: {"content": "..."}
func (h *TweetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tweet, err := h.tweets.Update(r.Context(), r.PathValue("id"), userID, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tweet)
}

// HandleDelete removes the caller's own tweet.
//
// HTTP: DELETE /api/tweets/{id}
func (h *TweetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.tweets.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Tweet deleted successfully"})
}

// HandleComment appends a comment and returns the whole thread.
//
// HTTP: POST /api/tweets/{id}/comment
// REQUEST BODY: {"text": "..."}
func (h *TweetHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	comments, err := h.tweets.Comment(r.Context(), r.PathValue("id"), userID, req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
