package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/service"
)

// MessageHandler serves the tweet endpoints: timelines, create, delete,
// like/unlike and tweet search.
type MessageHandler struct {
	messages *service.MessageService
	logger   *slog.Logger
}

func NewMessageHandler(messages *service.MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// timelineResponse is the page envelope every tweet list is wrapped in.
// A bare JSON array would work, but an object lets fields be added later
// without breaking clients.
type timelineResponse struct {
	Messages []model.Message `json:"tweets"`
}

// HandleTimeline returns one page of the global feed.
//
// HTTP: GET /api/tweets/timeline?page=N
// Auth: Required
//
// Pages are 1-based and fixed at 20 items. The client infers "no more pages"
// from a short page, so this endpoint never returns a has_more flag.
func (h *MessageHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msgs, err := h.messages.Timeline(r.Context(), userID, pageParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{Messages: msgs})
}

// HandleUserTimeline returns one page of a single user's tweets.
//
// HTTP: GET /api/tweets/user/{username}?page=N
// Auth: Optional — anonymous viewers get is_liked=false throughout
func (h *MessageHandler) HandleUserTimeline(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msgs, err := h.messages.UserTimeline(r.Context(), r.PathValue("username"), userID, pageParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{Messages: msgs})
}

type createMessageRequest struct {
	Content string `json:"content"`
}

// HandleCreate posts a new tweet.
//
// HTTP: POST /api/tweets/post
// BODY: {"content": "..."}
// Auth: Required
func (h *MessageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.messages.Create(r.Context(), userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleGet returns a single tweet.
//
// HTTP: GET /api/tweets/{id}
// Auth: Optional
func (h *MessageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msg, err := h.messages.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleDelete removes the caller's own tweet.
//
// HTTP: DELETE /api/tweets/{id}
// Auth: Required; deleting someone else's tweet answers 403
func (h *MessageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.messages.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLike likes a tweet and returns it with the fresh counters.
//
// HTTP: POST /api/tweets/{id}/like
// Auth: Required
//
// Liking an already-liked tweet answers 409: the caller's view was stale
// and the response body tells it so.
func (h *MessageHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msg, err := h.messages.Like(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleUnlike removes a like.
//
// HTTP: DELETE /api/tweets/{id}/like
// Auth: Required
func (h *MessageHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msg, err := h.messages.Unlike(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleSearch returns tweets matching ?q=.
//
// HTTP: GET /api/search/tweets?q=...&page=N
// Auth: Optional
func (h *MessageHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	msgs, err := h.messages.Search(r.Context(), r.URL.Query().Get("q"), userID, pageParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{Messages: msgs})
}

// pageParam reads the 1-based ?page= query parameter. Absent or garbage
// values mean page 1 — paging mistakes should degrade to the first page,
// not to a 400.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
