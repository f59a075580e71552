package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/storage"
)

// AskResponse is the body of a successful POST /api/queries/ask. The client
// unwraps ResponseText and reads id, createdAt and user as metadata.
type AskResponse struct {
	ID           int64           `json:"id"`
	QueryText    string          `json:"queryText"`
	ResponseText normalize.Value `json:"responseText"`
	CreatedAt    time.Time       `json:"createdAt"`
	User         storage.User    `json:"user"`
}

// HistoryEntry is one element of GET /api/queries/history.
type HistoryEntry struct {
	ID           int64           `json:"id"`
	QueryText    string          `json:"queryText"`
	ResponseText json.RawMessage `json:"responseText"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		question := strings.TrimSpace(r.URL.Query().Get("question"))
		if question == "" {
			httpError(w, http.StatusBadRequest, "question is required")
			return
		}

		user, err := deps.Store.GetUser(userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "User not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "loading user: %v", err)
			return
		}

		ans, err := deps.Answerer.Answer(r.Context(), question, userID)
		if err != nil {
			deps.Logger.Error("answering question", "user_id", userID, "error", err)
			httpError(w, http.StatusInternalServerError, "executing query: %v", err)
			return
		}
		deps.Metrics.Answered(ans.Rule)

		stored, err := ans.Result.MarshalJSON()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "encoding result: %v", err)
			return
		}
		q, err := deps.Store.SaveQuery(storage.Query{
			UserID:       userID,
			QueryText:    question,
			ResponseText: string(stored),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "saving query: %v", err)
			return
		}
		deps.Logger.Debug("question answered", "user_id", userID, "rule", ans.Rule, "query_id", q.ID)

		writeJSON(w, AskResponse{
			ID:           q.ID,
			QueryText:    q.QueryText,
			ResponseText: ans.Result,
			CreatedAt:    q.CreatedAt,
			User:         user,
		})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if _, err := deps.Store.GetUser(userID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "User not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "loading user: %v", err)
			return
		}

		queries, err := deps.Store.ListQueries(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing queries: %v", err)
			return
		}

		entries := make([]HistoryEntry, len(queries))
		for i, q := range queries {
			entries[i] = HistoryEntry{
				ID:           q.ID,
				QueryText:    q.QueryText,
				ResponseText: storedAnswer(q.ResponseText),
				CreatedAt:    q.CreatedAt,
			}
		}
		writeJSON(w, entries)
	}
}

// storedAnswer returns text as JSON when it already is JSON, and as a JSON
// string otherwise.
func storedAnswer(text string) json.RawMessage {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	b, _ := json.Marshal(text)
	return b
}

func handleListUsers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Store.ListUsers()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing users: %v", err)
			return
		}
		writeJSON(w, users)
	}
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func handleCreateUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Username) == "" {
			httpError(w, http.StatusBadRequest, "username is required")
			return
		}

		u, err := deps.Store.CreateUser(storage.User{
			Username: strings.TrimSpace(req.Username),
			Email:    req.Email,
			Role:     req.Role,
		})
		if err != nil {
			httpError(w, http.StatusConflict, "creating user: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(u)
	}
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		if _, err := deps.Store.GetUser(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "User not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "loading user: %v", err)
			return
		}

		reports, err := deps.Store.ListReports(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing reports: %v", err)
			return
		}
		writeJSON(w, reports)
	}
}
