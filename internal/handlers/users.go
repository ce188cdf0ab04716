package handlers

import (
	"log/slog"
	"net/http"

	"github.com/umar/talkwave/internal/chat"
	"github.com/umar/talkwave/internal/database"
)

// OnlineLister reports the users with at least one live connection.
type OnlineLister interface {
	ListOnline() []int64
}

func OnlineUsers(presence OnlineLister, store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.GetUsersByIDs(r.Context(), presence.ListOnline())
		if err != nil {
			slog.Error("failed to load online users", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, chat.NewOnlineUsersPayload(users))
	}
}
