package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samber/lo"
	"github.com/umar/talkwave/internal/chat"
	"github.com/umar/talkwave/internal/database"
	"github.com/umar/talkwave/internal/models"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// GetMessages returns the newest messages of a room, oldest first.
func GetMessages(store *database.Store) http.HandlerFunc {
	membership := chat.NewMembership(store)
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		roomID, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid room id")
			return
		}

		isMember, err := membership.IsMember(r.Context(), userID, roomID)
		if err != nil {
			slog.Error("failed to check membership", "room_id", roomID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !isMember {
			writeError(w, http.StatusForbidden, "not a member of this room")
			return
		}

		limit := defaultMessageLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxMessageLimit {
				limit = l
			}
		}

		messages, err := store.ListRecentMessages(r.Context(), roomID, limit)
		if err != nil {
			slog.Error("failed to get messages", "room_id", roomID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, lo.Map(messages, func(m models.MessageWithSender, _ int) chat.NewMessagePayload {
			return chat.NewMessagePayloadFrom(&m)
		}))
	}
}
