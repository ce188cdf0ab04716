package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/umar/talkwave/internal/chat"
	"github.com/umar/talkwave/internal/database"
	"github.com/umar/talkwave/internal/models"
)

// Notifier pushes an event to every live connection of a user.
type Notifier interface {
	SendToUser(userID int64, event string, payload any) int
}

type createRoomRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"is_private"`
}

type roomDetail struct {
	Room    *models.ChatRoom    `json:"room"`
	Members []models.RoomMember `json:"members"`
}

func ListRooms(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requestIdentity(w, r)
		if !ok {
			return
		}
		rooms, err := store.ListRoomsForUser(r.Context(), userID)
		if err != nil {
			slog.Error("failed to list rooms", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func ListPublicRooms(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := store.ListPublicRooms(r.Context())
		if err != nil {
			slog.Error("failed to list public rooms", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func CreateRoom(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requestIdentity(w, r)
		if !ok {
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		room, err := store.CreateRoom(r.Context(), req.Name, req.Description, req.IsPrivate, userID)
		if err != nil {
			if errors.Is(err, database.ErrInvalid) {
				writeError(w, http.StatusBadRequest, "name is required")
				return
			}
			slog.Error("failed to create room", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		slog.Info("room created", "room_id", room.ID, "user_id", userID)
		writeJSON(w, http.StatusCreated, room)
	}
}

func GetRoom(store *database.Store) http.HandlerFunc {
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

		room, err := store.GetRoom(r.Context(), roomID)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			slog.Error("failed to get room", "room_id", roomID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
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

		members, err := store.ListRoomMembers(r.Context(), roomID)
		if err != nil {
			slog.Error("failed to list members", "room_id", roomID, "error", err)
			members = []models.RoomMember{}
		}

		writeJSON(w, http.StatusOK, roomDetail{Room: room, Members: members})
	}
}

// JoinRoom adds the caller to a public room and tells their open sockets
// so they can subscribe.
func JoinRoom(store *database.Store, notifier Notifier) http.HandlerFunc {
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

		room, err := store.GetRoom(r.Context(), roomID)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			slog.Error("failed to get room", "room_id", roomID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if room.IsPrivate {
			writeError(w, http.StatusForbidden, "room is private")
			return
		}

		_, err = store.AddRoomMember(r.Context(), roomID, userID, models.RoleMember)
		switch {
		case errors.Is(err, database.ErrDuplicate):
			writeJSON(w, http.StatusOK, map[string]string{"status": "already a member"})
			return
		case errors.Is(err, database.ErrNotFound):
			writeError(w, http.StatusNotFound, "room not found")
			return
		case err != nil:
			slog.Error("failed to join room", "room_id", roomID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		notifier.SendToUser(userID, chat.TypeRoomMembershipAdded, chat.MembershipPayload{RoomID: roomID, Role: models.RoleMember})
		writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
	}
}

func LeaveRoom(store *database.Store) http.HandlerFunc {
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

		err = store.RemoveRoomMember(r.Context(), roomID, userID)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not a member of this room")
			return
		}
		if err != nil {
			slog.Error("failed to leave room", "room_id", roomID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
	}
}

// DeleteRoom is restricted to room admins; messages and memberships go with the room.
func DeleteRoom(store *database.Store) http.HandlerFunc {
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

		role, isMember, err := membership.Role(r.Context(), userID, roomID)
		if err != nil {
			slog.Error("failed to get member role", "room_id", roomID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !isMember || role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "only room admins can delete a room")
			return
		}

		if err := store.DeleteRoom(r.Context(), roomID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "room not found")
				return
			}
			slog.Error("failed to delete room", "room_id", roomID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		slog.Info("room deleted", "room_id", roomID, "user_id", userID)
		w.WriteHeader(http.StatusNoContent)
	}
}
