package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/creatify/internal/model"
	"github.com/creatify/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RoomHandler struct {
	rooms *repository.RoomRepository
	chats *repository.ChatRepository
}

func NewRoomHandler(rooms *repository.RoomRepository, chats *repository.ChatRepository) *RoomHandler {
	return &RoomHandler{rooms: rooms, chats: chats}
}

// ListForUser handles GET /room/user/{userId}: the user's rooms with
// members, last chat and unread count.
func (h *RoomHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathInt64(chi.URLParam(r, "userId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	summaries, err := h.rooms.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rooms")
		return
	}
	for i := range summaries {
		last, err := h.chats.LastForRoom(r.Context(), summaries[i].Room.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load rooms")
			return
		}
		summaries[i].LastChat = last
	}
	if summaries == nil {
		summaries = []model.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Detail handles GET /room/{id}: full history with media plus members.
func (h *RoomHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.rooms.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	chats, err := h.chats.ListForRoom(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	members, err := h.rooms.Members(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	writeJSON(w, http.StatusOK, model.RoomDetail{Room: *room, Chats: chats, Members: members})
}

type createRoomRequest struct {
	Name    string  `json:"name"`
	UserIDs []int64 `json:"userIds"`
}

// Create handles POST /room. Rooms are created lazily: posting an existing
// name returns the existing room's id instead of an error, so the client
// can always "create" before opening a conversation.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	existing, err := h.rooms.FindByName(r.Context(), req.Name)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"id": existing.ID})
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	room := &model.Room{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.rooms.Create(r.Context(), room, req.UserIDs); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": room.ID})
}

type chatMediaRequest struct {
	ChatID string `json:"chatId"`
	URL    string `json:"url"`
}

// AddChatMedia handles POST /chat/media: attaches an uploaded media URL to
// a chat created via sendMessageWithMedia.
func (h *RoomHandler) AddChatMedia(w http.ResponseWriter, r *http.Request) {
	var req chatMediaRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "chatId and url required")
		return
	}
	if _, err := h.chats.GetByID(r.Context(), req.ChatID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to attach media")
		return
	}
	mediaID, err := h.chats.AddMedia(r.Context(), req.ChatID, req.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to attach media")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"mediaId": mediaID})
}
