// Package api exposes the chat REST surface: room listing and management,
// message history, and discovery. Every route requires an authenticated
// user; the handler reads the user's identity from the request context set
// by the auth middleware.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/connect/chat-app/internal/auth"
	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/messaging"
	"github.com/connect/chat-app/internal/protocol"
	"github.com/connect/chat-app/internal/store"
)

// Handlers bundles the dependencies of the REST routes.
type Handlers struct {
	store *store.Store
	nats  *messaging.Client // optional; used to fan out REST-initiated deletes
}

// NewHandlers creates the REST handler set. The NATS client may be nil in
// tests; only delete fan-out uses it.
func NewHandlers(st *store.Store, nats *messaging.Client) *Handlers {
	return &Handlers{store: st, nats: nats}
}

// Routes mounts all chat REST endpoints on a new chi router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/chat", func(r chi.Router) {
		r.Get("/", h.listRooms)
		r.Post("/one-to-one", h.createOneToOne)
		r.Post("/group", h.createGroup)
		r.Put("/group/{roomID}", h.updateGroup)
		r.Delete("/group/{roomID}", h.deleteGroup)
		r.Post("/group/add", h.addMembers)
		r.Post("/group/remove", h.removeMember)
		r.Post("/group/leave", h.leaveGroup)
		r.Get("/discover/users", h.discoverUsers)
		r.Get("/discover/groups", h.discoverGroups)
		r.Get("/{roomID}", h.getRoom)
	})
	r.Route("/message", func(r chi.Router) {
		r.Get("/{roomID}", h.listMessages)
		r.Delete("/{messageID}", h.deleteMessage)
	})

	return r
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	rooms, err := h.store.ListRooms(r.Context(), userID)
	if err != nil {
		h.storeError(w, "list rooms", err)
		return
	}
	if rooms == nil {
		rooms = []chat.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handlers) getRoom(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	roomID := chi.URLParam(r, "roomID")

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.storeError(w, "get room", err)
		return
	}
	if !room.HasMember(userID) && !(room.IsGroup() && room.IsPublic) {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) createOneToOne(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserID == "" {
		writeError(w, http.StatusBadRequest, "targetUserId is required")
		return
	}

	room, err := h.store.CreateOneToOne(r.Context(), userID, req.TargetUserID)
	if err != nil {
		h.storeError(w, "create one-to-one", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// groupRequest is the JSON body for group create and update.
type groupRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       *chat.ImageRef `json:"image"`
	IsPublic    bool           `json:"isPublic"`
	Members     []string       `json:"members"`
}

func (g groupRequest) params() store.GroupParams {
	p := store.GroupParams{
		Name:        g.Name,
		Description: g.Description,
		IsPublic:    g.IsPublic,
		MemberIDs:   g.Members,
	}
	if g.Image != nil {
		p.ImageURL = g.Image.URL
	}
	return p
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.store.CreateGroup(r.Context(), userID, req.params())
	if err != nil {
		h.storeError(w, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *Handlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	roomID := chi.URLParam(r, "roomID")

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.store.UpdateGroup(r.Context(), roomID, userID, req.params())
	if err != nil {
		h.storeError(w, "update group", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	roomID := chi.URLParam(r, "roomID")

	if err := h.store.DeleteGroup(r.Context(), roomID, userID); err != nil {
		h.storeError(w, "delete group", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) addMembers(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		ChatRoomID string   `json:"chatRoomId"`
		NewUserIDs []string `json:"newUserIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatRoomID == "" {
		writeError(w, http.StatusBadRequest, "chatRoomId is required")
		return
	}

	room, err := h.store.AddMembers(r.Context(), req.ChatRoomID, userID, req.NewUserIDs)
	if err != nil {
		h.storeError(w, "add members", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		ChatRoomID     string `json:"chatRoomId"`
		UserIDToRemove string `json:"userIdToRemove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatRoomID == "" || req.UserIDToRemove == "" {
		writeError(w, http.StatusBadRequest, "chatRoomId and userIdToRemove are required")
		return
	}

	room, err := h.store.RemoveMember(r.Context(), req.ChatRoomID, userID, req.UserIDToRemove)
	if err != nil {
		h.storeError(w, "remove member", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) leaveGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		ChatRoomID string `json:"chatRoomId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatRoomID == "" {
		writeError(w, http.StatusBadRequest, "chatRoomId is required")
		return
	}

	if err := h.store.LeaveGroup(r.Context(), req.ChatRoomID, userID); err != nil {
		h.storeError(w, "leave group", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	roomID := chi.URLParam(r, "roomID")

	ok, err := h.store.IsMember(r.Context(), roomID, userID)
	if err != nil {
		h.storeError(w, "list messages", err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))

	msgs, err := h.store.Messages(r.Context(), roomID, limit, skip)
	if err != nil {
		h.storeError(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	messageID := chi.URLParam(r, "messageID")

	roomID, err := h.store.SoftDeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		h.storeError(w, "delete message", err)
		return
	}

	// Fan out to connected clients so open conversations update live.
	if h.nats != nil {
		data, err := protocol.NewEvent(protocol.EventMessageDeleted, protocol.DeletedPayload{
			MessageID: messageID,
		})
		if err == nil {
			if err := h.nats.PublishRoomEvent(messaging.RoomEvent{RoomID: roomID, Payload: data}); err != nil {
				log.Printf("api: publish delete for message=%s: %v", messageID, err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) discoverUsers(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	users, err := h.store.DiscoverUsers(r.Context(), userID, r.URL.Query().Get("q"), 0)
	if err != nil {
		h.storeError(w, "discover users", err)
		return
	}
	if users == nil {
		users = []chat.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) discoverGroups(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	rooms, err := h.store.DiscoverGroups(r.Context(), userID, r.URL.Query().Get("q"), 0)
	if err != nil {
		h.storeError(w, "discover groups", err)
		return
	}
	if rooms == nil {
		rooms = []chat.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// storeError maps store errors onto HTTP status codes.
func (h *Handlers) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		log.Printf("api: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
