package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/connect/chat-app/internal/chat"
)

// REST fetches the initial chat state the store is seeded from: the room
// list and per-room message history, plus the room management endpoints.
// Errors are returned to the caller unwrapped of any UI concern — surfacing
// them is the UI layer's job, not this client's.
type REST struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewREST creates a REST client for the given API base URL, authenticating
// every request with the access token.
func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// doRequest executes one API request with auth headers and decodes the JSON
// response into out (skipped when out is nil). Non-2xx responses become
// errors carrying the status and body.
func (r *REST) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("client: %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

// Rooms fetches the authenticated user's room list, ordered by recency, with
// denormalized last-message previews.
func (r *REST) Rooms(ctx context.Context) ([]chat.Room, error) {
	var rooms []chat.Room
	if err := r.doRequest(ctx, http.MethodGet, "/chat", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Room fetches a single room.
func (r *REST) Room(ctx context.Context, roomID string) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodGet, "/chat/"+roomID, nil, &room)
	return room, err
}

// Messages fetches a page of a room's history. The server returns messages
// newest-first; chat.State.SetMessages reverses them on ingestion.
func (r *REST) Messages(ctx context.Context, roomID string, limit, skip int) ([]chat.Message, error) {
	path := fmt.Sprintf("/message/%s?limit=%d&skip=%d", roomID, limit, skip)
	var msgs []chat.Message
	if err := r.doRequest(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetOrCreateOneToOne returns the one-to-one room with the target user,
// creating it if it does not exist yet.
func (r *REST) GetOrCreateOneToOne(ctx context.Context, targetUserID string) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodPost, "/chat/one-to-one", map[string]string{
		"targetUserId": targetUserID,
	}, &room)
	return room, err
}

// GroupParams carries group creation and update fields.
type GroupParams struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Image       *chat.ImageRef `json:"image,omitempty"`
	IsPublic    bool           `json:"isPublic,omitempty"`
	Members     []string       `json:"members,omitempty"`
}

// CreateGroup creates a group room owned by the caller.
func (r *REST) CreateGroup(ctx context.Context, p GroupParams) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodPost, "/chat/group", p, &room)
	return room, err
}

// UpdateGroup updates a group's metadata. Admins only.
func (r *REST) UpdateGroup(ctx context.Context, roomID string, p GroupParams) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodPut, "/chat/group/"+roomID, p, &room)
	return room, err
}

// AddMembers adds users to a group. A nil userIDs slice means the caller is
// joining a public group themselves.
func (r *REST) AddMembers(ctx context.Context, roomID string, userIDs []string) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodPost, "/chat/group/add", map[string]interface{}{
		"chatRoomId": roomID,
		"newUserIds": userIDs,
	}, &room)
	return room, err
}

// RemoveMember removes a user from a group. Admins only; members remove
// themselves via LeaveGroup.
func (r *REST) RemoveMember(ctx context.Context, roomID, userID string) (chat.Room, error) {
	var room chat.Room
	err := r.doRequest(ctx, http.MethodPost, "/chat/group/remove", map[string]string{
		"chatRoomId":     roomID,
		"userIdToRemove": userID,
	}, &room)
	return room, err
}

// LeaveGroup removes the caller from a group. Always permitted.
func (r *REST) LeaveGroup(ctx context.Context, roomID string) error {
	return r.doRequest(ctx, http.MethodPost, "/chat/group/leave", map[string]string{
		"chatRoomId": roomID,
	}, nil)
}

// DeleteGroup deletes a group room. Owner only.
func (r *REST) DeleteGroup(ctx context.Context, roomID string) error {
	return r.doRequest(ctx, http.MethodDelete, "/chat/group/"+roomID, nil, nil)
}

// DeleteMessage soft-deletes a message over REST (the wire event is the
// usual path; this covers flows without a live connection).
func (r *REST) DeleteMessage(ctx context.Context, messageID string) error {
	return r.doRequest(ctx, http.MethodDelete, "/message/"+messageID, nil, nil)
}

// DiscoverUsers searches users available for new conversations.
func (r *REST) DiscoverUsers(ctx context.Context, q string) ([]chat.User, error) {
	var users []chat.User
	path := "/chat/discover/users"
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	if err := r.doRequest(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DiscoverGroups searches public groups open for joining.
func (r *REST) DiscoverGroups(ctx context.Context, q string) ([]chat.Room, error) {
	var rooms []chat.Room
	path := "/chat/discover/groups"
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	if err := r.doRequest(ctx, http.MethodGet, path, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}
