package server

import "sync"

// RoomRegistry tracks which connections have joined which rooms, so room
// events can be fanned out to exactly the connections that care. Membership
// here is transient subscription state; durable room membership lives in the
// database.
type RoomRegistry struct {
	mu      sync.RWMutex
	byRoom  map[string]map[string]*Connection // room_id -> conn_id -> Connection
	byConn  map[string]map[string]struct{}    // conn_id -> set of room ids
}

// NewRoomRegistry creates an empty RoomRegistry ready for use.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		byRoom: make(map[string]map[string]*Connection),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes the connection to the room. Joining twice is a no-op.
func (r *RoomRegistry) Join(roomID string, conn *Connection) {
	r.mu.Lock()
	room, ok := r.byRoom[roomID]
	if !ok {
		room = make(map[string]*Connection)
		r.byRoom[roomID] = room
	}
	room[conn.ID] = conn

	rooms, ok := r.byConn[conn.ID]
	if !ok {
		rooms = make(map[string]struct{})
		r.byConn[conn.ID] = rooms
	}
	rooms[roomID] = struct{}{}
	r.mu.Unlock()
}

// Leave unsubscribes the connection from the room.
func (r *RoomRegistry) Leave(roomID string, connID string) {
	r.mu.Lock()
	if room := r.byRoom[roomID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	if rooms := r.byConn[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byConn, connID)
		}
	}
	r.mu.Unlock()
}

// LeaveAll unsubscribes the connection from every room it has joined. Called
// when a connection closes.
func (r *RoomRegistry) LeaveAll(connID string) {
	r.mu.Lock()
	for roomID := range r.byConn[connID] {
		if room := r.byRoom[roomID]; room != nil {
			delete(room, connID)
			if len(room) == 0 {
				delete(r.byRoom, roomID)
			}
		}
	}
	delete(r.byConn, connID)
	r.mu.Unlock()
}

// Members returns a snapshot of the connections currently subscribed to the
// room. When exceptUserID is non-empty, connections belonging to that user
// are excluded (used to suppress typing echoes back to the sender).
func (r *RoomRegistry) Members(roomID string, exceptUserID string) []*Connection {
	r.mu.RLock()
	room := r.byRoom[roomID]
	conns := make([]*Connection, 0, len(room))
	for _, conn := range room {
		if exceptUserID != "" && conn.UserID == exceptUserID {
			continue
		}
		conns = append(conns, conn)
	}
	r.mu.RUnlock()
	return conns
}

// Broadcast writes the message to every subscribed connection in the room,
// skipping exceptUserID's connections when set. It returns the number of
// connections reached. Write errors on individual connections are ignored.
func (r *RoomRegistry) Broadcast(roomID string, exceptUserID string, msg []byte) int {
	conns := r.Members(roomID, exceptUserID)
	for _, conn := range conns {
		_ = conn.WriteMessage(msg)
	}
	return len(conns)
}
