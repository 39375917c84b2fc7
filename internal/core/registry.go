package core

// Registry maps live connections to their joined rooms. It is not safe for
// concurrent use; the hub goroutine is its only caller.
type Registry struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds a client with empty membership.
func (r *Registry) Register(c *Client) {
	r.clients[c.ID] = c
}

// Client looks up a registered client.
func (r *Registry) Client(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Join adds roomID to the client's membership. Returns true if newly added;
// joining twice is a no-op.
func (r *Registry) Join(clientID, roomID string) bool {
	c, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if _, joined := c.rooms[roomID]; joined {
		return false
	}
	c.rooms[roomID] = struct{}{}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[roomID] = members
	}
	members[clientID] = c
	return true
}

// Leave removes roomID from the client's membership. Returns true if removed.
func (r *Registry) Leave(clientID, roomID string) bool {
	c, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if _, joined := c.rooms[roomID]; !joined {
		return false
	}
	delete(c.rooms, roomID)
	r.dropMember(roomID, clientID)
	return true
}

// Unregister forgets the client and every membership it held.
func (r *Registry) Unregister(clientID string) (*Client, bool) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	for roomID := range c.rooms {
		r.dropMember(roomID, clientID)
	}
	clear(c.rooms)
	delete(r.clients, clientID)
	return c, true
}

// Members returns the clients currently joined to roomID.
func (r *Registry) Members(roomID string) []*Client {
	members := r.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Rooms returns the room ids a client has joined.
func (r *Registry) Rooms(clientID string) []string {
	c, ok := r.clients[clientID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		out = append(out, roomID)
	}
	return out
}

// Len is the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

func (r *Registry) clientsSnapshot() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) dropMember(roomID, clientID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}
