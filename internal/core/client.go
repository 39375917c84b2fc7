package core

import "github.com/Ladkan/MeChat/internal/auth"

const defaultClientBuffer = 64

// Client is a live connection as seen by the core layer. Its identity is fixed
// at handshake and never refreshed.
type Client struct {
	ID       string
	Identity auth.Identity
	Commands chan *Command
	Events   chan *Event

	// rooms is owned by the hub goroutine through Registry.
	rooms map[string]struct{}
	quit  chan struct{}
}

// NewClient constructs a client with initialized channels. A non-positive buffer
// selects the default outbound queue length.
func NewClient(id string, identity auth.Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if identity.Name == "" {
		identity.Name = identity.ID
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
}

// Name is the display name shown to other members.
func (c *Client) Name() string {
	return c.Identity.Name
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.quit
}
