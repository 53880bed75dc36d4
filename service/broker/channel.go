package broker

import (
	"sync"

	"PGateway/service/gate"
)

// State is the authentication state of a channel. It only moves forward.
type State uint8

const (
	StateAnonymous State = iota
	StateChallengeIssued
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "ANONYMOUS"
	case StateChallengeIssued:
		return "CHALLENGE_ISSUED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// Channel is everything the broker knows about one live socket. The record
// is created on open and dropped from the registry as a whole on close.
type Channel struct {
	id       string
	clientIP string

	mu     sync.Mutex
	state  State
	secret string
	user   string
	pipe   gate.Pipe
}

func newChannel(id, clientIP string) *Channel {
	return &Channel{id: id, clientIP: clientIP, state: StateAnonymous}
}

// ChannelInfo is a point in time copy of a Channel.
type ChannelInfo struct {
	ID       string
	ClientIP string
	State    State
	Secret   string
	User     string
	HasPipe  bool
}

func (c *Channel) info() ChannelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelInfo{
		ID:       c.id,
		ClientIP: c.clientIP,
		State:    c.state,
		Secret:   c.secret,
		User:     c.user,
		HasPipe:  c.pipe != nil,
	}
}

func (c *Channel) issue(secret string) {
	c.mu.Lock()
	c.secret = secret
	c.state = StateChallengeIssued
	c.mu.Unlock()
}

// bind moves a challenged channel to AUTHENTICATED. It reports false if
// the channel is not waiting for authentication.
func (c *Channel) bind(user string, pipe gate.Pipe) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateChallengeIssued {
		return false
	}
	c.user = user
	c.pipe = pipe
	c.state = StateAuthenticated
	return true
}

// wipe clears the record and returns the user that was bound, if any.
func (c *Channel) wipe() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.user
	c.secret, c.user, c.pipe = "", "", nil
	return user
}

func (c *Channel) snapshot() (State, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.secret, c.user
}

func (c *Channel) livePipe() gate.Pipe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe
}

// registry maps channel ids to their records.
type registry struct {
	mu    sync.RWMutex
	items map[string]*Channel
}

func newRegistry() *registry {
	return &registry{items: make(map[string]*Channel)}
}

func (r *registry) add(c *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.id]; ok {
		return false
	}
	r.items[c.id] = c
	return true
}

func (r *registry) get(id string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	return c, ok
}

// holds reports whether c is still the registered record for its id.
func (r *registry) holds(c *Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[c.id] == c
}

func (r *registry) remove(id string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return c, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
