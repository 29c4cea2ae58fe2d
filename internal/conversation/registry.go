package conversation

import "sync"

// Registry routes channel messages to the conversation that owns the
// channel. A conversation is inserted when it starts and removed exactly
// once during teardown.
type Registry struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

func NewRegistry() *Registry {
	return &Registry{convs: make(map[string]*Conversation)}
}

// Insert reports false when the channel already has a conversation.
func (r *Registry) Insert(channelID string, c *Conversation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[channelID]; ok {
		return false
	}
	r.convs[channelID] = c
	return true
}

func (r *Registry) Lookup(channelID string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[channelID]
	return c, ok
}

// Remove deletes the entry only while it still points at c.
func (r *Registry) Remove(channelID string, c *Conversation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.convs[channelID]; !ok || cur != c {
		return false
	}
	delete(r.convs, channelID)
	return true
}

// Clear empties the registry and returns what it held.
func (r *Registry) Clear() []*Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conversation, 0, len(r.convs))
	for id, c := range r.convs {
		out = append(out, c)
		delete(r.convs, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}
