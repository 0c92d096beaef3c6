package state

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fablegate/fable/pkg/story"
)

// Session is one playthrough: its graph snapshot, history, variables,
// inventory, and page pointer. The JSON form doubles as the storage
// payload for both backends.
type Session struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	GameMode     string                 `json:"gameMode"`
	CreatedAt    int64                  `json:"createdAt"` // unix milliseconds
	UpdatedAt    int64                  `json:"updatedAt"` // reconciliation key, strictly increasing
	CurrentNode  string                 `json:"currentNode"`
	CurrentPage  int                    `json:"currentPage"`
	Variables    map[string]interface{} `json:"variables"`
	Inventory    []string               `json:"inventory"`
	History      []string               `json:"history"`
	StoryHistory []string               `json:"storyHistory"`
	Nodes        []story.NodePair       `json:"nodes"`
	TotalPages   int                    `json:"totalPages"`
}

// NewSession creates an empty session for the given game mode.
func NewSession(gameMode, name string) *Session {
	now := time.Now().UnixMilli()
	return &Session{
		ID:           "game_" + uuid.NewString(),
		Name:         name,
		GameMode:     gameMode,
		CreatedAt:    now,
		UpdatedAt:    now,
		Variables:    make(map[string]interface{}),
		Inventory:    make([]string, 0),
		History:      make([]string, 0),
		StoryHistory: make([]string, 0),
		Nodes:        make([]story.NodePair, 0),
	}
}

// Touch advances UpdatedAt. The value is clamped to previous+1ms when the
// wall clock has not moved, so last-writer-wins stays stable across fast
// successive writes.
func (s *Session) Touch() {
	now := time.Now().UnixMilli()
	if now <= s.UpdatedAt {
		now = s.UpdatedAt + 1
	}
	s.UpdatedAt = now
}

// Clone returns a deep copy safe to serialize from another goroutine
// while the original keeps mutating. Variable values are copied by
// reference; they are never mutated after being applied.
func (s *Session) Clone() *Session {
	c := *s
	c.Variables = make(map[string]interface{}, len(s.Variables))
	for k, v := range s.Variables {
		c.Variables[k] = v
	}
	c.Inventory = append([]string(nil), s.Inventory...)
	c.History = append([]string(nil), s.History...)
	c.StoryHistory = append([]string(nil), s.StoryHistory...)
	c.Nodes = make([]story.NodePair, len(s.Nodes))
	for i, p := range s.Nodes {
		c.Nodes[i] = story.NodePair{ID: p.ID, Node: p.Node.Clone()}
	}
	return &c
}

// Clear empties the session back to its just-created state, keeping the
// id, name, and game mode.
func (s *Session) Clear() {
	s.CurrentNode = ""
	s.CurrentPage = 0
	s.Variables = make(map[string]interface{})
	s.Inventory = make([]string, 0)
	s.History = make([]string, 0)
	s.StoryHistory = make([]string, 0)
	s.Nodes = make([]story.NodePair, 0)
	s.TotalPages = 0
}

// ApplyEffects interprets generation side-effect directives against the
// session's variables and inventory. Unrecognized keys that do not carry
// the var_ prefix are ignored.
func (s *Session) ApplyEffects(effects story.Effects) {
	if s.Variables == nil {
		s.Variables = make(map[string]interface{})
	}
	for key, value := range effects {
		switch {
		case key == "set_variable":
			if vars, ok := value.(map[string]interface{}); ok {
				for k, v := range vars {
					s.Variables[k] = v
				}
			}
		case strings.HasPrefix(key, "var_"):
			s.Variables[strings.TrimPrefix(key, "var_")] = value
		case key == "add_item":
			s.Inventory = append(s.Inventory, effectItems(value)...)
		case key == "remove_item":
			for _, item := range effectItems(value) {
				s.removeItem(item)
			}
		case key == "mood":
			if mood, ok := value.(string); ok && mood != "" {
				s.Variables["mood"] = mood
			}
		case key == "location":
			if loc, ok := value.(string); ok && loc != "" {
				s.Variables["location"] = loc
			}
		}
	}
}

// effectItems normalizes an effect value to item strings. Generation may
// emit either a single string or an array.
func effectItems(value interface{}) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				items = append(items, s)
			}
		}
		return items
	default:
		return nil
	}
}

// removeItem removes the first occurrence of item from the inventory.
// Duplicates are allowed, so only one copy goes.
func (s *Session) removeItem(item string) {
	for i, existing := range s.Inventory {
		if existing == item {
			s.Inventory = append(s.Inventory[:i], s.Inventory[i+1:]...)
			return
		}
	}
}

// Collection holds every session owned by one player plus the active
// pointer. At most one session is active at a time.
type Collection struct {
	ActiveID string              `json:"activeId,omitempty"`
	Records  map[string]*Session `json:"records"`
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{Records: make(map[string]*Session)}
}

// Active returns the active session, or nil when no session is active.
func (c *Collection) Active() *Session {
	if c.ActiveID == "" {
		return nil
	}
	return c.Records[c.ActiveID]
}

// Put adds or replaces a session record.
func (c *Collection) Put(s *Session) {
	c.Records[s.ID] = s
}

// Get returns the session with the given id, or nil.
func (c *Collection) Get(id string) *Session {
	return c.Records[id]
}

// Delete removes a session. Deleting the active session clears the
// active pointer. It reports whether the session existed.
func (c *Collection) Delete(id string) bool {
	if _, ok := c.Records[id]; !ok {
		return false
	}
	delete(c.Records, id)
	if c.ActiveID == id {
		c.ActiveID = ""
	}
	return true
}

// Sorted returns all sessions ordered by UpdatedAt descending, the order
// a session picker presents them in.
func (c *Collection) Sorted() []*Session {
	sessions := make([]*Session, 0, len(c.Records))
	for _, s := range c.Records {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	return sessions
}

// MostRecent returns the most recently updated session, or nil for an
// empty collection.
func (c *Collection) MostRecent() *Session {
	var best *Session
	for _, s := range c.Records {
		if best == nil || s.UpdatedAt > best.UpdatedAt {
			best = s
		}
	}
	return best
}
