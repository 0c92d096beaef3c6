package story

import (
	"errors"
	"fmt"
)

// Choice is one option a player can take from a node.
type Choice struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Consequence string `json:"consequence,omitempty"` // hint at where this choice leads
}

// Effects are side-effect directives emitted by generation alongside a node.
// Recognized keys: add_item, remove_item, set_variable, mood, location, and
// the var_<name> prefix. The values are opaque here; the session engine
// interprets them.
type Effects map[string]interface{}

// StoryNode is one beat of the narrative.
type StoryNode struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Choices        []Choice `json:"choices"`
	Effects        Effects  `json:"effects,omitempty"`
	CreatedAt      int64    `json:"timestamp"` // unix milliseconds
	SelectedChoice string   `json:"selectedChoice,omitempty"`
}

// NodeDraft is a candidate node produced by generation, before it is
// assigned an id and inserted into a graph.
type NodeDraft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Choices []Choice `json:"choices"`
	Effects Effects  `json:"effects,omitempty"`
}

// Clone returns a copy whose choices and effects do not alias the
// original.
func (n *StoryNode) Clone() *StoryNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Choices = append([]Choice(nil), n.Choices...)
	if n.Effects != nil {
		c.Effects = make(Effects, len(n.Effects))
		for k, v := range n.Effects {
			c.Effects[k] = v
		}
	}
	return &c
}

// FindChoice returns the choice with the given id, or nil.
func (n *StoryNode) FindChoice(choiceID string) *Choice {
	for i := range n.Choices {
		if n.Choices[i].ID == choiceID {
			return &n.Choices[i]
		}
	}
	return nil
}

var (
	// ErrNotFound is returned when a node id is not present in the graph.
	ErrNotFound = errors.New("story: node not found")

	// ErrDuplicateNode is returned when inserting a node whose id is
	// already present. Node ids are caller-generated; a duplicate means a
	// broken id scheme, not a recoverable condition.
	ErrDuplicateNode = errors.New("story: duplicate node id")

	// ErrAlreadyFinalized is returned when marking a selected choice on a
	// node whose selection was already recorded with different text.
	ErrAlreadyFinalized = errors.New("story: selected choice already finalized")
)

// NodeError wraps a graph error with the node id it concerns.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.NodeID)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
