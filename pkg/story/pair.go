package story

import (
	"encoding/json"
	"fmt"
)

// NodePair is one [id, node] entry of a session's persisted node table.
// The wire form is a two-element JSON array, matching the save document
// shape: "nodes": [["start", {...}], ...].
type NodePair struct {
	ID   string
	Node *StoryNode
}

func (p NodePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.ID, p.Node})
}

func (p *NodePair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("node pair must be a JSON array: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("node pair must have exactly 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return fmt.Errorf("invalid node pair id: %w", err)
	}
	p.Node = &StoryNode{}
	if err := json.Unmarshal(raw[1], p.Node); err != nil {
		return fmt.Errorf("invalid node pair node: %w", err)
	}
	return nil
}
