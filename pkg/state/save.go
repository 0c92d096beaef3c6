package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fablegate/fable/pkg/story"
)

// ErrInvalidImport is returned when an import document fails validation.
// No partial import ever happens.
var ErrInvalidImport = errors.New("state: invalid save document")

// SaveDocument is the transport-neutral export/import form of one session,
// including its entire node table.
type SaveDocument struct {
	Name         string                 `json:"name"`
	Timestamp    int64                  `json:"timestamp"`
	CurrentNode  string                 `json:"currentNode"`
	CurrentPage  int                    `json:"currentPage"`
	Variables    map[string]interface{} `json:"variables"`
	Inventory    []string               `json:"inventory"`
	History      []string               `json:"history"`
	StoryHistory []string               `json:"storyHistory"`
	GameMode     string                 `json:"gameMode"`
	Nodes        []story.NodePair       `json:"nodes"`
}

// Export serializes the session to an indented save document.
func Export(s *Session) ([]byte, error) {
	doc := SaveDocument{
		Name:         s.Name,
		Timestamp:    time.Now().UnixMilli(),
		CurrentNode:  s.CurrentNode,
		CurrentPage:  s.CurrentPage,
		Variables:    s.Variables,
		Inventory:    s.Inventory,
		History:      s.History,
		StoryHistory: s.StoryHistory,
		GameMode:     s.GameMode,
		Nodes:        s.Nodes,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save document: %w", err)
	}
	return data, nil
}

// Import parses and validates a save document and builds a fresh session
// from it. The session gets a new id and timestamps; an import never
// overwrites an existing session.
func Import(data []byte) (*Session, error) {
	var doc SaveDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("%w: missing nodes", ErrInvalidImport)
	}
	if doc.CurrentNode == "" {
		return nil, fmt.Errorf("%w: missing currentNode", ErrInvalidImport)
	}

	now := time.Now().UnixMilli()
	name := doc.Name
	if name == "" {
		name = "Imported Game " + time.Now().Format("2006-01-02 15:04")
	}
	gameMode := doc.GameMode
	if gameMode == "" {
		gameMode = "adventure"
	}
	createdAt := doc.Timestamp
	if createdAt == 0 {
		createdAt = now
	}

	s := &Session{
		ID:           "imported_" + uuid.NewString(),
		Name:         name,
		GameMode:     gameMode,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
		CurrentNode:  doc.CurrentNode,
		CurrentPage:  doc.CurrentPage,
		Variables:    doc.Variables,
		Inventory:    doc.Inventory,
		History:      doc.History,
		StoryHistory: doc.StoryHistory,
		Nodes:        doc.Nodes,
		TotalPages:   len(doc.Nodes),
	}
	if s.Variables == nil {
		s.Variables = make(map[string]interface{})
	}
	if s.Inventory == nil {
		s.Inventory = make([]string, 0)
	}
	if s.History == nil {
		s.History = make([]string, 0)
	}
	if s.StoryHistory == nil {
		s.StoryHistory = make([]string, 0)
	}
	if s.CurrentPage < 0 || s.CurrentPage >= s.TotalPages {
		s.CurrentPage = 0
		s.CurrentNode = s.Nodes[0].ID
	}
	return s, nil
}
