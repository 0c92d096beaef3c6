package state

import (
	"errors"
	"reflect"
	"testing"

	"github.com/fablegate/fable/pkg/story"
)

func sampleSession() *Session {
	s := NewSession("fantasy", "Fantasy - test")
	s.CurrentNode = "node_2"
	s.CurrentPage = 1
	s.Variables = map[string]interface{}{"mood": "magical", "trust": float64(2)}
	s.Inventory = []string{"wand", "cloak"}
	s.History = []string{"start"}
	s.StoryHistory = []string{"The Tower: climb the stairs"}
	s.Nodes = []story.NodePair{
		{ID: "start", Node: &story.StoryNode{
			ID: "start", Title: "The Tower", Content: "A tower looms.",
			Choices:        []story.Choice{{ID: "c1", Text: "climb the stairs"}},
			SelectedChoice: "climb the stairs",
		}},
		{ID: "node_2", Node: &story.StoryNode{
			ID: "node_2", Title: "The Landing", Content: "A door waits.",
			Choices: []story.Choice{{ID: "c1", Text: "open it"}},
		}},
	}
	s.TotalPages = 2
	return s
}

func TestExportImport_RoundTrip(t *testing.T) {
	original := sampleSession()

	data, err := Export(original)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	imported, err := Import(data)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if imported.ID == original.ID {
		t.Error("Import must assign a new session id")
	}
	if imported.GameMode != original.GameMode {
		t.Errorf("Expected game mode %q, got %q", original.GameMode, imported.GameMode)
	}
	if !reflect.DeepEqual(imported.Variables, original.Variables) {
		t.Errorf("Variables not preserved: %v vs %v", imported.Variables, original.Variables)
	}
	if !reflect.DeepEqual(imported.Inventory, original.Inventory) {
		t.Errorf("Inventory not preserved: %v vs %v", imported.Inventory, original.Inventory)
	}
	if !reflect.DeepEqual(imported.History, original.History) {
		t.Errorf("History not preserved: %v vs %v", imported.History, original.History)
	}
	if len(imported.Nodes) != len(original.Nodes) {
		t.Fatalf("Expected %d nodes, got %d", len(original.Nodes), len(imported.Nodes))
	}
	for i := range original.Nodes {
		if !reflect.DeepEqual(imported.Nodes[i].Node, original.Nodes[i].Node) {
			t.Errorf("Node %d not preserved", i)
		}
	}
	if imported.CurrentNode != "node_2" || imported.CurrentPage != 1 {
		t.Errorf("Pointer not preserved: node=%q page=%d", imported.CurrentNode, imported.CurrentPage)
	}
}

func TestImport_RejectsMissingNodes(t *testing.T) {
	_, err := Import([]byte(`{"name":"x","currentNode":"start"}`))
	if !errors.Is(err, ErrInvalidImport) {
		t.Errorf("Expected ErrInvalidImport, got %v", err)
	}
}

func TestImport_RejectsMissingCurrentNode(t *testing.T) {
	_, err := Import([]byte(`{"name":"x","nodes":[["start",{"id":"start","title":"T","content":"C","choices":[]}]]}`))
	if !errors.Is(err, ErrInvalidImport) {
		t.Errorf("Expected ErrInvalidImport, got %v", err)
	}
}

func TestImport_RejectsMalformedJSON(t *testing.T) {
	_, err := Import([]byte(`{not json`))
	if !errors.Is(err, ErrInvalidImport) {
		t.Errorf("Expected ErrInvalidImport, got %v", err)
	}
}

func TestImport_ClampsDanglingPointer(t *testing.T) {
	doc := []byte(`{
		"name": "x",
		"gameMode": "adventure",
		"currentNode": "missing",
		"currentPage": 99,
		"nodes": [["start", {"id":"start","title":"T","content":"C","choices":[{"id":"c1","text":"go"}]}]]
	}`)

	imported, err := Import(doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.CurrentPage != 0 || imported.CurrentNode != "start" {
		t.Errorf("Expected pointer clamped to first page, got node=%q page=%d", imported.CurrentNode, imported.CurrentPage)
	}
}

func TestImport_DefaultsOptionalFields(t *testing.T) {
	doc := []byte(`{
		"currentNode": "start",
		"nodes": [["start", {"id":"start","title":"T","content":"C","choices":[{"id":"c1","text":"go"}]}]]
	}`)

	imported, err := Import(doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.Name == "" {
		t.Error("Expected a default name")
	}
	if imported.GameMode != "adventure" {
		t.Errorf("Expected default game mode adventure, got %q", imported.GameMode)
	}
	if imported.Variables == nil || imported.Inventory == nil {
		t.Error("Expected empty collections, not nil")
	}
}
