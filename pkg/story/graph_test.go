package story

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testNode(id string) *StoryNode {
	return &StoryNode{
		ID:      id,
		Title:   "Title " + id,
		Content: "Content " + id,
		Choices: []Choice{
			{ID: "c1", Text: "go left"},
			{ID: "c2", Text: "go right"},
		},
	}
}

func TestGraph_InsertAndGet(t *testing.T) {
	g := NewGraph()

	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	node, err := g.Get("start")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if node.Title != "Title start" {
		t.Errorf("Expected title 'Title start', got %q", node.Title)
	}

	if g.PageCount() != 1 {
		t.Errorf("Expected page count 1, got %d", g.PageCount())
	}
}

func TestGraph_InsertDuplicate(t *testing.T) {
	g := NewGraph()

	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := g.Insert(testNode("start"))
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("Expected ErrDuplicateNode, got %v", err)
	}

	// Page order must not grow on a failed insert
	if g.PageCount() != 1 {
		t.Errorf("Expected page count 1 after duplicate insert, got %d", g.PageCount())
	}
}

func TestGraph_GetMissing(t *testing.T) {
	g := NewGraph()
	_, err := g.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGraph_MarkSelectedChoice(t *testing.T) {
	g := NewGraph()
	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := g.MarkSelectedChoice("start", "go left"); err != nil {
		t.Fatalf("MarkSelectedChoice failed: %v", err)
	}

	// Same text is idempotent
	if err := g.MarkSelectedChoice("start", "go left"); err != nil {
		t.Errorf("Expected idempotent re-mark, got %v", err)
	}

	// Different text fails and leaves the node unchanged
	err := g.MarkSelectedChoice("start", "go right")
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Expected ErrAlreadyFinalized, got %v", err)
	}
	node, _ := g.Get("start")
	if node.SelectedChoice != "go left" {
		t.Errorf("Expected selected choice 'go left', got %q", node.SelectedChoice)
	}
}

func TestGraph_MarkSelectedChoiceMissingNode(t *testing.T) {
	g := NewGraph()
	err := g.MarkSelectedChoice("missing", "anything")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGraph_NextNodeID(t *testing.T) {
	g := NewGraph()

	if id := g.NextNodeID(); id != StartNodeID {
		t.Errorf("Expected first id %q, got %q", StartNodeID, id)
	}
	if err := g.Insert(testNode(StartNodeID)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.NextNodeID()
		if !strings.HasPrefix(id, "node_") {
			t.Fatalf("Expected node_ prefix, got %q", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate node id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestGraph_PageOrderIsCopy(t *testing.T) {
	g := NewGraph()
	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	order := g.PageOrder()
	order[0] = "mutated"

	if g.PageOrder()[0] != "start" {
		t.Error("PageOrder must return a copy")
	}
}

func TestGraph_Reset(t *testing.T) {
	g := NewGraph()
	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	g.Reset()

	if g.PageCount() != 0 {
		t.Errorf("Expected empty graph after reset, got %d pages", g.PageCount())
	}
	if id := g.NextNodeID(); id != StartNodeID {
		t.Errorf("Expected id sequence to restart at %q, got %q", StartNodeID, id)
	}
}

func TestGraph_PairsRoundTrip(t *testing.T) {
	g := NewGraph()
	if err := g.Insert(testNode("start")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := g.Insert(testNode("node_1_1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	data, err := json.Marshal(g.Pairs())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var pairs []NodePair
	if err := json.Unmarshal(data, &pairs); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	loaded := NewGraph()
	loaded.Load(pairs)

	if loaded.PageCount() != 2 {
		t.Fatalf("Expected 2 pages after load, got %d", loaded.PageCount())
	}
	order := loaded.PageOrder()
	if order[0] != "start" || order[1] != "node_1_1" {
		t.Errorf("Page order not preserved: %v", order)
	}
	node, err := loaded.Get("node_1_1")
	if err != nil {
		t.Fatalf("Get after load failed: %v", err)
	}
	if len(node.Choices) != 2 || node.Choices[0].Text != "go left" {
		t.Errorf("Node content not preserved: %+v", node)
	}
}

func TestNodePair_UnmarshalRejectsBadShapes(t *testing.T) {
	var p NodePair
	if err := json.Unmarshal([]byte(`{"id":"x"}`), &p); err == nil {
		t.Error("Expected error for object-shaped pair")
	}
	if err := json.Unmarshal([]byte(`["only-one"]`), &p); err == nil {
		t.Error("Expected error for one-element pair")
	}
}
