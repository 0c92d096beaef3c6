package state

import (
	"testing"

	"github.com/fablegate/fable/pkg/story"
)

func TestNewSession(t *testing.T) {
	s := NewSession("mystery", "Mystery - test")

	if s.ID == "" {
		t.Error("Expected session id to be set")
	}
	if s.GameMode != "mystery" {
		t.Errorf("Expected game mode 'mystery', got %q", s.GameMode)
	}
	if s.CreatedAt == 0 || s.UpdatedAt == 0 {
		t.Error("Expected timestamps to be set")
	}
	if s.Variables == nil || s.Inventory == nil || s.History == nil || s.StoryHistory == nil {
		t.Error("Expected empty collections, not nil")
	}
}

func TestSession_TouchIsMonotonic(t *testing.T) {
	s := NewSession("adventure", "test")

	prev := s.UpdatedAt
	for i := 0; i < 50; i++ {
		s.Touch()
		if s.UpdatedAt <= prev {
			t.Fatalf("UpdatedAt did not advance: %d -> %d", prev, s.UpdatedAt)
		}
		prev = s.UpdatedAt
	}
}

func TestSession_ApplyEffects(t *testing.T) {
	s := NewSession("adventure", "test")
	s.Inventory = []string{"torch", "rope", "torch"}

	s.ApplyEffects(story.Effects{
		"add_item":     "key",
		"remove_item":  "torch",
		"set_variable": map[string]interface{}{"trust": 3},
		"var_courage":  "high",
		"mood":         "tense",
		"location":     "crypt",
		"unknown_key":  "ignored",
	})

	if got := s.Inventory; len(got) != 3 || got[0] != "rope" || got[1] != "torch" || got[2] != "key" {
		t.Errorf("Unexpected inventory after effects: %v", got)
	}
	if s.Variables["trust"] != 3 {
		t.Errorf("Expected trust=3, got %v", s.Variables["trust"])
	}
	if s.Variables["courage"] != "high" {
		t.Errorf("Expected courage=high, got %v", s.Variables["courage"])
	}
	if s.Variables["mood"] != "tense" || s.Variables["location"] != "crypt" {
		t.Errorf("Expected mood/location variables, got %v", s.Variables)
	}
	if _, ok := s.Variables["unknown_key"]; ok {
		t.Error("Unrecognized effect key must not leak into variables")
	}
}

func TestSession_ApplyEffectsItemArrays(t *testing.T) {
	s := NewSession("adventure", "test")

	// Arrays arrive as []interface{} after JSON decoding
	s.ApplyEffects(story.Effects{"add_item": []interface{}{"map", "compass"}})
	if len(s.Inventory) != 2 {
		t.Fatalf("Expected 2 items, got %v", s.Inventory)
	}

	s.ApplyEffects(story.Effects{"remove_item": []interface{}{"map", "ghost"}})
	if len(s.Inventory) != 1 || s.Inventory[0] != "compass" {
		t.Errorf("Expected [compass], got %v", s.Inventory)
	}
}

func TestSession_Clear(t *testing.T) {
	s := NewSession("horror", "test")
	s.CurrentNode = "node_5"
	s.CurrentPage = 4
	s.Inventory = []string{"candle"}
	s.History = []string{"start"}
	s.StoryHistory = []string{"Start: run"}
	s.Variables["mood"] = "dread"
	s.TotalPages = 5

	s.Clear()

	if s.CurrentNode != "" || s.CurrentPage != 0 || s.TotalPages != 0 {
		t.Errorf("Expected cleared pointer, got node=%q page=%d pages=%d", s.CurrentNode, s.CurrentPage, s.TotalPages)
	}
	if len(s.Inventory) != 0 || len(s.History) != 0 || len(s.StoryHistory) != 0 || len(s.Variables) != 0 {
		t.Error("Expected cleared collections")
	}
	if s.ID == "" || s.GameMode != "horror" {
		t.Error("Clear must keep id and game mode")
	}
}

func TestCollection_ActivePointer(t *testing.T) {
	c := NewCollection()
	a := NewSession("adventure", "a")
	b := NewSession("mystery", "b")
	c.Put(a)
	c.Put(b)
	c.ActiveID = a.ID

	if c.Active() != a {
		t.Fatal("Expected session a active")
	}

	// Deleting the active session clears the pointer
	if !c.Delete(a.ID) {
		t.Fatal("Expected delete to succeed")
	}
	if c.ActiveID != "" || c.Active() != nil {
		t.Error("Expected active pointer cleared after deleting active session")
	}

	// Deleting a non-active session leaves the pointer alone
	c.ActiveID = b.ID
	if c.Delete("missing") {
		t.Error("Expected delete of unknown id to report false")
	}
	if c.ActiveID != b.ID {
		t.Error("Active pointer must survive unrelated deletes")
	}
}

func TestCollection_Sorted(t *testing.T) {
	c := NewCollection()
	a := NewSession("adventure", "a")
	a.UpdatedAt = 100
	b := NewSession("mystery", "b")
	b.UpdatedAt = 300
	d := NewSession("horror", "d")
	d.UpdatedAt = 200
	c.Put(a)
	c.Put(b)
	c.Put(d)

	sorted := c.Sorted()
	if len(sorted) != 3 || sorted[0] != b || sorted[1] != d || sorted[2] != a {
		t.Errorf("Expected [b d a] by UpdatedAt desc, got %v", sorted)
	}
	if c.MostRecent() != b {
		t.Error("Expected b as most recent")
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := NewSession("adventure", "Original")
	s.Variables["mood"] = "calm"
	s.Inventory = []string{"lantern"}
	s.History = []string{"start"}
	s.StoryHistory = []string{"Opening: go left"}
	s.Nodes = []story.NodePair{
		{ID: "start", Node: &story.StoryNode{
			ID: "start", Title: "Opening",
			Choices: []story.Choice{{ID: "choice1", Text: "Go left"}},
			Effects: story.Effects{"add_item": "lantern"},
		}},
	}

	c := s.Clone()

	s.Variables["mood"] = "panicked"
	s.Inventory[0] = "rope"
	s.History = append(s.History, "node_2")
	s.Nodes[0].Node.Title = "Rewritten"
	s.Nodes[0].Node.Choices[0].Text = "Go right"
	s.Nodes[0].Node.Effects["add_item"] = "key"

	if c.Variables["mood"] != "calm" {
		t.Errorf("Clone variables aliased: mood = %v", c.Variables["mood"])
	}
	if c.Inventory[0] != "lantern" {
		t.Errorf("Clone inventory aliased: %v", c.Inventory)
	}
	if len(c.History) != 1 {
		t.Errorf("Clone history aliased: %v", c.History)
	}
	if c.Nodes[0].Node.Title != "Opening" {
		t.Errorf("Clone node aliased: title = %q", c.Nodes[0].Node.Title)
	}
	if c.Nodes[0].Node.Choices[0].Text != "Go left" {
		t.Errorf("Clone choices aliased: %q", c.Nodes[0].Node.Choices[0].Text)
	}
	if c.Nodes[0].Node.Effects["add_item"] != "lantern" {
		t.Errorf("Clone effects aliased: %v", c.Nodes[0].Node.Effects)
	}
}
