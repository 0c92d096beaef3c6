//go:build integration
// +build integration

// Full-stack playthrough over real HTTP: file-backed storage, the
// engine, and the handler stack wired the same way cmd/api wires them,
// with only the generation backend scripted.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/fablegate/fable/internal/engine"
	"github.com/fablegate/fable/internal/handlers"
	"github.com/fablegate/fable/internal/middleware"
	"github.com/fablegate/fable/internal/services"
	"github.com/fablegate/fable/internal/storage"
	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/state"
	"github.com/fablegate/fable/pkg/story"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedGenerator returns queued drafts in order.
func scriptedGenerator(t *testing.T, drafts ...*story.NodeDraft) *services.MockGenerator {
	t.Helper()
	gen := services.NewMockGenerator()
	var mu sync.Mutex
	i := 0
	gen.GenerateFunc = func(ctx context.Context, prompt prompts.Prompt, opts services.GenerateOptions) (*story.NodeDraft, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(drafts) {
			t.Fatalf("Generator called %d times, only %d drafts queued", i+1, len(drafts))
		}
		d := drafts[i]
		i++
		return d, nil
	}
	return gen
}

func newTestServer(t *testing.T, dataDir string, gen services.Generator) *httptest.Server {
	t.Helper()
	log := quietLogger()

	local, err := storage.NewFileStore(dataDir, log)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	gateway := storage.NewGateway(local, nil, log)

	e := engine.New(engine.Config{
		Prompts: prompts.Config{ChoiceCount: 2, Language: "English"},
	}, gen, gateway, log)
	if err := e.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(local, log))
	sessionHandler := handlers.NewSessionHandler(e, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	srv := httptest.NewServer(middleware.Logger(mux))
	t.Cleanup(srv.Close)
	return srv
}

func postTurn(t *testing.T, url string, body interface{}, wantStatus int) *handlers.TurnResponse {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var turn handlers.TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("Failed to decode turn: %v", err)
	}
	return &turn
}

func TestFullPlaythrough(t *testing.T) {
	dataDir := t.TempDir()

	gen := scriptedGenerator(t,
		&story.NodeDraft{
			Title: "The Crossroads", Content: "Two roads diverge.",
			Choices: []story.Choice{{ID: "choice1", Text: "Go left"}, {ID: "choice2", Text: "Go right"}},
		},
		&story.NodeDraft{
			Title: "The Left Road", Content: "The trees close in.",
			Choices: []story.Choice{{ID: "choice1", Text: "Press on"}},
			Effects: story.Effects{"add_item": "lantern"},
		},
	)
	srv := newTestServer(t, dataDir, gen)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health status = %d", resp.StatusCode)
	}

	start := postTurn(t, srv.URL+"/v1/sessions",
		map[string]string{"gameMode": "adventure", "name": "Integration Run"},
		http.StatusCreated)
	if start.Node == nil || start.Node.Title != "The Crossroads" {
		t.Fatalf("Unexpected opening node: %+v", start.Node)
	}
	sessionID := start.Session.ID

	turn := postTurn(t, srv.URL+"/v1/sessions/choice",
		map[string]string{"choiceId": "choice1"},
		http.StatusOK)
	if turn.Node.Title != "The Left Road" {
		t.Errorf("Unexpected turn node: %q", turn.Node.Title)
	}
	if turn.Session.TotalPages != 2 || turn.Session.CurrentPage != 1 {
		t.Errorf("Pointer = page %d of %d, want 2 of 2", turn.Session.CurrentPage+1, turn.Session.TotalPages)
	}
	if len(turn.Session.Inventory) != 1 || turn.Session.Inventory[0] != "lantern" {
		t.Errorf("Inventory = %v, want [lantern]", turn.Session.Inventory)
	}

	back := postTurn(t, srv.URL+"/v1/sessions/navigate",
		map[string]interface{}{"direction": "prev"},
		http.StatusOK)
	if back.Node.Title != "The Crossroads" {
		t.Errorf("Expected first page after prev, got %q", back.Node.Title)
	}
	if back.Node.SelectedChoice != "Go left" {
		t.Errorf("SelectedChoice = %q, want %q", back.Node.SelectedChoice, "Go left")
	}

	// Export, import as a new session, and delete the original.
	expResp, err := http.Get(srv.URL + "/v1/sessions/export")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	var doc json.RawMessage
	if err := json.NewDecoder(expResp.Body).Decode(&doc); err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	expResp.Body.Close()

	impResp, err := http.Post(srv.URL+"/v1/sessions/import", "application/json", bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("POST import failed: %v", err)
	}
	var imported state.Session
	if err := json.NewDecoder(impResp.Body).Decode(&imported); err != nil {
		t.Fatalf("Failed to decode import: %v", err)
	}
	impResp.Body.Close()
	if imported.ID == sessionID {
		t.Error("Imported session should get a fresh id")
	}
	if imported.TotalPages != 2 {
		t.Errorf("Imported pages = %d, want 2", imported.TotalPages)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/sessions/%s", srv.URL, sessionID), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", delResp.StatusCode)
	}
}

func TestRestartResumesFromDisk(t *testing.T) {
	dataDir := t.TempDir()

	gen := scriptedGenerator(t,
		&story.NodeDraft{
			Title: "Opening", Content: "It begins.",
			Choices: []story.Choice{{ID: "choice1", Text: "Continue"}},
		},
	)
	srv := newTestServer(t, dataDir, gen)

	start := postTurn(t, srv.URL+"/v1/sessions",
		map[string]string{"gameMode": "mystery"},
		http.StatusCreated)
	srv.Close()

	// A second stack over the same data dir resumes the session.
	srv2 := newTestServer(t, dataDir, services.NewMockGenerator())
	resp, err := http.Get(srv2.URL + "/v1/sessions/active")
	if err != nil {
		t.Fatalf("GET active failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Active status = %d, want 200", resp.StatusCode)
	}
	var active state.Session
	if err := json.NewDecoder(resp.Body).Decode(&active); err != nil {
		t.Fatalf("Failed to decode active session: %v", err)
	}
	if active.ID != start.Session.ID {
		t.Errorf("Resumed session %q, want %q", active.ID, start.Session.ID)
	}
	if active.TotalPages != 1 {
		t.Errorf("Resumed pages = %d, want 1", active.TotalPages)
	}
}
