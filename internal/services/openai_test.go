package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fablegate/fable/pkg/chat"
	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/story"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const validDraftJSON = `{
	"title": "The Crossroads",
	"content": "You stand before a fork in the road.",
	"choices": [
		{"id": "c1", "text": "go left", "consequence": "the forest"},
		{"text": "go right"}
	],
	"effects": {"mood": "curious", "location": "crossroads"}
}`

func completionBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGenerate_Buffered(t *testing.T) {
	var gotRequest chat.CompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", auth)
		}
		fmt.Fprint(w, completionBody("Here is your story:\n"+validDraftJSON+"\nEnjoy!"))
	}))
	defer server.Close()

	svc := NewOpenAIService(server.URL+"/", "v1/chat/completions", "test-key", "test-model", testLogger())

	draft, err := svc.Generate(context.Background(), prompts.Prompt{Text: "prompt", Temperature: 0.8, MaxTokens: 1000}, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if draft.Title != "The Crossroads" {
		t.Errorf("Unexpected title %q", draft.Title)
	}
	if len(draft.Choices) != 2 {
		t.Fatalf("Expected 2 choices, got %d", len(draft.Choices))
	}
	// Missing choice id gets normalized
	if draft.Choices[1].ID != "choice2" {
		t.Errorf("Expected normalized id choice2, got %q", draft.Choices[1].ID)
	}

	if gotRequest.Model != "test-model" {
		t.Errorf("Unexpected model %q", gotRequest.Model)
	}
	if gotRequest.Temperature != 0.8 || gotRequest.MaxTokens != 1000 {
		t.Errorf("Parameters not forwarded: %v/%d", gotRequest.Temperature, gotRequest.MaxTokens)
	}
	if gotRequest.Stream {
		t.Error("Expected stream=false")
	}
	if len(gotRequest.Messages) != 2 || gotRequest.Messages[0].Role != chat.RoleSystem {
		t.Errorf("Unexpected messages: %+v", gotRequest.Messages)
	}
}

func TestGenerate_Streaming(t *testing.T) {
	pieces := []string{"{\"title\":\"T\",", "\"content\":\"C\",", "\"choices\":[{\"id\":\"c1\",\"text\":\"go\"}]}"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range pieces {
			chunk := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"delta": map[string]string{"content": piece}},
				},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc := NewOpenAIService(server.URL, "", "key", "model", testLogger())

	var tokens []string
	draft, err := svc.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{
		Stream:  true,
		OnToken: func(tok string) { tokens = append(tokens, tok) },
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if draft.Title != "T" || len(draft.Choices) != 1 {
		t.Errorf("Unexpected draft: %+v", draft)
	}
	// Tokens arrive in order, once each
	if len(tokens) != len(pieces) {
		t.Fatalf("Expected %d tokens, got %d", len(pieces), len(tokens))
	}
	for i := range pieces {
		if tokens[i] != pieces[i] {
			t.Errorf("Token %d out of order: %q", i, tokens[i])
		}
	}
}

func TestGenerate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := NewOpenAIService(server.URL, "", "key", "model", testLogger())
	_, err := svc.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})

	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindHTTP {
		t.Errorf("Expected http generation error, got %v", err)
	}
}

func TestGenerate_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	svc := NewOpenAIService(server.URL, "", "key", "model", testLogger())
	_, err := svc.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})

	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindNetwork {
		t.Errorf("Expected network generation error, got %v", err)
	}
}

func TestGenerate_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("I'm sorry, I cannot write that story."))
	}))
	defer server.Close()

	svc := NewOpenAIService(server.URL, "", "key", "model", testLogger())
	_, err := svc.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})

	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindParse {
		t.Errorf("Expected parse generation error, got %v", err)
	}
}

func TestGenerate_SchemaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`{"title": "T", "content": "C", "choices": []}`))
	}))
	defer server.Close()

	svc := NewOpenAIService(server.URL, "", "key", "model", testLogger())
	_, err := svc.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})

	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindSchema {
		t.Errorf("Expected schema generation error, got %v", err)
	}
}

func TestParseDraft_ExtractsFirstObject(t *testing.T) {
	text := "Sure! Here it is:\n" + validDraftJSON + "\nAnd an extra {\"title\":\"nope\"} after."
	draft, err := ParseDraft(text)
	if err != nil {
		t.Fatalf("ParseDraft failed: %v", err)
	}
	if draft.Title != "The Crossroads" {
		t.Errorf("Expected first object, got %q", draft.Title)
	}
}

func TestParseDraft_BracesInsideStrings(t *testing.T) {
	text := `{"title": "A {strange} title", "content": "C", "choices": [{"id":"c1","text":"go"}]}`
	draft, err := ParseDraft(text)
	if err != nil {
		t.Fatalf("ParseDraft failed: %v", err)
	}
	if draft.Title != "A {strange} title" {
		t.Errorf("Unexpected title %q", draft.Title)
	}
}

func TestParseDraft_NoObject(t *testing.T) {
	_, err := ParseDraft("no json here at all")
	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindParse {
		t.Errorf("Expected parse error, got %v", err)
	}
}

func TestParseDraft_UnterminatedObject(t *testing.T) {
	_, err := ParseDraft(`{"title": "T", "content": "truncated`)
	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindParse {
		t.Errorf("Expected parse error, got %v", err)
	}
}

func TestMockGenerator_Defaults(t *testing.T) {
	m := NewMockGenerator()
	draft, err := m.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if draft.Title == "" || len(draft.Choices) == 0 {
		t.Error("Expected a valid default draft")
	}
	if m.CallCount() != 1 {
		t.Errorf("Expected 1 recorded call, got %d", m.CallCount())
	}
}

func TestMockGenerator_CustomError(t *testing.T) {
	m := NewMockGenerator()
	m.GenerateFunc = func(ctx context.Context, prompt prompts.Prompt, opts GenerateOptions) (*story.NodeDraft, error) {
		return nil, &GenerationError{Kind: ErrKindNetwork, Err: errors.New("boom")}
	}
	_, err := m.Generate(context.Background(), prompts.Prompt{Text: "p"}, GenerateOptions{})
	genErr := AsGenerationError(err)
	if genErr == nil || genErr.Kind != ErrKindNetwork {
		t.Errorf("Expected injected network error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected wrapped cause in message, got %q", err.Error())
	}
}
