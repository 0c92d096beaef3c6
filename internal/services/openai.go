package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fablegate/fable/pkg/chat"
	"github.com/fablegate/fable/pkg/prompts"
	"github.com/fablegate/fable/pkg/story"
)

const defaultRequestTimeout = 90 * time.Second

// OpenAIService implements Generator against any OpenAI-compatible
// chat-completion endpoint. The base URL and chat path come from
// configuration, so self-hosted gateways work the same as the hosted
// APIs.
type OpenAIService struct {
	baseURL    string
	chatPath   string
	apiKey     string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Ensure OpenAIService implements Generator
var _ Generator = (*OpenAIService)(nil)

// NewOpenAIService creates a generation client.
func NewOpenAIService(baseURL, chatPath, apiKey, modelName string, logger *slog.Logger) *OpenAIService {
	if chatPath == "" {
		chatPath = "/chat/completions"
	}
	if !strings.HasPrefix(chatPath, "/") {
		chatPath = "/" + chatPath
	}
	return &OpenAIService{
		baseURL:   strings.TrimRight(baseURL, "/"),
		chatPath:  chatPath,
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		logger: logger,
	}
}

// Generate sends one chat-completion request and parses the result into
// a node draft. It never retries.
func (s *OpenAIService) Generate(ctx context.Context, prompt prompts.Prompt, opts GenerateOptions) (*story.NodeDraft, error) {
	request := chat.CompletionRequest{
		Model: s.modelName,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: prompts.SystemPrompt},
			{Role: chat.RoleUser, Content: prompt.Text},
		},
		Temperature: prompt.Temperature,
		MaxTokens:   prompt.MaxTokens,
		Stream:      opts.Stream,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, &GenerationError{Kind: ErrKindNetwork, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+s.chatPath, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &GenerationError{Kind: ErrKindNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &GenerationError{Kind: ErrKindNetwork, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &GenerationError{
			Kind: ErrKindHTTP,
			Err:  fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var text string
	if opts.Stream {
		text, err = s.readStream(resp.Body, opts.OnToken)
	} else {
		text, err = s.readBuffered(resp.Body)
	}
	if err != nil {
		return nil, err
	}

	draft, err := ParseDraft(text)
	if err != nil {
		s.logger.Warn("Failed to parse generation result", "error", err, "response_length", len(text))
		return nil, err
	}
	return draft, nil
}

func (s *OpenAIService) readBuffered(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", &GenerationError{Kind: ErrKindNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var completion chat.CompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", &GenerationError{Kind: ErrKindParse, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if completion.Error != nil {
		return "", &GenerationError{Kind: ErrKindHTTP, Err: fmt.Errorf("API error: %s", completion.Error.Message)}
	}
	content := completion.Content()
	if content == "" {
		return "", &GenerationError{Kind: ErrKindSchema, Err: fmt.Errorf("no content in response")}
	}
	return content, nil
}

// readStream consumes server-sent-event lines, delivering each increment
// to onToken in arrival order and accumulating the full text.
func (s *OpenAIService) readStream(body io.Reader, onToken func(string)) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chat.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed keep-alive frames happen; skip them.
			continue
		}
		if delta := chunk.Delta(); delta != "" {
			full.WriteString(delta)
			if onToken != nil {
				onToken(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &GenerationError{Kind: ErrKindNetwork, Err: fmt.Errorf("stream read failed: %w", err)}
	}
	return full.String(), nil
}

// ParseDraft extracts the first top-level JSON object from model output,
// tolerating leading and trailing prose, and validates it into a node
// draft.
func ParseDraft(text string) (*story.NodeDraft, error) {
	raw, ok := firstJSONObject(text)
	if !ok {
		return nil, &GenerationError{Kind: ErrKindParse, Err: fmt.Errorf("no JSON object found in response")}
	}

	var draft story.NodeDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, &GenerationError{Kind: ErrKindParse, Err: fmt.Errorf("failed to parse JSON object: %w", err)}
	}

	if draft.Title == "" {
		return nil, &GenerationError{Kind: ErrKindSchema, Err: fmt.Errorf("missing title")}
	}
	if draft.Content == "" {
		return nil, &GenerationError{Kind: ErrKindSchema, Err: fmt.Errorf("missing content")}
	}
	if len(draft.Choices) == 0 {
		return nil, &GenerationError{Kind: ErrKindSchema, Err: fmt.Errorf("missing choices")}
	}

	for i := range draft.Choices {
		if draft.Choices[i].ID == "" {
			draft.Choices[i].ID = fmt.Sprintf("choice%d", i+1)
		}
		if draft.Choices[i].Text == "" {
			draft.Choices[i].Text = fmt.Sprintf("Choice %d", i+1)
		}
	}
	return &draft, nil
}

// firstJSONObject scans for the first balanced top-level {...} span,
// respecting string literals and escapes.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
