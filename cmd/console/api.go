package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fablegate/fable/pkg/state"
	"github.com/fablegate/fable/pkg/story"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// TurnResponse mirrors the API's completed-turn payload.
type TurnResponse struct {
	Session *state.Session   `json:"session"`
	Node    *story.StoryNode `json:"node"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func decodeOrError(body []byte, statusCode, wantStatus int, out interface{}) error {
	if statusCode != wantStatus {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return fmt.Errorf("API returned status %d: %s", statusCode, string(body))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func getJSON(client *http.Client, url string, wantStatus int, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return decodeOrError(body, resp.StatusCode, wantStatus, out)
}

func postJSON(client *http.Client, url string, reqBody interface{}, wantStatus int, out interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return decodeOrError(body, resp.StatusCode, wantStatus, out)
}

func listSessions(client *http.Client, baseURL string) ([]*state.Session, error) {
	var sessions []*state.Session
	if err := getJSON(client, baseURL+"/v1/sessions", http.StatusOK, &sessions); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func selectSession(client *http.Client, baseURL, id string) (*state.Session, error) {
	var s state.Session
	req := map[string]string{"id": id}
	if err := postJSON(client, baseURL+"/v1/sessions/select", req, http.StatusOK, &s); err != nil {
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return &s, nil
}

func navigate(client *http.Client, baseURL, direction string, page int) (*TurnResponse, error) {
	var turn TurnResponse
	req := map[string]interface{}{"direction": direction, "page": page}
	if err := postJSON(client, baseURL+"/v1/sessions/navigate", req, http.StatusOK, &turn); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	return &turn, nil
}

func exportSession(client *http.Client, baseURL string) ([]byte, error) {
	resp, err := client.Get(baseURL + "/v1/sessions/export")
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to export: %s", errorResp.Error)
	}
	return body, nil
}

// streamEvent is one parsed event from a turn's SSE stream.
type streamEvent struct {
	Token string
	Turn  *TurnResponse
	Err   error
}

// streamTurn runs one generation request against an SSE endpoint and
// delivers token and completion events on the returned channel, which is
// closed when the stream ends.
func streamTurn(ctx context.Context, client *http.Client, url string, reqBody interface{}) <-chan streamEvent {
	events := make(chan streamEvent, 32)

	go func() {
		defer close(events)

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			events <- streamEvent{Err: fmt.Errorf("failed to marshal request: %w", err)}
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
		if err != nil {
			events <- streamEvent{Err: fmt.Errorf("failed to create request: %w", err)}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := client.Do(req)
		if err != nil {
			events <- streamEvent{Err: fmt.Errorf("failed to connect: %w", err)}
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
			body, _ := io.ReadAll(resp.Body)
			var errorResp ErrorResponse
			if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error != "" {
				events <- streamEvent{Err: fmt.Errorf("%s", errorResp.Error)}
			} else {
				events <- streamEvent{Err: fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))}
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		eventType := ""
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				eventType = ""
				continue
			}
			if strings.HasPrefix(line, "event: ") {
				eventType = strings.TrimPrefix(line, "event: ")
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			switch eventType {
			case "token":
				var tok struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal([]byte(data), &tok); err == nil {
					events <- streamEvent{Token: tok.Text}
				}
			case "done":
				var turn TurnResponse
				if err := json.Unmarshal([]byte(data), &turn); err != nil {
					events <- streamEvent{Err: fmt.Errorf("failed to parse turn: %w", err)}
					return
				}
				events <- streamEvent{Turn: &turn}
				return
			case "error":
				var errorResp ErrorResponse
				if err := json.Unmarshal([]byte(data), &errorResp); err == nil {
					events <- streamEvent{Err: fmt.Errorf("%s", errorResp.Error)}
				} else {
					events <- streamEvent{Err: fmt.Errorf("generation failed")}
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			events <- streamEvent{Err: fmt.Errorf("error reading stream: %w", err)}
		}
	}()

	return events
}

func startSessionStream(ctx context.Context, client *http.Client, baseURL, gameMode, name string) <-chan streamEvent {
	req := map[string]string{"gameMode": gameMode, "name": name}
	return streamTurn(ctx, client, baseURL+"/v1/sessions", req)
}

func makeChoiceStream(ctx context.Context, client *http.Client, baseURL, choiceID, customText string) <-chan streamEvent {
	req := map[string]string{"choiceId": choiceID, "customText": customText}
	return streamTurn(ctx, client, baseURL+"/v1/sessions/choice", req)
}
