package multichat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !req.AutoContinue || req.MaxTurns != 2 || req.Messages[0].Content != "hi" {
			t.Fatalf("unexpected payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ChatResult{
			RunID:      "run-1",
			Turns:      2,
			StopReason: "max_turns_reached",
			Responses:  []Response{{Role: "assistant", Name: "Model A", Content: "hello"}},
		})
	})

	result, err := client.Chat(context.Background(), ChatRequest{
		Messages:     []Message{{Role: "user", Content: "hi"}},
		AutoContinue: true,
		MaxTurns:     2,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.RunID != "run-1" || len(result.Responses) != 1 || result.Responses[0].Name != "Model A" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestChatReturnsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"All endpoints failed to respond","code":"ALL_ENDPOINTS_FAILED"}`))
	})

	_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Code != "ALL_ENDPOINTS_FAILED" || apiErr.Detail != "All endpoints failed to respond" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestPlainTextErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := client.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Detail != "bad gateway" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecuteCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload["code"] != "print(1)" || payload["timeout"] != 1.5 {
			t.Fatalf("unexpected payload: %v", payload)
		}
		_, _ = w.Write([]byte(`{"output":"1\n"}`))
	})

	out, err := client.ExecuteCode(context.Background(), "print(1)", 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "1\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/conversations":
			if r.URL.Query().Get("limit") != "5" {
				t.Fatalf("unexpected limit: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"conversations":[{"id":"r2"},{"id":"r1"}]}`))
		case "/api/v1/conversations/r1":
			_, _ = w.Write([]byte(`{"id":"r1","stop_reason":"no_continuation","turns":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	list, err := client.ListConversations(context.Background(), 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r2" {
		t.Fatalf("unexpected list: %+v", list)
	}
	conv, err := client.GetConversation(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.StopReason != "no_continuation" || conv.Turns != 1 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8000", nil); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
}
