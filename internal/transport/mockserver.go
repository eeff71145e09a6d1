package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MockServer is an in-process OpenAI-compatible model backend for demos and
// transport tests. Responses are scripted per model; unscripted models fall
// back to echoing the last user message.
type MockServer struct {
	mu      sync.Mutex
	scripts map[string][]string // model ID -> queued responses
	calls   int
}

// NewMockServer creates a MockServer with no scripts.
func NewMockServer() *MockServer {
	return &MockServer{scripts: make(map[string][]string)}
}

// Script queues canned responses for a model, served in order. When the
// queue drains the model reverts to echo behavior.
func (m *MockServer) Script(modelID string, responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[modelID] = append(m.scripts[modelID], responses...)
}

// Calls returns how many completion requests the server has handled.
func (m *MockServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Handler returns the chi router serving the mock backend.
func (m *MockServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/chat/completions", m.handleCompletions)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (m *MockServer) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, "model is required", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.calls++
	var content string
	if queue := m.scripts[req.Model]; len(queue) > 0 {
		content = queue[0]
		m.scripts[req.Model] = queue[1:]
	} else {
		content = "echo: " + lastUserMessage(req.Messages)
	}
	m.mu.Unlock()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	// Stream word-by-word so clients exercise real delta accumulation.
	words := strings.Fields(content)
	if len(words) == 0 {
		words = []string{content}
	}
	for i, word := range words {
		delta := word
		if i > 0 {
			delta = " " + word
		}
		chunk := map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]any{"content": delta}},
			},
		}
		writeSSE(w, chunk)
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}

	inputTokens := int64(0)
	for _, msg := range req.Messages {
		inputTokens += int64(len(strings.Fields(msg.Content)))
	}
	usageChunk := map[string]any{
		"choices": []map[string]any{},
		"usage": map[string]any{
			"prompt_tokens":     inputTokens,
			"completion_tokens": int64(len(words)),
			"total_tokens":      inputTokens + int64(len(words)),
		},
	}
	writeSSE(w, usageChunk)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func lastUserMessage(messages []wireMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
