package llm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	_ "github.com/Ontology-Bot/Ontology-Analyzer/llm/providers" // Register providers
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
		},
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("Hello! How can I help you?"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "test-model",
	})

	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: "user", Content: "Hello"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you?", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestClient_Complete_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("recovered"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "test-model",
	}, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}))

	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_FatalErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "openai",
		BaseURL:  server.URL,
		APIKey:   "bad-key",
		Model:    "test-model",
	})

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_ExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "test-model",
	}, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}))

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_Complete_UnknownProvider(t *testing.T) {
	client := llm.NewClient(llm.Endpoint{
		Provider: "nope",
		BaseURL:  "http://localhost:1",
		Model:    "test-model",
	})

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestClient_Complete_NoMessages(t *testing.T) {
	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  "http://localhost:1",
		Model:    "test-model",
	})

	_, err := client.Complete(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one message")
}

func TestClient_Complete_NoModel(t *testing.T) {
	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  "http://localhost:1",
	})

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model selected")
}

func TestClient_Complete_RequestModelOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "override-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("ok"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "default-model",
	})

	_, err := client.Complete(context.Background(), llm.Request{
		Model:    "override-model",
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
}

func TestClient_Stream_RelaysDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"The ", "answer ", "is 42."} {
			event := map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": delta}},
				},
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "test-model",
	})

	var got strings.Builder
	err := client.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", got.String())
}

func TestClient_Stream_CallbackErrorStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 10; i++ {
			event := map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": "x"}},
				},
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "test-model",
	})

	calls := 0
	err := client.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	}, func(delta string) error {
		calls++
		return fmt.Errorf("stop now")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop now")
	assert.Equal(t, 1, calls)
}

func TestClient_Stream_NonStreamingProviderFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Anthropic messages API shape.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "whole answer"},
			},
			"model":       "test-model",
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "anthropic",
		BaseURL:  server.URL,
		APIKey:   "test-key",
		Model:    "test-model",
	})

	var fragments []string
	err := client.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	}, func(delta string) error {
		fragments = append(fragments, delta)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "whole answer", fragments[0])
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/models", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"id": "llama3"},
				{"id": "mistral"},
			},
		})
	}))
	defer server.Close()

	client := llm.NewClient(llm.Endpoint{
		Provider: "ollama",
		BaseURL:  server.URL,
		Model:    "llama3",
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3", models[0].ID)
	assert.Equal(t, "mistral", models[1].ID)
}
