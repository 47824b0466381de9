package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleepstars/ollamabridge/internal/config"
	"github.com/sleepstars/ollamabridge/internal/metrics"
	"github.com/sleepstars/ollamabridge/internal/models"
	"github.com/sleepstars/ollamabridge/internal/ollama"
	"github.com/sleepstars/ollamabridge/internal/router"
	"github.com/sleepstars/ollamabridge/internal/service"
)

// fakeOllama imitates the native Ollama API closely enough for the proxy:
// buffered and word-streamed chat, generate, and the tags listing.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req models.OllamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		reply := "Hello from " + req.Model
		if !req.Stream {
			json.NewEncoder(w).Encode(models.OllamaChatResponse{
				Model:      req.Model,
				Message:    models.ChatMessage{Role: "assistant", Content: reply},
				Done:       true,
				DoneReason: "stop",
			})
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, word := range strings.SplitAfter(reply, " ") {
			json.NewEncoder(w).Encode(models.OllamaChatResponse{
				Model:   req.Model,
				Message: models.ChatMessage{Role: "assistant", Content: word},
			})
			flusher.Flush()
		}
		json.NewEncoder(w).Encode(models.OllamaChatResponse{
			Model:      req.Model,
			Done:       true,
			DoneReason: "stop",
		})
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req models.OllamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(models.OllamaGenerateResponse{
			Model:      req.Model,
			Response:   req.Prompt + "...",
			Done:       true,
			DoneReason: "stop",
		})
	})

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.OllamaTagsResponse{
			Models: []models.OllamaTagModel{
				{Name: "llama2:latest"},
				{Name: "mistral:latest"},
			},
		})
	})

	return httptest.NewServer(mux)
}

// startProxy brings up the full stack against the given upstream and
// returns the proxy base URL.
func startProxy(t *testing.T, upstreamURL string) string {
	t.Helper()

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Port = port
	cfg.OllamaBaseURL = upstreamURL
	cfg.Timeout = 5

	var ctrl *service.Controller
	build := func(cfg config.Config) http.Handler {
		return router.New(router.Options{
			Upstream: ollama.NewClient(cfg.OllamaBaseURL, cfg.TimeoutDuration()),
			Running:  func() bool { return ctrl.Status() == service.Running },
			Metrics:  metrics.NewCollector(),
		})
	}
	ctrl = service.NewController(cfg, build)
	require.NoError(t, ctrl.Start())
	t.Cleanup(func() { ctrl.Stop() })

	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// openaiClient configures the official-style SDK against the proxy.
func openaiClient(baseURL string) *openai.Client {
	cfg := openai.DefaultConfig("unused")
	cfg.BaseURL = baseURL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestProxy_ChatCompletion(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()
	client := openaiClient(startProxy(t, upstream.URL))

	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "llama2",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi!"},
		},
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello from llama2", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 0, resp.Usage.TotalTokens)
}

func TestProxy_ChatCompletionStream(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()
	client := openaiClient(startProxy(t, upstream.URL))

	stream, err := client.CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{
		Model: "llama2",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi!"},
		},
		Stream: true,
	})
	require.NoError(t, err)
	defer stream.Close()

	var assembled strings.Builder
	var finish openai.FinishReason
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Len(t, chunk.Choices, 1)
		assembled.WriteString(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != "" {
			finish = chunk.Choices[0].FinishReason
		}
	}

	assert.Equal(t, "Hello from llama2", assembled.String())
	assert.Equal(t, openai.FinishReasonStop, finish)
}

func TestProxy_ListModels(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()
	client := openaiClient(startProxy(t, upstream.URL))

	list, err := client.ListModels(context.Background())

	require.NoError(t, err)
	require.Len(t, list.Models, 2)
	assert.Equal(t, "llama2:latest", list.Models[0].ID)
	assert.Equal(t, "ollama", list.Models[0].OwnedBy)
}

func TestProxy_Completions(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()
	client := openaiClient(startProxy(t, upstream.URL))

	resp, err := client.CreateCompletion(context.Background(), openai.CompletionRequest{
		Model:  "mistral",
		Prompt: "Once upon a time",
	})

	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Once upon a time...", resp.Choices[0].Text)
}

func TestProxy_UpstreamDown(t *testing.T) {
	upstream := fakeOllama(t)
	upstreamURL := upstream.URL
	upstream.Close() // proxy starts with a dead upstream

	client := openaiClient(startProxy(t, upstreamURL))

	_, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "llama2",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi!"},
		},
	})

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatusCode)
}

func TestProxy_HealthFollowsLifecycle(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()
	base := startProxy(t, upstream.URL)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProxy_ReconfigureMovesPort(t *testing.T) {
	upstream := fakeOllama(t)
	defer upstream.Close()

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Port = port
	cfg.OllamaBaseURL = upstream.URL
	cfg.Timeout = 5

	var ctrl *service.Controller
	build := func(cfg config.Config) http.Handler {
		return router.New(router.Options{
			Upstream: ollama.NewClient(cfg.OllamaBaseURL, cfg.TimeoutDuration()),
			Running:  func() bool { return ctrl.Status() == service.Running },
		})
	}
	ctrl = service.NewController(cfg, build)
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	ln2, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	newPort := ln2.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln2.Close())

	next := cfg
	next.Port = newPort
	require.NoError(t, ctrl.Reconfigure(next))

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", newPort))
		if err == nil {
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			break
		}
		require.True(t, time.Now().Before(deadline), "new port never came up: %v", err)
		time.Sleep(20 * time.Millisecond)
	}
}
