package mocks

import (
	"context"

	"github.com/sleepstars/ollamabridge/internal/models"
	"github.com/sleepstars/ollamabridge/internal/ollama"
)

// MockUpstream implements ollama.Upstream for testing. Each behavior is a
// func field; unset fields return benign defaults.
type MockUpstream struct {
	ChatFunc           func(ctx context.Context, req *models.OllamaChatRequest) (*models.OllamaChatResponse, error)
	ChatStreamFunc     func(ctx context.Context, req *models.OllamaChatRequest) (<-chan ollama.StreamChunk, error)
	GenerateFunc       func(ctx context.Context, req *models.OllamaGenerateRequest) (*models.OllamaGenerateResponse, error)
	GenerateStreamFunc func(ctx context.Context, req *models.OllamaGenerateRequest) (<-chan ollama.StreamChunk, error)
	TagsFunc           func(ctx context.Context) (*models.OllamaTagsResponse, error)
	VersionFunc        func(ctx context.Context) (string, error)
}

func (m *MockUpstream) Chat(ctx context.Context, req *models.OllamaChatRequest) (*models.OllamaChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &models.OllamaChatResponse{Done: true}, nil
}

func (m *MockUpstream) ChatStream(ctx context.Context, req *models.OllamaChatRequest) (<-chan ollama.StreamChunk, error) {
	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, req)
	}
	ch := make(chan ollama.StreamChunk)
	close(ch)
	return ch, nil
}

func (m *MockUpstream) Generate(ctx context.Context, req *models.OllamaGenerateRequest) (*models.OllamaGenerateResponse, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &models.OllamaGenerateResponse{Done: true}, nil
}

func (m *MockUpstream) GenerateStream(ctx context.Context, req *models.OllamaGenerateRequest) (<-chan ollama.StreamChunk, error) {
	if m.GenerateStreamFunc != nil {
		return m.GenerateStreamFunc(ctx, req)
	}
	ch := make(chan ollama.StreamChunk)
	close(ch)
	return ch, nil
}

func (m *MockUpstream) Tags(ctx context.Context) (*models.OllamaTagsResponse, error) {
	if m.TagsFunc != nil {
		return m.TagsFunc(ctx)
	}
	return &models.OllamaTagsResponse{}, nil
}

func (m *MockUpstream) Version(ctx context.Context) (string, error) {
	if m.VersionFunc != nil {
		return m.VersionFunc(ctx)
	}
	return "0.0.0", nil
}

// StreamOf builds a closed channel pre-loaded with the given chunks, for
// tests that script an upstream stream.
func StreamOf(chunks ...ollama.StreamChunk) <-chan ollama.StreamChunk {
	ch := make(chan ollama.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}
