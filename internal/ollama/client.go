package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sleepstars/ollamabridge/internal/logger"
	"github.com/sleepstars/ollamabridge/internal/models"
)

// Upstream is the interface the routing layer depends on. The concrete
// Client talks to a real Ollama server; tests substitute a mock.
type Upstream interface {
	// Chat performs a buffered /api/chat call.
	Chat(ctx context.Context, req *models.OllamaChatRequest) (*models.OllamaChatResponse, error)

	// ChatStream performs a streaming /api/chat call and returns the
	// ordered chunk sequence.
	ChatStream(ctx context.Context, req *models.OllamaChatRequest) (<-chan StreamChunk, error)

	// Generate performs a buffered /api/generate call.
	Generate(ctx context.Context, req *models.OllamaGenerateRequest) (*models.OllamaGenerateResponse, error)

	// GenerateStream performs a streaming /api/generate call.
	GenerateStream(ctx context.Context, req *models.OllamaGenerateRequest) (<-chan StreamChunk, error)

	// Tags lists the installed models.
	Tags(ctx context.Context) (*models.OllamaTagsResponse, error)

	// Version reports the upstream server version.
	Version(ctx context.Context) (string, error)
}

// StreamChunk is one unit of a streamed response after normalization.
// Exactly one of the following holds: Err is set and the stream is over,
// Done is set and the stream is over, or Content carries a delta.
type StreamChunk struct {
	Content    string
	Done       bool
	DoneReason string
	Err        error
}

// Client issues HTTP requests to an Ollama server.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *logger.Logger
}

// NewClient creates a client for the given base URL. The timeout bounds
// buffered calls end to end and streamed calls per chunk.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.GetLogger().WithComponent("ollama_client"),
	}
}

// Chat performs a buffered /api/chat call.
func (c *Client) Chat(ctx context.Context, req *models.OllamaChatRequest) (*models.OllamaChatResponse, error) {
	req.Stream = false
	var resp models.OllamaChatResponse
	if err := c.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate performs a buffered /api/generate call.
func (c *Client) Generate(ctx context.Context, req *models.OllamaGenerateRequest) (*models.OllamaGenerateResponse, error) {
	req.Stream = false
	var resp models.OllamaGenerateResponse
	if err := c.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatStream performs a streaming /api/chat call. Chunks arrive on the
// returned channel in upstream order; the channel is closed after the
// done chunk or a terminal error chunk.
func (c *Client) ChatStream(ctx context.Context, req *models.OllamaChatRequest) (<-chan StreamChunk, error) {
	req.Stream = true
	body, err := c.openStream(ctx, "/api/chat", req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, streamBuffer)
	go c.readStream(ctx, body, out, decodeChatChunk)
	return out, nil
}

// GenerateStream performs a streaming /api/generate call.
func (c *Client) GenerateStream(ctx context.Context, req *models.OllamaGenerateRequest) (<-chan StreamChunk, error) {
	req.Stream = true
	body, err := c.openStream(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, streamBuffer)
	go c.readStream(ctx, body, out, decodeGenerateChunk)
	return out, nil
}

// Tags lists the installed models via /api/tags.
func (c *Client) Tags(ctx context.Context) (*models.OllamaTagsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var tags models.OllamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &tags, nil
}

// Version reports the upstream server version via /api/version.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", c.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", statusError(resp)
	}

	var version models.OllamaVersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return version.Version, nil
}

// postJSON sends a buffered POST bounded by the configured timeout and
// decodes the response into result.
func (c *Client) postJSON(ctx context.Context, path string, payload, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// openStream sends a streaming POST. The request context bounds the whole
// stream lifetime; only the connection attempt itself is subject to the
// configured timeout, per-chunk inactivity is handled by readStream.
func (c *Client) openStream(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.classify(err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// classify converts transport errors into the typed taxonomy.
func (c *Client) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &TimeoutError{Timeout: c.timeout}
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Cause: err}
}

// statusError drains a non-2xx response into an UpstreamError.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
