package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"github.com/sleepstars/ollamabridge/internal/models"
)

// streamBuffer is the channel capacity between the upstream reader and the
// consumer. Keeping it small means a slow consumer blocks the reader,
// which stops draining the socket and lets TCP flow control throttle the
// upstream.
const streamBuffer = 8

// maxChunkLine caps the size of one newline-delimited JSON chunk.
const maxChunkLine = 1 << 20

// decodeChatChunk normalizes one /api/chat NDJSON line.
func decodeChatChunk(line []byte) (StreamChunk, error) {
	var resp models.OllamaChatResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return StreamChunk{}, err
	}
	if resp.Error != "" {
		return StreamChunk{Err: &UpstreamError{Body: resp.Error}}, nil
	}
	return StreamChunk{
		Content:    resp.Message.Content,
		Done:       resp.Done,
		DoneReason: resp.DoneReason,
	}, nil
}

// decodeGenerateChunk normalizes one /api/generate NDJSON line.
func decodeGenerateChunk(line []byte) (StreamChunk, error) {
	var resp models.OllamaGenerateResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return StreamChunk{}, err
	}
	if resp.Error != "" {
		return StreamChunk{Err: &UpstreamError{Body: resp.Error}}, nil
	}
	return StreamChunk{
		Content:    resp.Response,
		Done:       resp.Done,
		DoneReason: resp.DoneReason,
	}, nil
}

// readStream scans the NDJSON body into the output channel, one chunk per
// line, in arrival order. It enforces the per-chunk inactivity timeout and
// closes the body promptly when the consumer's context is cancelled.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, out chan<- StreamChunk, decode func([]byte) (StreamChunk, error)) {
	defer close(out)
	defer body.Close()

	// Closing the body is the only way to unblock a pending Read; both the
	// watchdog and context cancellation use it.
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(c.timeout, func() {
		timedOut.Store(true)
		body.Close()
	})
	defer watchdog.Stop()

	unregister := context.AfterFunc(ctx, func() {
		body.Close()
	})
	defer unregister()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		chunk, err := decode(line)
		if err != nil {
			// Malformed line inside an otherwise healthy stream: skip it,
			// the done chunk still terminates the sequence.
			c.logger.Debug("Skipping malformed stream line: %v", err)
			continue
		}

		if chunk.Err != nil {
			c.deliver(ctx, out, chunk)
			return
		}

		// The inactivity timer only covers upstream reads. Park it while
		// blocked on a slow consumer so backpressure is not mistaken for
		// upstream silence.
		watchdog.Stop()
		if !c.deliver(ctx, out, chunk) {
			return
		}
		if chunk.Done {
			return
		}
		watchdog.Reset(c.timeout)
	}

	// The scanner stopped without a done chunk.
	switch {
	case ctx.Err() != nil:
		// Consumer went away; nobody is listening for an error chunk.
		c.logger.Debug("Stream cancelled by consumer")
	case timedOut.Load():
		c.deliver(ctx, out, StreamChunk{Err: &TimeoutError{Timeout: c.timeout}})
	default:
		c.deliver(ctx, out, StreamChunk{Err: ErrStreamTruncated})
	}
}

// deliver sends a chunk unless the consumer's context is done first.
func (c *Client) deliver(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
