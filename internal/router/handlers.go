package router

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sleepstars/ollamabridge/internal/logger"
	"github.com/sleepstars/ollamabridge/internal/metrics"
	"github.com/sleepstars/ollamabridge/internal/models"
	"github.com/sleepstars/ollamabridge/internal/ollama"
	"github.com/sleepstars/ollamabridge/internal/translate"
)

type handlers struct {
	upstream ollama.Upstream
	running  func() bool
	metrics  *metrics.Collector
	logger   *logger.Logger
}

// health reports liveness from service state alone; it never calls the
// upstream.
func (h *handlers) health(c *gin.Context) {
	if h.running != nil && h.running() {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
}

// listModels serves GET /v1/models from the upstream tag listing.
func (h *handlers) listModels(c *gin.Context) {
	tags, err := h.upstream.Tags(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, translate.ModelsFromTags(tags, time.Now().Unix()))
}

// chatCompletions serves POST /v1/chat/completions, buffered or streamed.
func (h *handlers) chatCompletions(c *gin.Context) {
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	oreq, err := translate.ChatToOllama(&req)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	if req.Stream {
		h.streamChat(c, oreq, req.Model)
		return
	}

	resp, err := h.upstream.Chat(c.Request.Context(), oreq)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, translate.ChatFromOllama(resp, translate.NewChatID(), time.Now().Unix(), req.Model))
}

// completions serves POST /v1/completions, buffered or streamed.
func (h *handlers) completions(c *gin.Context) {
	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	oreq, err := translate.CompletionToOllama(&req)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	if req.Stream {
		h.streamCompletion(c, oreq, req.Model)
		return
	}

	resp, err := h.upstream.Generate(c.Request.Context(), oreq)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, translate.CompletionFromOllama(resp, translate.NewCompletionID(), time.Now().Unix(), req.Model))
}

// streamChat transcodes the upstream NDJSON chunk stream into OpenAI SSE
// events, one event per upstream chunk, in upstream order.
func (h *handlers) streamChat(c *gin.Context, oreq *models.OllamaChatRequest, model string) {
	ctx := c.Request.Context()

	chunks, err := h.upstream.ChatStream(ctx, oreq)
	if err != nil {
		h.upstreamError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StreamOpened()
		defer h.metrics.StreamClosed()
	}

	stream := translate.NewChatStream(model)
	w := c.Writer
	setSSEHeaders(w)

	for chunk := range chunks {
		if chunk.Err != nil {
			h.logger.WithError(chunk.Err).Warn("Chat stream failed mid-flight")
			writeSSEError(w, chunk.Err)
			return
		}
		if chunk.Done {
			// The final chunk may still carry text; it gets its own
			// content event before the finish event.
			if chunk.Content != "" {
				if err := writeSSEJSON(w, stream.Chunk(chunk.Content)); err != nil {
					return
				}
			}
			writeSSEJSON(w, stream.Finish(translate.FinishReason(true, chunk.DoneReason)))
			writeSSEDone(w)
			return
		}
		if chunk.Content == "" {
			continue
		}
		if err := writeSSEJSON(w, stream.Chunk(chunk.Content)); err != nil {
			// Client went away; ctx cancellation tears down the upstream read.
			return
		}
	}

	// Producer closed the channel without done or error, treat as truncated.
	writeSSEError(w, ollama.ErrStreamTruncated)
}

// streamCompletion is the text completion counterpart of streamChat.
func (h *handlers) streamCompletion(c *gin.Context, oreq *models.OllamaGenerateRequest, model string) {
	ctx := c.Request.Context()

	chunks, err := h.upstream.GenerateStream(ctx, oreq)
	if err != nil {
		h.upstreamError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StreamOpened()
		defer h.metrics.StreamClosed()
	}

	stream := translate.NewCompletionStream(model)
	w := c.Writer
	setSSEHeaders(w)

	for chunk := range chunks {
		if chunk.Err != nil {
			h.logger.WithError(chunk.Err).Warn("Completion stream failed mid-flight")
			writeSSEError(w, chunk.Err)
			return
		}
		if chunk.Done {
			if chunk.Content != "" {
				if err := writeSSEJSON(w, stream.Chunk(chunk.Content)); err != nil {
					return
				}
			}
			writeSSEJSON(w, stream.Finish(translate.FinishReason(true, chunk.DoneReason)))
			writeSSEDone(w)
			return
		}
		if chunk.Content == "" {
			continue
		}
		if err := writeSSEJSON(w, stream.Chunk(chunk.Content)); err != nil {
			return
		}
	}

	writeSSEError(w, ollama.ErrStreamTruncated)
}

// badRequest answers a malformed client body with the OpenAI error envelope.
func (h *handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrTypeInvalidRequest, err.Error()))
}

// upstreamError maps the typed upstream failures onto 502/504 responses.
func (h *handlers) upstreamError(c *gin.Context, err error) {
	h.logger.WithError(err).Error("Upstream call failed")

	var timeoutErr *ollama.TimeoutError
	if errors.As(err, &timeoutErr) {
		c.JSON(http.StatusGatewayTimeout, models.NewErrorResponse(models.ErrTypeTimeout, err.Error()))
		return
	}
	c.JSON(http.StatusBadGateway, models.NewErrorResponse(models.ErrTypeUpstream, err.Error()))
}
