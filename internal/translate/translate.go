package translate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sleepstars/ollamabridge/internal/models"
)

// Object discriminators used in OpenAI envelopes.
const (
	ObjectChatCompletion = "chat.completion"
	ObjectChatChunk      = "chat.completion.chunk"
	ObjectTextCompletion = "text_completion"
	ObjectModel          = "model"
	ObjectList           = "list"
)

// modelOwner is reported as owned_by for every proxied model.
const modelOwner = "ollama"

// ErrEmptyModel is returned when a request does not name a model. Whether
// the model actually exists is left to the upstream call.
var ErrEmptyModel = errors.New("model must not be empty")

// NewChatID synthesizes an OpenAI-style chat completion id.
func NewChatID() string {
	id := uuid.New()
	return fmt.Sprintf("chatcmpl-%x", id[:6])
}

// NewCompletionID synthesizes an OpenAI-style text completion id.
func NewCompletionID() string {
	id := uuid.New()
	return fmt.Sprintf("cmpl-%x", id[:6])
}

// ChatToOllama maps an OpenAI chat completion request onto Ollama's native
// /api/chat shape. Message order and roles are preserved; sampling
// parameters move into the options object. Parameters Ollama has no
// equivalent for are dropped rather than rejected.
func ChatToOllama(req *models.ChatCompletionRequest) (*models.OllamaChatRequest, error) {
	if req.Model == "" {
		return nil, ErrEmptyModel
	}

	messages := make([]models.ChatMessage, len(req.Messages))
	copy(messages, req.Messages)

	return &models.OllamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   req.Stream,
		Options: samplingOptions(
			req.Temperature, req.TopP, req.MaxTokens,
			req.Stop, req.PresencePenalty, req.FrequencyPenalty, req.Seed,
		),
	}, nil
}

// CompletionToOllama maps an OpenAI text completion request onto Ollama's
// native /api/generate shape.
func CompletionToOllama(req *models.CompletionRequest) (*models.OllamaGenerateRequest, error) {
	if req.Model == "" {
		return nil, ErrEmptyModel
	}

	return &models.OllamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: req.Stream,
		Options: samplingOptions(
			req.Temperature, req.TopP, req.MaxTokens,
			req.Stop, req.PresencePenalty, req.FrequencyPenalty, req.Seed,
		),
	}, nil
}

// samplingOptions builds the Ollama options map from the OpenAI sampling
// parameters a client actually supplied. Returns nil when nothing was set
// so the options key is omitted from the wire request.
func samplingOptions(temperature, topP *float64, maxTokens int, stop []string, presencePenalty, frequencyPenalty *float64, seed *int) map[string]interface{} {
	opts := make(map[string]interface{})
	if temperature != nil {
		opts["temperature"] = *temperature
	}
	if topP != nil {
		opts["top_p"] = *topP
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	if len(stop) > 0 {
		opts["stop"] = stop
	}
	if presencePenalty != nil {
		opts["presence_penalty"] = *presencePenalty
	}
	if frequencyPenalty != nil {
		opts["frequency_penalty"] = *frequencyPenalty
	}
	if seed != nil {
		opts["seed"] = *seed
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// FinishReason maps Ollama's done/done_reason pair onto OpenAI's
// finish_reason vocabulary. Reasons without a known mapping come back
// empty so the field stays absent instead of guessing.
func FinishReason(done bool, doneReason string) string {
	if !done {
		return ""
	}
	switch doneReason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return ""
	}
}

// ChatFromOllama wraps a buffered Ollama chat response in the OpenAI chat
// completion envelope.
func ChatFromOllama(resp *models.OllamaChatResponse, id string, created int64, model string) *models.ChatCompletionResponse {
	return &models.ChatCompletionResponse{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index: 0,
				Message: models.ChatMessage{
					Role:    "assistant",
					Content: resp.Message.Content,
				},
				FinishReason: FinishReason(resp.Done, resp.DoneReason),
			},
		},
	}
}

// CompletionFromOllama wraps a buffered Ollama generate response in the
// OpenAI text completion envelope.
func CompletionFromOllama(resp *models.OllamaGenerateResponse, id string, created int64, model string) *models.CompletionResponse {
	reason := FinishReason(resp.Done, resp.DoneReason)
	var finish *string
	if reason != "" {
		finish = &reason
	}
	return &models.CompletionResponse{
		ID:      id,
		Object:  ObjectTextCompletion,
		Created: created,
		Model:   model,
		Choices: []models.CompletionChoice{
			{Index: 0, Text: resp.Response, FinishReason: finish},
		},
		Usage: &models.Usage{},
	}
}

// ModelsFromTags projects Ollama's model listing into the OpenAI list
// shape. The upstream order is kept so the listing is stable across calls
// whenever the upstream order is.
func ModelsFromTags(tags *models.OllamaTagsResponse, created int64) models.ModelList {
	list := models.ModelList{
		Object: ObjectList,
		Data:   make([]models.Model, 0, len(tags.Models)),
	}
	for _, m := range tags.Models {
		list.Data = append(list.Data, models.Model{
			ID:      m.Name,
			Object:  ObjectModel,
			Created: created,
			OwnedBy: modelOwner,
		})
	}
	return list
}

// ChatStream carries the id, timestamp and model shared by every chunk of
// one streamed chat completion.
type ChatStream struct {
	ID      string
	Created int64
	Model   string
}

// NewChatStream allocates the per-stream metadata.
func NewChatStream(model string) ChatStream {
	return ChatStream{ID: NewChatID(), Created: time.Now().Unix(), Model: model}
}

// Chunk builds one content-bearing SSE chunk.
func (s ChatStream) Chunk(content string) *models.ChatCompletionChunk {
	return &models.ChatCompletionChunk{
		ID:      s.ID,
		Object:  ObjectChatChunk,
		Created: s.Created,
		Model:   s.Model,
		Choices: []models.ChatChunkChoice{
			{Index: 0, Delta: models.ChatDelta{Content: content}},
		},
	}
}

// Finish builds the terminal chunk carrying the finish reason and no
// content. An empty reason is left absent rather than serialized as "".
func (s ChatStream) Finish(reason string) *models.ChatCompletionChunk {
	var fr *string
	if reason != "" {
		fr = &reason
	}
	return &models.ChatCompletionChunk{
		ID:      s.ID,
		Object:  ObjectChatChunk,
		Created: s.Created,
		Model:   s.Model,
		Choices: []models.ChatChunkChoice{
			{Index: 0, Delta: models.ChatDelta{}, FinishReason: fr},
		},
	}
}

// CompletionStream is the text completion counterpart of ChatStream.
type CompletionStream struct {
	ID      string
	Created int64
	Model   string
}

// NewCompletionStream allocates the per-stream metadata.
func NewCompletionStream(model string) CompletionStream {
	return CompletionStream{ID: NewCompletionID(), Created: time.Now().Unix(), Model: model}
}

// Chunk builds one text-bearing SSE chunk.
func (s CompletionStream) Chunk(text string) *models.CompletionResponse {
	return &models.CompletionResponse{
		ID:      s.ID,
		Object:  ObjectTextCompletion,
		Created: s.Created,
		Model:   s.Model,
		Choices: []models.CompletionChoice{
			{Index: 0, Text: text},
		},
	}
}

// Finish builds the terminal chunk carrying the finish reason and no text.
func (s CompletionStream) Finish(reason string) *models.CompletionResponse {
	var fr *string
	if reason != "" {
		fr = &reason
	}
	return &models.CompletionResponse{
		ID:      s.ID,
		Object:  ObjectTextCompletion,
		Created: s.Created,
		Model:   s.Model,
		Choices: []models.CompletionChoice{
			{Index: 0, FinishReason: fr},
		},
	}
}
