package models

// Ollama native wire shapes, as served by /api/chat, /api/generate,
// /api/tags and /api/version on the upstream server.

// OllamaChatRequest is the body sent to POST /api/chat.
type OllamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ChatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaGenerateRequest is the body sent to POST /api/generate.
type OllamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// OllamaChatResponse is one response object from /api/chat. In streaming
// mode the endpoint emits a sequence of these as newline-delimited JSON,
// the last one carrying Done=true.
type OllamaChatResponse struct {
	Model              string      `json:"model"`
	CreatedAt          string      `json:"created_at,omitempty"`
	Message            ChatMessage `json:"message"`
	Done               bool        `json:"done"`
	DoneReason         string      `json:"done_reason,omitempty"`
	TotalDuration      int64       `json:"total_duration,omitempty"`
	LoadDuration       int64       `json:"load_duration,omitempty"`
	PromptEvalCount    int         `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64       `json:"prompt_eval_duration,omitempty"`
	EvalCount          int         `json:"eval_count,omitempty"`
	EvalDuration       int64       `json:"eval_duration,omitempty"`
	Error              string      `json:"error,omitempty"`
}

// OllamaGenerateResponse is one response object from /api/generate.
type OllamaGenerateResponse struct {
	Model              string `json:"model"`
	CreatedAt          string `json:"created_at,omitempty"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
	Error              string `json:"error,omitempty"`
}

// OllamaTagModel is one installed model as reported by /api/tags.
type OllamaTagModel struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// OllamaTagsResponse is the response of GET /api/tags.
type OllamaTagsResponse struct {
	Models []OllamaTagModel `json:"models"`
}

// OllamaVersionResponse is the response of GET /api/version.
type OllamaVersionResponse struct {
	Version string `json:"version"`
}
