package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"github.com/sleepstars/ollamabridge/internal/models"
)

// mockollama simulates an Ollama server for manual testing of the proxy.
// Streaming endpoints emit the reply word by word as newline-delimited
// JSON, the way a real Ollama server does.
func main() {
	port := flag.StringP("port", "p", "11434", "Port to run the mock server on")
	delay := flag.Duration("delay", 50*time.Millisecond, "Delay between streamed chunks")
	flag.Parse()

	r := gin.Default()

	r.POST("/api/chat", func(c *gin.Context) {
		var req models.OllamaChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reply := "This is a mock reply from " + req.Model
		if !req.Stream {
			c.JSON(http.StatusOK, models.OllamaChatResponse{
				Model:      req.Model,
				Message:    models.ChatMessage{Role: "assistant", Content: reply},
				Done:       true,
				DoneReason: "stop",
			})
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		for _, word := range strings.SplitAfter(reply, " ") {
			writeNDJSON(c, models.OllamaChatResponse{
				Model:   req.Model,
				Message: models.ChatMessage{Role: "assistant", Content: word},
			})
			time.Sleep(*delay)
		}
		writeNDJSON(c, models.OllamaChatResponse{
			Model:      req.Model,
			Done:       true,
			DoneReason: "stop",
		})
	})

	r.POST("/api/generate", func(c *gin.Context) {
		var req models.OllamaGenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reply := "Mock completion for: " + req.Prompt
		if !req.Stream {
			c.JSON(http.StatusOK, models.OllamaGenerateResponse{
				Model:      req.Model,
				Response:   reply,
				Done:       true,
				DoneReason: "stop",
			})
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		for _, word := range strings.SplitAfter(reply, " ") {
			writeNDJSON(c, models.OllamaGenerateResponse{
				Model:    req.Model,
				Response: word,
			})
			time.Sleep(*delay)
		}
		writeNDJSON(c, models.OllamaGenerateResponse{
			Model:      req.Model,
			Done:       true,
			DoneReason: "stop",
		})
	})

	r.GET("/api/tags", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.OllamaTagsResponse{
			Models: []models.OllamaTagModel{
				{Name: "llama2:latest", Size: 3825819519},
				{Name: "mistral:latest", Size: 4113301824},
			},
		})
	})

	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.OllamaVersionResponse{Version: "0.0.0-mock"})
	})

	if err := r.Run(":" + *port); err != nil {
		log.Fatal(err)
	}
}

func writeNDJSON(c *gin.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n"))
	c.Writer.Flush()
}
