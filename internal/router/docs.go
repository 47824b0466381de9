package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Static documentation pages. Both render the spec served at /openapi.json
// with assets loaded from CDNs, so the binary stays self-contained.

const docsHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Ollama Bridge - Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});
  </script>
</body>
</html>`

const redocHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Ollama Bridge - ReDoc</title>
  <meta charset="utf-8"/>
</head>
<body>
  <redoc spec-url="/openapi.json"></redoc>
  <script src="https://cdn.jsdelivr.net/npm/redoc@2/bundles/redoc.standalone.js"></script>
</body>
</html>`

const openapiJSON = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Ollama OpenAI Compatible API",
    "description": "OpenAI-compatible proxy for Ollama",
    "version": "1.0.0"
  },
  "paths": {
    "/v1/models": {
      "get": {"summary": "List available models", "responses": {"200": {"description": "Model list"}}}
    },
    "/v1/chat/completions": {
      "post": {"summary": "Create a chat completion", "responses": {"200": {"description": "Completion or SSE stream"}}}
    },
    "/v1/completions": {
      "post": {"summary": "Create a text completion", "responses": {"200": {"description": "Completion or SSE stream"}}}
    },
    "/health": {
      "get": {"summary": "Service liveness", "responses": {"200": {"description": "Running"}, "503": {"description": "Not running"}}}
    }
  }
}`

func docsPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsHTML))
}

func redocPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(redocHTML))
}

func openapiSpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(openapiJSON))
}
