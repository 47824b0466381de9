package router

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
)

// doneSentinel terminates every successfully completed SSE stream.
const doneSentinel = "[DONE]"

// setSSEHeaders prepares the response for Server-Sent Events. Headers must
// go out before the first event; from then on failures can only be
// reported in-stream.
func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(200)
	w.Flush()
}

// writeSSEJSON emits one data event carrying the JSON encoding of v and
// flushes it to the client immediately.
func writeSSEJSON(w gin.ResponseWriter, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// writeSSEDone emits the terminal sentinel event.
func writeSSEDone(w gin.ResponseWriter) {
	fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
	w.Flush()
}

// writeSSEError emits a terminal error event. It is never followed by the
// done sentinel: a truncated stream must not look complete.
func writeSSEError(w gin.ResponseWriter, cause error) {
	payload, _ := json.Marshal(map[string]string{"error": cause.Error()})
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.Flush()
}
