package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector()

	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/health", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	}
	// unmatched routes land in a catch-all label
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	assert.Equal(t, float64(3), testutil.ToFloat64(c.requests.WithLabelValues("/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("unmatched", "404")))
}

func TestStreamGauge(t *testing.T) {
	c := NewCollector()

	c.StreamOpened()
	c.StreamOpened()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.streams))

	c.StreamClosed()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.streams))
}

func TestHandlerExposition(t *testing.T) {
	c := NewCollector()
	c.StreamOpened()

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ollamabridge_active_streams 1")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.StreamOpened()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.streams))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.streams))
}
