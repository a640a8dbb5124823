package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestManagerAbortStopsChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	var order []string
	m.Add(func(c *gin.Context) { order = append(order, "a") })
	m.Add(func(c *gin.Context) {
		order = append(order, "b")
		if c.Query("deny") != "" {
			c.AbortWithStatus(http.StatusForbidden)
		}
	})
	assert.Equal(t, 2, m.Len())

	r := gin.New()
	r.Use(m.Use())
	r.GET("/x", func(c *gin.Context) {
		order = append(order, "h")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b", "h"}, order)

	order = nil
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?deny=1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"a", "b"}, order)

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	m.Add(Origin([]string{"http://localhost:5173/"}))
	r := gin.New()
	r.Use(m.Use())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecoveryAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), AccessLog(), Metrics())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
}
