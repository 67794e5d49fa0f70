package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDAndRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog())
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }
	echo := func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestIDKey)) }
	GET(r, "/open", echo, RouteOpt{})
	POST(r, "/closed", echo, RouteOpt{Auth: deny})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-1", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/closed", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
