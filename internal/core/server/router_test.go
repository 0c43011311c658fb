package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func preflight(r http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_CORS(t *testing.T) {
	open := NewRouter(zap.NewNop(), Options{Mode: gin.TestMode, AllowOrigins: []string{"*"}})
	open.PUT("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, "*", preflight(open, "http://anywhere.example").Header().Get("Access-Control-Allow-Origin"))

	strict := NewRouter(zap.NewNop(), Options{Mode: gin.TestMode, AllowOrigins: []string{"http://app.example"}})
	strict.PUT("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, "http://app.example", preflight(strict, "http://app.example").Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusForbidden, preflight(strict, "http://evil.example").Code)
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	r := NewRouter(zap.NewNop(), Options{Mode: gin.TestMode})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestBuildServer(t *testing.T) {
	srv := BuildServer(Addr("127.0.0.1", 5003), http.NotFoundHandler(), time.Second, 2*time.Second, 3*time.Second)
	assert.Equal(t, "127.0.0.1:5003", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
	assert.Equal(t, 3*time.Second, srv.IdleTimeout)
	assert.Equal(t, 1<<20, srv.MaxHeaderBytes)
}
