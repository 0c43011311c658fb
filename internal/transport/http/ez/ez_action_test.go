package ez

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"user-account-service/internal/domain"
	mdw "user-account-service/internal/transport/http/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

type echoIn struct {
	Name string `json:"name"`
}

type echoOut struct {
	Hello string `json:"hello"`
}

func newEngine(l *zap.Logger, fail error) *gin.Engine {
	r := gin.New()
	r.Use(mdw.MaxBodyBytes(32))
	e := New(r.Group("/x"), l)
	RegisterAction(e, Action[echoIn, echoOut]{
		Method: http.MethodPost,
		Path:   "/echo",
		Binder: BindJSON,
		Status: http.StatusCreated,
		Handler: func(_ *gin.Context, in *echoIn) (echoOut, error) {
			if fail != nil {
				return echoOut{}, fail
			}
			return echoOut{Hello: in.Name}, nil
		},
	})
	RegisterAction(e, Action[struct{}, echoOut]{
		Method: http.MethodGet,
		Path:   "/:name",
		Binder: BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (echoOut, error) {
			return echoOut{Hello: c.Param("name")}, nil
		},
	})
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAction_Success(t *testing.T) {
	r := newEngine(nil, nil)

	w := post(r, `{"name":"ada"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"hello":"ada"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/bob", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hello":"bob"}`, w.Body.String())
}

func TestRegisterAction_BindFailures(t *testing.T) {
	r := newEngine(nil, nil)

	for _, body := range []string{``, `{"name":`, `[1,2]`, `{"name":5}`} {
		w := post(r, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"Invalid request body"}`, w.Body.String(), body)
	}

	w := post(r, `{"name":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"Request body too large"}`, w.Body.String())
}

func TestRegisterAction_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", domain.Validation("Field email is required"), http.StatusBadRequest, `{"error":"Field email is required"}`},
		{"auth", domain.Unauthorized("Invalid email or password"), http.StatusUnauthorized, `{"error":"Invalid email or password"}`},
		{"not found", domain.ErrUserNotFound, http.StatusNotFound, `{"error":"User not found"}`},
		{"conflict", domain.ErrEmailTaken, http.StatusConflict, `{"error":"User with this email already exists"}`},
		{"storage", domain.Storage("Failed to fetch users", errors.New("disk on fire")), http.StatusInternalServerError, `{"error":"Failed to fetch users"}`},
		{"unclassified", errors.New("secret detail"), http.StatusInternalServerError, `{"error":"Internal server error"}`},
		{"deadline", domain.Storage("Failed to fetch users", context.DeadlineExceeded), http.StatusGatewayTimeout, `{"error":"Request timed out"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := post(newEngine(nil, tc.err), `{"name":"x"}`)
			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}

func TestRegisterAction_LogsServerErrorsWithCause(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := newEngine(zap.New(core), domain.Storage("Failed to fetch users", errors.New("disk on fire")))

	post(r, `{"name":"x"}`)

	entries := logs.FilterMessage("request failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "disk on fire", entries[0].ContextMap()["error"])
	}

	// client errors stay out of the error log
	core, logs = observer.New(zap.DebugLevel)
	post(newEngine(zap.New(core), domain.ErrUserNotFound), `{"name":"x"}`)
	assert.Zero(t, logs.Len())
}
