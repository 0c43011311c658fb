package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"user-account-service/internal/core/database"
	"user-account-service/internal/domain"
	"user-account-service/internal/repo"
	"user-account-service/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

const adaJSON = `{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com","password":"pa55word","role_id":2}`

func newTestAPI(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "api.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.EnsureUserSchema(context.Background(), db))

	svc := service.NewUserService(repo.NewUserRepo(db), service.WithBcryptCost(bcrypt.MinCost))
	return mount(NewUserHandler(svc, zap.NewNop()))
}

func mount(h *UserHandler) *gin.Engine {
	r := gin.New()
	h.Mount(r.Group("/users"))
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func register(t *testing.T, r http.Handler, body string) int64 {
	t.Helper()
	code, out := do(t, r, http.MethodPost, "/users/register", body)
	require.Equal(t, http.StatusCreated, code, out)
	return int64(out["user_id"].(float64))
}

func TestRegister(t *testing.T) {
	r := newTestAPI(t)

	code, out := do(t, r, http.MethodPost, "/users/register", adaJSON)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "User created successfully", out["message"])
	assert.Greater(t, out["user_id"].(float64), 0.0)

	code, out = do(t, r, http.MethodPost, "/users/register", adaJSON)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "User with this email already exists", out["error"])

	code, out = do(t, r, http.MethodPost, "/users/register", `{"first_name":"Ada","email":"x@example.com","password":"p","role_id":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Field last_name is required", out["error"])

	code, out = do(t, r, http.MethodPost, "/users/register", `{"first_name":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", out["error"])
}

func TestLogin(t *testing.T) {
	r := newTestAPI(t)
	id := register(t, r, adaJSON)

	code, out := do(t, r, http.MethodPost, "/users/login", `{"email":"ada@example.com","password":"pa55word"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Login successful", out["message"])
	assert.Equal(t, map[string]any{
		"user_id":    float64(id),
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
		"role_id":    2.0,
	}, out["user"])

	for _, body := range []string{
		`{"email":"ada@example.com","password":"wrong"}`,
		`{"email":"nobody@example.com","password":"pa55word"}`,
	} {
		code, out = do(t, r, http.MethodPost, "/users/login", body)
		assert.Equal(t, http.StatusUnauthorized, code, body)
		assert.Equal(t, "Invalid email or password", out["error"], body)
	}

	code, out = do(t, r, http.MethodPost, "/users/login", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email and password are required", out["error"])
}

func TestListAndGet(t *testing.T) {
	r := newTestAPI(t)

	code, out := do(t, r, http.MethodGet, "/users/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, out["users"])

	id := register(t, r, adaJSON)
	register(t, r, strings.Replace(adaJSON, "ada@", "grace@", 1))

	_, out = do(t, r, http.MethodGet, "/users/", "")
	users := out["users"].([]any)
	require.Len(t, users, 2)
	assert.NotContains(t, users[0], "password")

	code, out = do(t, r, http.MethodGet, "/users/"+itoa(id), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ada@example.com", out["user"].(map[string]any)["email"])
	assert.NotContains(t, out["user"], "password")

	for _, path := range []string{"/users/999", "/users/abc", "/users/0", "/users/-3"} {
		code, out = do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, "User not found", out["error"], path)
	}
}

func TestUpdate(t *testing.T) {
	r := newTestAPI(t)
	id := register(t, r, adaJSON)
	register(t, r, strings.Replace(adaJSON, "ada@", "grace@", 1))
	path := "/users/" + itoa(id)

	code, out := do(t, r, http.MethodPut, path, `{"email":"countess@example.com","first_name":null}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "User updated successfully", out["message"])

	_, out = do(t, r, http.MethodGet, path, "")
	user := out["user"].(map[string]any)
	assert.Equal(t, "countess@example.com", user["email"])
	assert.Equal(t, "Ada", user["first_name"])

	code, out = do(t, r, http.MethodPut, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No updatable fields supplied", out["error"])

	code, out = do(t, r, http.MethodPut, path, `{"email":"grace@example.com"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "User with this email already exists", out["error"])

	code, out = do(t, r, http.MethodPut, "/users/999", `{"role_id":3}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", out["error"])
}

func TestChangePassword(t *testing.T) {
	r := newTestAPI(t)
	id := register(t, r, adaJSON)
	path := "/users/" + itoa(id) + "/change-password"

	code, out := do(t, r, http.MethodPut, path, `{"current_password":"pa55word"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Current password and new password are required", out["error"])

	code, out = do(t, r, http.MethodPut, path, `{"current_password":"nope","new_password":"n3w"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Current password is incorrect", out["error"])

	code, out = do(t, r, http.MethodPut, "/users/999/change-password", `{"current_password":"pa55word","new_password":"n3w"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", out["error"])

	code, out = do(t, r, http.MethodPut, path, `{"current_password":"pa55word","new_password":"n3w"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Password changed successfully", out["message"])

	code, _ = do(t, r, http.MethodPost, "/users/login", `{"email":"ada@example.com","password":"pa55word"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, r, http.MethodPost, "/users/login", `{"email":"ada@example.com","password":"n3w"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestDelete(t *testing.T) {
	r := newTestAPI(t)
	id := register(t, r, adaJSON)
	path := "/users/" + itoa(id)

	code, out := do(t, r, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "User deleted successfully", out["message"])

	code, out = do(t, r, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", out["error"])

	code, _ = do(t, r, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, code)
}

// failingService answers every call with err.
type failingService struct{ err error }

func (f failingService) Register(context.Context, service.RegisterInput) (int64, error) {
	return 0, f.err
}
func (f failingService) Login(context.Context, string, string) (*domain.UserSummary, error) {
	return nil, f.err
}
func (f failingService) List(context.Context) ([]domain.UserSummary, error) { return nil, f.err }
func (f failingService) Get(context.Context, int64) (*domain.UserSummary, error) {
	return nil, f.err
}
func (f failingService) UpdateProfile(context.Context, int64, domain.UserPatch) error { return f.err }
func (f failingService) ChangePassword(context.Context, int64, string, string) error {
	return f.err
}
func (f failingService) Delete(context.Context, int64) error { return f.err }

func TestStorageFailuresAreGeneric500s(t *testing.T) {
	r := mount(NewUserHandler(failingService{err: domain.Storage("Failed to fetch users", errors.New("no such table: users"))}, nil))

	code, out := do(t, r, http.MethodGet, "/users/", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, map[string]any{"error": "Failed to fetch users"}, out)

	r = mount(NewUserHandler(failingService{err: errors.New("unexpected")}, nil))
	code, out = do(t, r, http.MethodDelete, "/users/1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", out["error"])
}

func TestUpdateIn_PatchKeepsOnlySuppliedFields(t *testing.T) {
	var in updateIn
	require.NoError(t, json.Unmarshal([]byte(`{"last_name":"","role_id":4,"email":null}`), &in))
	assert.Equal(t, map[string]any{"last_name": "", "role_id": int64(4)}, in.patch().Columns())
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestRoleIDAcceptsNumericStrings(t *testing.T) {
	r := newTestAPI(t)

	id := register(t, r, strings.Replace(adaJSON, `"role_id":2`, `"role_id":"3"`, 1))
	_, out := do(t, r, http.MethodGet, "/users/"+itoa(id), "")
	assert.Equal(t, 3.0, out["user"].(map[string]any)["role_id"])

	code, out := do(t, r, http.MethodPut, "/users/"+itoa(id), `{"role_id":" 4 "}`)
	require.Equal(t, http.StatusOK, code, out)
	_, out = do(t, r, http.MethodGet, "/users/"+itoa(id), "")
	assert.Equal(t, 4.0, out["user"].(map[string]any)["role_id"])

	code, out = do(t, r, http.MethodPost, "/users/register",
		strings.NewReplacer(`"role_id":2`, `"role_id":""`, "ada@", "blank@").Replace(adaJSON))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Field role_id is required", out["error"])

	code, out = do(t, r, http.MethodPost, "/users/register",
		strings.NewReplacer(`"role_id":2`, `"role_id":"admin"`, "ada@", "word@").Replace(adaJSON))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", out["error"])
}

func TestRoleID_UnmarshalJSON(t *testing.T) {
	for in, want := range map[string]int64{`7`: 7, `"7"`: 7, `""`: 0, `null`: 0} {
		var r roleID
		require.NoError(t, json.Unmarshal([]byte(in), &r), in)
		assert.Equal(t, want, int64(r), in)
	}
	var r roleID
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &r))
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &r))
}
