package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-account-service/internal/domain"
	"user-account-service/internal/service"
	httpez "user-account-service/internal/transport/http/ez"
	resp "user-account-service/internal/transport/http/response"
)

// UserService is what the handler needs from the account service.
type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) (int64, error)
	Login(ctx context.Context, email, password string) (*domain.UserSummary, error)
	List(ctx context.Context) ([]domain.UserSummary, error)
	Get(ctx context.Context, id int64) (*domain.UserSummary, error)
	UpdateProfile(ctx context.Context, id int64, p domain.UserPatch) error
	ChangePassword(ctx context.Context, id int64, current, next string) error
	Delete(ctx context.Context, id int64) error
}

type UserHandler struct {
	svc UserService
	log *zap.Logger
}

func NewUserHandler(svc UserService, l *zap.Logger) *UserHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &UserHandler{svc: svc, log: l}
}

type registerIn struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	RoleID    roleID `json:"role_id"`
}

type registerOut struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type loginIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginOut struct {
	Message string              `json:"message"`
	User    *domain.UserSummary `json:"user"`
}

type listOut struct {
	Users []domain.UserSummary `json:"users"`
}

type getOut struct {
	User *domain.UserSummary `json:"user"`
}

// null and absent both mean "leave unchanged"
type updateIn struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	RoleID    *roleID `json:"role_id"`
}

func (in updateIn) patch() domain.UserPatch {
	p := domain.UserPatch{
		FirstName: domain.FromPtr(in.FirstName),
		LastName:  domain.FromPtr(in.LastName),
		Email:     domain.FromPtr(in.Email),
	}
	if in.RoleID != nil {
		p.RoleID = domain.Some(int64(*in.RoleID))
	}
	return p
}

// roleID decodes 2 and "2" alike. An empty string or null decodes as 0,
// which registration reports as a missing field.
type roleID int64

func (r *roleID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*r = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*r = roleID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = roleID(n)
	return nil
}

type changePasswordIn struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Mount registers the account routes on g, normally the /users group.
func (h *UserHandler) Mount(g *gin.RouterGroup) {
	e := httpez.New(g, h.log)

	httpez.RegisterAction(e, httpez.Action[registerIn, registerOut]{
		Method:  http.MethodPost,
		Path:    "/register",
		Binder:  httpez.BindJSON,
		Status:  http.StatusCreated,
		Handler: h.register,
	})
	httpez.RegisterAction(e, httpez.Action[loginIn, loginOut]{
		Method:  http.MethodPost,
		Path:    "/login",
		Binder:  httpez.BindJSON,
		Handler: h.login,
	})
	httpez.RegisterAction(e, httpez.Action[struct{}, listOut]{
		Method:  http.MethodGet,
		Path:    "/",
		Binder:  httpez.BindNone,
		Handler: h.list,
	})
	httpez.RegisterAction(e, httpez.Action[struct{}, getOut]{
		Method:  http.MethodGet,
		Path:    "/:id",
		Binder:  httpez.BindNone,
		Handler: h.get,
	})
	httpez.RegisterAction(e, httpez.Action[updateIn, resp.MessageBody]{
		Method:  http.MethodPut,
		Path:    "/:id",
		Binder:  httpez.BindJSON,
		Handler: h.update,
	})
	httpez.RegisterAction(e, httpez.Action[changePasswordIn, resp.MessageBody]{
		Method:  http.MethodPut,
		Path:    "/:id/change-password",
		Binder:  httpez.BindJSON,
		Handler: h.changePassword,
	})
	httpez.RegisterAction(e, httpez.Action[struct{}, resp.MessageBody]{
		Method:  http.MethodDelete,
		Path:    "/:id",
		Binder:  httpez.BindNone,
		Handler: h.delete,
	})
}

func (h *UserHandler) register(c *gin.Context, in *registerIn) (registerOut, error) {
	id, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		RoleID:    int64(in.RoleID),
	})
	if err != nil {
		return registerOut{}, err
	}
	return registerOut{Message: "User created successfully", UserID: id}, nil
}

func (h *UserHandler) login(c *gin.Context, in *loginIn) (loginOut, error) {
	u, err := h.svc.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		return loginOut{}, err
	}
	return loginOut{Message: "Login successful", User: u}, nil
}

func (h *UserHandler) list(c *gin.Context, _ *struct{}) (listOut, error) {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		return listOut{}, err
	}
	return listOut{Users: users}, nil
}

func (h *UserHandler) get(c *gin.Context, _ *struct{}) (getOut, error) {
	id, err := userID(c)
	if err != nil {
		return getOut{}, err
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		return getOut{}, err
	}
	return getOut{User: u}, nil
}

func (h *UserHandler) update(c *gin.Context, in *updateIn) (resp.MessageBody, error) {
	id, err := userID(c)
	if err != nil {
		return resp.MessageBody{}, err
	}
	if err := h.svc.UpdateProfile(c.Request.Context(), id, in.patch()); err != nil {
		return resp.MessageBody{}, err
	}
	return resp.Message("User updated successfully"), nil
}

func (h *UserHandler) changePassword(c *gin.Context, in *changePasswordIn) (resp.MessageBody, error) {
	id, err := userID(c)
	if err != nil {
		return resp.MessageBody{}, err
	}
	if err := h.svc.ChangePassword(c.Request.Context(), id, in.CurrentPassword, in.NewPassword); err != nil {
		return resp.MessageBody{}, err
	}
	return resp.Message("Password changed successfully"), nil
}

func (h *UserHandler) delete(c *gin.Context, _ *struct{}) (resp.MessageBody, error) {
	id, err := userID(c)
	if err != nil {
		return resp.MessageBody{}, err
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		return resp.MessageBody{}, err
	}
	return resp.Message("User deleted successfully"), nil
}

// userID parses :id. Anything that cannot name a row is reported as not found.
func userID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrUserNotFound
	}
	return id, nil
}
