package user

import (
	"bytes"
	"collaborative-canvas/internal/auth"
	"collaborative-canvas/internal/domain"
	apperrors "collaborative-canvas/internal/errors"
	"collaborative-canvas/internal/middleware"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Register(user *domain.User) error {
	return m.Called(user).Error(0)
}

func (m *MockService) Login(email, password string) (*domain.User, error) {
	args := m.Called(email, password)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) DeactivateUser(id string) error {
	return m.Called(id).Error(0)
}

func setupRouter(service Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.Init("test-secret")

	router := gin.New()
	router.Use(middleware.ErrorHandler())

	handler := NewHandler(service)
	router.POST("/register", handler.Register)
	router.POST("/login", handler.Login)
	router.GET("/profile", func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Next()
	}, handler.GetProfile)
	return router
}

func performRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	service := &MockService{}
	service.On("Register", mock.Anything).
		Run(func(args mock.Arguments) {
			u := args.Get(0).(*domain.User)
			u.ID = "u1"
		}).
		Return(nil)

	router := setupRouter(service)
	body := []byte(`{"name":"Alice","email":"alice@example.com","password":"secret1"}`)
	w := performRequest(router, http.MethodPost, "/register", body)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		User domain.SafeUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	// Password material never leaves the server.
	assert.NotContains(t, w.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"a@example.com","password":"secret1"}`},
		{"bad email", `{"name":"Alice","email":"nope","password":"secret1"}`},
		{"short password", `{"name":"Alice","email":"a@example.com","password":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockService{}
			router := setupRouter(service)

			w := performRequest(router, http.MethodPost, "/register", []byte(tt.body))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			service.AssertNotCalled(t, "Register", mock.Anything)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service := &MockService{}
	service.On("Register", mock.Anything).
		Return(apperrors.UnprocessableEntity("User already registered", nil))

	router := setupRouter(service)
	body := []byte(`{"name":"Alice","email":"alice@example.com","password":"secret1"}`)
	w := performRequest(router, http.MethodPost, "/register", body)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"User already registered"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	service := &MockService{}
	service.On("Login", "alice@example.com", "secret1").
		Return(&domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com", IsActive: true}, nil)

	router := setupRouter(service)
	body := []byte(`{"email":"alice@example.com","password":"secret1"}`)
	w := performRequest(router, http.MethodPost, "/login", body)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string          `json:"access_token"`
		User        domain.SafeUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)

	// The issued token round-trips through our own verifier.
	parsed, err := auth.VerifyJWT(resp.AccessToken)
	require.NoError(t, err)
	ident, err := auth.IdentityFromToken(parsed)
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.UserID)
	assert.Equal(t, "Alice", ident.Name)
}

func TestLoginWrongPassword(t *testing.T) {
	service := &MockService{}
	service.On("Login", "alice@example.com", "wrong").
		Return(nil, apperrors.UnprocessableEntity("Wrong password", nil))

	router := setupRouter(service)
	body := []byte(`{"email":"alice@example.com","password":"wrong"}`)
	w := performRequest(router, http.MethodPost, "/login", body)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	service := &MockService{}
	service.On("Login", "ghost@example.com", "secret1").
		Return(nil, apperrors.Unauthorized("User not found", nil))

	router := setupRouter(service)
	body := []byte(`{"email":"ghost@example.com","password":"secret1"}`)
	w := performRequest(router, http.MethodPost, "/login", body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProfile(t *testing.T) {
	org := "org-1"
	service := &MockService{}
	service.On("GetUserByID", mock.Anything, "u1").
		Return(&domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com", OrganizationID: &org, IsActive: true}, nil)

	router := setupRouter(service)
	w := performRequest(router, http.MethodGet, "/profile", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var got domain.SafeUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.ID)
	require.NotNil(t, got.OrganizationID)
	assert.Equal(t, "org-1", *got.OrganizationID)
}
