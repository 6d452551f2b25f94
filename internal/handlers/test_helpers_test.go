package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	"github.com/BradenHooton/authenticator/internal/services"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds claims and the account to the request context the way AuthMiddleware does
func WithAuthContext(req *http.Request, user *models.User) *http.Request {
	claims := &models.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	ctx = context.WithValue(ctx, auth.AccountContextKey, user)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch: %s", w.Body.String())

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch: %s", w.Body.String())

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc               func(ctx context.Context, in services.RegisterInput) (*models.AuthResponse, error)
	LoginFunc                  func(ctx context.Context, in services.LoginInput) (*models.LoginResult, error)
	CompleteTwoFactorLoginFunc func(ctx context.Context, tempToken, code, ipAddress string) (*models.AuthResponse, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) CompleteTwoFactorLogin(ctx context.Context, tempToken, code, ipAddress string) (*models.AuthResponse, error) {
	if m.CompleteTwoFactorLoginFunc == nil {
		return nil, models.ErrInvalidTwoFactorCode
	}
	return m.CompleteTwoFactorLoginFunc(ctx, tempToken, code, ipAddress)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	ForgotPasswordFunc  func(ctx context.Context, email, ipAddress string) error
	VerifyResetCodeFunc func(ctx context.Context, email, code, ipAddress string) (string, error)
	ResetPasswordFunc   func(ctx context.Context, email, token, newPassword, ipAddress string) error
}

func (m *MockPasswordResetService) ForgotPassword(ctx context.Context, email, ipAddress string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email, ipAddress)
}

func (m *MockPasswordResetService) VerifyResetCode(ctx context.Context, email, code, ipAddress string) (string, error) {
	if m.VerifyResetCodeFunc == nil {
		return "", models.ErrInvalidResetCode
	}
	return m.VerifyResetCodeFunc(ctx, email, code, ipAddress)
}

func (m *MockPasswordResetService) ResetPassword(ctx context.Context, email, token, newPassword, ipAddress string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidResetToken
	}
	return m.ResetPasswordFunc(ctx, email, token, newPassword, ipAddress)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	EnableFunc  func(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error)
	VerifyFunc  func(ctx context.Context, userID, code string) error
	DisableFunc func(ctx context.Context, userID string) error
}

func (m *MockTwoFactorService) Enable(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnableFunc(ctx, userID)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, userID, code string) error {
	if m.VerifyFunc == nil {
		return models.ErrTwoFactorNotEnabled
	}
	return m.VerifyFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, userID)
}
