package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
)

// ProtectedResponse is the body of the sample protected route
type ProtectedResponse struct {
	Message string              `json:"message"`
	User    models.UserResponse `json:"user"`
}

// Protected returns the caller's profile. It only runs behind AuthMiddleware.
func Protected(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAccountFromContext(r)
	if user == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ProtectedResponse{
		Message: "You have accessed a protected route!",
		User:    user.ToResponse(),
	})
}

// HealthChecker is a dependency /health probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler reports whether the service's dependencies answer.
type HealthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]HealthChecker),
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Register adds a named dependency. Not safe to call once serving.
func (h *HealthHandler) Register(name string, check HealthChecker) {
	h.checks[name] = check
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	pkghttp.WriteJSON(w, status, resp)
}
