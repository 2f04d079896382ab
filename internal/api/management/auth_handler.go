package management

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/CaioWing/Tether/internal/api/middleware"
	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/auth"
)

type AuthHandler struct {
	jwtMgr *auth.JWTManager
	admin  *auth.Admin
}

func NewAuthHandler(jwtMgr *auth.JWTManager, admin *auth.Admin) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr, admin: admin}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Operator  string `json:"operator"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.admin.Verify(req.Username, req.Password) {
		response.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issue(w, h.admin.User())
}

// Refresh reissues a token for the operator of a still-valid one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	operator := middleware.Operator(r.Context())
	if operator == "" {
		response.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	h.issue(w, operator)
}

func (h *AuthHandler) issue(w http.ResponseWriter, operator string) {
	token, expiresAt, err := h.jwtMgr.Issue(operator)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	response.JSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Operator:  operator,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
