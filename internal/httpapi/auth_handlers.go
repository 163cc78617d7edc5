package httpapi

import (
	"net/http"
	"strings"

	"siteops.kr/internal/audit"
	"siteops.kr/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := auth.Authenticate(r.Context(), a.users, req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(u.ID, string(u.GlobalRole), u.OrganizationID, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id": u.ID,
		"role":    string(u.GlobalRole),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(a.tokenTTL.Seconds()),
		UserID:    u.ID,
		Role:      string(u.GlobalRole),
	})
}
