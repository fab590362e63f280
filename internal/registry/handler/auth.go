package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/forkledger/internal/identity"
)

// AuthHandler issues caller tokens. Token issuance is an operator action
// guarded by the admin secret; the ledger itself never sees passwords.
type AuthHandler struct {
	tokens      *identity.TokenIssuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. An empty adminSecret disables
// token issuance.
func NewAuthHandler(tokens *identity.TokenIssuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, adminSecret: adminSecret, logger: logger}
}

// Register mounts the auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/token", identity.RequireAdmin(h.adminSecret), h.IssueToken)
		auth.GET("/whoami", identity.RequireCaller(h.tokens), h.WhoAmI)
	}
}

type issueTokenRequest struct {
	Address string `json:"address" binding:"required"`
}

// TokenResponse is returned by POST /auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Address   string    `json:"address"`
}

// IssueToken handles POST /auth/token: mints a caller token for an address.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	tok, exp, err := h.tokens.Issue(addr)
	if err != nil {
		h.logger.Error("issue caller token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed", "code": "internal"})
		return
	}

	h.logger.Info("caller token issued",
		zap.String("address", addr.String()),
		zap.Time("expires_at", exp),
	)
	c.JSON(http.StatusOK, TokenResponse{
		Token:     tok,
		TokenType: "Bearer",
		ExpiresAt: exp,
		Address:   addr.String(),
	})
}

// WhoAmI handles GET /auth/whoami: echoes the authenticated caller.
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	resp := gin.H{"address": caller(c).String()}
	if claims != nil && claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}
