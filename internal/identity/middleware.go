package identity

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/forkledger/pkg/address"
)

// AdminSecretHeader carries the static admin secret.
const AdminSecretHeader = "X-Admin-Secret"

const (
	ctxCallerClaims = "ledger_caller_claims"
	ctxCaller       = "ledger_caller"
)

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token and injects the caller address into the context.
func RequireCaller(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer caller token required",
				"code":  "unauthenticated",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
				"code":  "unauthenticated",
			})
			return
		}
		caller, _ := claims.Caller() // validated by Verify

		c.Set(ctxCallerClaims, claims)
		c.Set(ctxCaller, caller)
		c.Next()
	}
}

// CallerFromCtx retrieves the address injected by RequireCaller.
func CallerFromCtx(c *gin.Context) (address.Address, bool) {
	v, ok := c.Get(ctxCaller)
	if !ok {
		return address.Zero, false
	}
	a, ok := v.(address.Address)
	return a, ok
}

// ClaimsFromCtx retrieves the caller token claims injected by RequireCaller.
func ClaimsFromCtx(c *gin.Context) *CallerClaims {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	return claims
}

// RequireAdmin returns a Gin middleware that compares the admin secret header
// in constant time. An empty secret disables every admin route.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin routes are disabled",
				"code":  "forbidden",
			})
			return
		}
		got := c.GetHeader(AdminSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin secret",
				"code":  "unauthenticated",
			})
			return
		}
		c.Next()
	}
}
