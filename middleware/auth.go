package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/lifesignal/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated owner ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the owner's email inside Gin context.
	ContextEmailKey = "email"
)

// AuthRequired ensures the request carries a valid bearer JWT signed with secret.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortError(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "authorization header missing")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.AbortError(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.AbortError(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "empty bearer token")
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.AbortError(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Next()
	}
}

// UserID returns the authenticated owner ID set by AuthRequired.
func UserID(ctx *gin.Context) string {
	return ctx.GetString(ContextUserIDKey)
}
