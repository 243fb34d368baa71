package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/lifesignal/utils"
)

// CronTokenHeader carries the shared secret on tick requests.
const CronTokenHeader = "x-cron-token"

// CronAuth guards tick endpoints with a shared secret taken from the x-cron-token
// header or the token query parameter. An unset secret rejects every call.
func CronAuth(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if secret == "" {
			utils.AbortError(ctx, http.StatusInternalServerError, utils.CodeNotConfigured, "cron secret not configured")
			return
		}
		token := ctx.GetHeader(CronTokenHeader)
		if token == "" {
			token = ctx.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			utils.AbortError(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
			return
		}
		ctx.Next()
	}
}
