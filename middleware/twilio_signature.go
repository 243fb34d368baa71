package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/utils"
)

// SignatureHeader is set by Twilio on every webhook.
const SignatureHeader = "X-Twilio-Signature"

// TwilioSignature verifies webhook signatures against baseURL plus the request URI.
// When enabled is false every request passes.
func TwilioSignature(enabled bool, authToken, baseURL string, logger *zap.Logger) gin.HandlerFunc {
	base := strings.TrimRight(baseURL, "/")
	return func(ctx *gin.Context) {
		if !enabled {
			ctx.Next()
			return
		}
		if authToken == "" || base == "" {
			utils.AbortError(ctx, http.StatusInternalServerError, utils.CodeNotConfigured, "webhook signature validation not configured")
			return
		}
		if err := ctx.Request.ParseForm(); err != nil {
			utils.AbortError(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid form body")
			return
		}
		fullURL := base + ctx.Request.URL.RequestURI()
		if !gateway.ValidSignature(authToken, fullURL, ctx.Request.PostForm, ctx.GetHeader(SignatureHeader)) {
			logger.Warn("rejected webhook with bad signature", zap.String("path", ctx.Request.URL.Path), zap.String("ip", ctx.ClientIP()))
			utils.AbortError(ctx, http.StatusForbidden, utils.CodeInvalidSignature, "invalid signature")
			return
		}
		ctx.Next()
	}
}
