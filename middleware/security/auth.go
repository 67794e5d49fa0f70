package security

import (
	"net/http"
	"strings"

	"PRoom/logger"
	"PRoom/tools/errs"
	jwt "PRoom/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CtxCallerKey holds the authenticated user id in the gin context.
const CtxCallerKey = "callerId"

const HeaderUserID = "X-User-Id"

type Options struct {
	JWT jwt.Options
	// TrustHeader accepts X-User-Id as is, for deployments behind a
	// gateway that already authenticated the game server.
	TrustHeader bool
	// OnReject, when set, sees every refused request before it is answered.
	OnReject func(c *gin.Context, err error)
}

// Middleware resolves the caller id from a bearer token, or from the
// trusted header when no token is sent. Requests without an identity are
// refused before any handler runs.
func Middleware(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := resolve(c, opts)
		if err != nil {
			logger.Debug("caller rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			if opts.OnReject != nil {
				opts.OnReject(c, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ResultCode": errs.CodeIdentityMismatch,
				"Message":    "Unauthenticated caller",
			})
			return
		}
		c.Set(CtxCallerKey, caller)
		c.Next()
	}
}

func resolve(c *gin.Context, opts Options) (string, error) {
	if tok := bearer(c.GetHeader("Authorization")); tok != "" {
		if len(opts.JWT.Secret) == 0 {
			return "", errs.New("bearer token sent but no secret configured")
		}
		claims, err := jwt.Verify(opts.JWT, tok, "")
		if err != nil {
			return "", err
		}
		return claims.Subject()
	}
	if opts.TrustHeader {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			return id, nil
		}
	}
	return "", errs.New("no caller identity")
}

func bearer(authz string) string {
	authz = strings.TrimSpace(authz)
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// CallerID returns the id set by Middleware.
func CallerID(c *gin.Context) string {
	return c.GetString(CtxCallerKey)
}
