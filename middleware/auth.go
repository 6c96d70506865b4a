package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/friendhub/server/api/response"
	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Gin context keys set by the Guard.
const (
	UserIDKey = "user_id"
	ClaimsKey = "auth_claims"
	TokenKey  = "auth_token"
)

// 401 reasons.
const (
	ReasonMissingToken = "missing authorization token"
	ReasonInvalidToken = "invalid token"
	ReasonRevoked      = "token has been revoked"
)

const revokedPrefix = "revoked:"

// ActivityRecorder is notified after every authenticated request.
// Implementations throttle their own writes.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID int64) error
}

// Guard verifies bearer tokens. Paths in the public allowlist and routes
// opted out with Public pass through; a valid token on them still
// populates the identity.
type Guard struct {
	secret string
	cache  cache.Cache
	log    *zap.Logger

	mu           sync.RWMutex
	publicPaths  map[string]struct{} // request paths, BASE_URL applied
	publicRoutes map[string]struct{} // gin route patterns
	activity     ActivityRecorder
}

// NewGuard builds a Guard. Every entry in sec.PublicPaths is prefixed with
// baseURL before being matched against the request path.
func NewGuard(sec config.SecurityConfig, baseURL string, c cache.Cache, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{
		secret:       sec.JWTSecret,
		cache:        c,
		log:          log,
		publicPaths:  make(map[string]struct{}, len(sec.PublicPaths)),
		publicRoutes: make(map[string]struct{}),
	}
	for _, p := range sec.PublicPaths {
		g.publicPaths[joinPath(baseURL, p)] = struct{}{}
	}
	return g
}

func joinPath(base, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(base, "/") + p
}

// Public opts a route pattern (as returned by gin's FullPath) out of
// mandatory authentication.
func (g *Guard) Public(fullPath string) {
	g.mu.Lock()
	g.publicRoutes[fullPath] = struct{}{}
	g.mu.Unlock()
}

// OnActivity installs the recorder called after successful authentication.
func (g *Guard) OnActivity(r ActivityRecorder) {
	g.mu.Lock()
	g.activity = r
	g.mu.Unlock()
}

func (g *Guard) isPublic(c *gin.Context) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.publicPaths[c.Request.URL.Path]; ok {
		return true
	}
	_, ok := g.publicRoutes[c.FullPath()]
	return ok
}

// Handler returns the gin middleware.
func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		public := g.isPublic(c)

		tokenStr, present := bearer(c.GetHeader("Authorization"))
		if !present {
			if public {
				c.Next()
				return
			}
			response.Unauthorized(c, ReasonMissingToken)
			return
		}

		claims, reason := g.verify(c.Request.Context(), tokenStr)
		if reason != "" {
			if public {
				c.Next()
				return
			}
			response.Unauthorized(c, reason)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, tokenStr)
		g.recordActivity(c, claims.UserID)
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return tok, tok != ""
}

func (g *Guard) verify(ctx context.Context, tokenStr string) (*Claims, string) {
	claims, err := ParseToken(tokenStr, g.secret)
	if err != nil {
		return nil, ReasonInvalidToken
	}
	if g.cache == nil {
		return claims, ""
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	revoked, err := g.cache.Exists(cacheCtx, revokedPrefix+tokenStr)
	if err != nil {
		// Fail closed: a token we cannot check is not trusted.
		g.log.Warn("revocation lookup failed", zap.Error(err), zap.Int64("user_id", claims.UserID))
		return nil, ReasonInvalidToken
	}
	if revoked {
		return nil, ReasonRevoked
	}
	return claims, ""
}

func (g *Guard) recordActivity(c *gin.Context, userID int64) {
	g.mu.RLock()
	r := g.activity
	g.mu.RUnlock()
	if r == nil {
		return
	}
	if err := r.RecordActivity(c.Request.Context(), userID); err != nil {
		g.log.Warn("record activity failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("trace_id", GetTraceID(c)),
		)
	}
}

// Revoke blocks tokenStr until it would have expired anyway.
func (g *Guard) Revoke(ctx context.Context, tokenStr string, claims *Claims) error {
	ttl := claims.Remaining()
	if ttl <= 0 || g.cache == nil {
		return nil
	}
	return g.cache.Set(ctx, revokedPrefix+tokenStr, "1", ttl)
}

// GetUserID returns the authenticated user ID, or 0 when the request is
// anonymous.
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetIdentity returns the verified claims and raw token of the request.
func GetIdentity(c *gin.Context) (*Claims, string, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, "", false
	}
	return v.(*Claims), c.GetString(TokenKey), true
}
