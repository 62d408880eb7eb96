package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/echorelay-project/echorelay/internal/config"
)

// Permission levels for RBAC.
const (
	PermMonitor   = "monitor"   // read stats, peers and servers
	PermControl   = "control"   // moderate accounts
	PermConfigure = "configure" // change configuration
)

// AllPermissions lists every permission in ascending privilege.
var AllPermissions = []string{PermMonitor, PermControl, PermConfigure}

const tokenIssuer = "echorelay"

// Claims are the JWT claims accepted by the API.
type Claims struct {
	Perms []string `json:"perms"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 bearer token for subject carrying perms.
func IssueToken(secret, subject string, perms []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no JWT secret configured")
	}
	for _, p := range perms {
		if !slices.Contains(AllPermissions, p) {
			return "", fmt.Errorf("unknown permission %q", p)
		}
	}
	now := time.Now()
	claims := Claims{
		Perms: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a bearer token against secret.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware verifies bearer tokens and enforces permissions.
type AuthMiddleware struct {
	cfg *config.Config
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

func (am *AuthMiddleware) settings() config.APIConfig {
	return am.cfg.Snapshot().API
}

// RequireAuth rejects requests without a valid bearer token. When auth is
// disabled every request acts as a local admin.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := am.settings()
		if settings.AuthDisabled {
			c.Set("subject", "local-admin")
			c.Set("perms", AllPermissions)
			c.Next()
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid authorization header",
			})
			return
		}

		claims, err := ParseToken(settings.JWTSecret, token)
		if err != nil {
			log.Debug().Err(err).Str("client_ip", c.ClientIP()).Msg("rejected API token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("perms", claims.Perms)
		c.Next()
	}
}

// RequirePermission rejects requests whose token lacks permission.
func (am *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, _ := c.Get("perms")
		granted, _ := perms.([]string)
		if !slices.Contains(granted, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": permission,
			})
			return
		}
		c.Next()
	}
}

// maxTrackedClients bounds the per-IP limiter cache.
const maxTrackedClients = 4096

// RateLimiter limits requests per client IP with a token bucket each.
type RateLimiter struct {
	rps     int
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of twice that. A non-positive rps disables limiting.
func NewRateLimiter(rps int) *RateLimiter {
	rl := &RateLimiter{rps: rps}
	if rps > 0 {
		rl.clients, _ = lru.New[string, *rate.Limiter](maxTrackedClients)
	}
	return rl
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if l, ok := rl.clients.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.rps), rl.rps*2)
	if prev, ok, _ := rl.clients.PeekOrAdd(ip, l); ok {
		return prev
	}
	return l
}

// Middleware returns a Gin middleware that rate limits by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds security-related HTTP headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Server", "EchoRelay")
		c.Next()
	}
}

// RequestLogger logs incoming HTTP requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Debug().
			Str("component", "api").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("api request")
	}
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
