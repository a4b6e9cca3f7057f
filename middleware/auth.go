package middleware

import (
	"strings"

	"storefront/apperrors"
	"storefront/models"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	ClaimsKey = "claims"
	UserIDKey = "userID"
)

// TokenValidator parses bearer tokens.
type TokenValidator interface {
	Validate(token string) (*services.Claims, error)
}

// Auth requires a valid, unrevoked bearer token. A missing header is 401, a
// bad or expired token 403, and a logged-out token 401.
func Auth(tokens TokenValidator, denylist services.TokenDenylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			apperrors.Abort(c, apperrors.Unauthorized("Access token required"))
			return
		}
		raw, found := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !found || raw == "" {
			apperrors.Abort(c, apperrors.Unauthorized("Access token required"))
			return
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			apperrors.Abort(c, err)
			return
		}
		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apperrors.Abort(c, apperrors.Forbidden("Invalid token claims"))
			return
		}

		revoked, err := denylist.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			zap.L().Warn("Token denylist unavailable", zap.Error(err))
		} else if revoked {
			apperrors.Abort(c, apperrors.Unauthorized("Token has been revoked"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || claims.Role != models.RoleAdmin {
			apperrors.Abort(c, apperrors.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

// RequireConfirmHeader guards destructive operations behind an explicit
// "<header>: true".
func RequireConfirmHeader(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetHeader(header), "true") {
			apperrors.Abort(c, apperrors.Validation("Confirmation required", header+": true header must be set"))
			return
		}
		c.Next()
	}
}

func GetClaims(c *gin.Context) *services.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*services.Claims); ok {
			return claims
		}
	}
	return nil
}

func GetUserID(c *gin.Context) primitive.ObjectID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(primitive.ObjectID); ok {
			return id
		}
	}
	return primitive.NilObjectID
}
