package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/HansOr04/LeteragoBackend/internal/helpers"
	"github.com/HansOr04/LeteragoBackend/internal/models"
)

func parseToken(c *gin.Context) (jwt.MapClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil, jwt.ErrTokenMalformed
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims jwt.MapClaims) {
	if userID, ok := claims["user_id"].(string); ok {
		c.Set("user_id", userID)
	}
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

// JWTAuthMiddleware rejects requests without a valid bearer token.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseToken(c)
		if err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Missing or invalid credentials.")
			c.Abort()
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the identity when a token is present
// but never rejects. Read endpoints use this so anonymous callers still
// get the public view.
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := parseToken(c); err == nil {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireMinRole passes any caller whose role rank is at least the
// required rank. Runs after JWTAuthMiddleware.
func RequireMinRole(role string) gin.HandlerFunc {
	required := models.RoleRank(role)
	return func(c *gin.Context) {
		callerRole, _ := c.Get("role")
		roleName, _ := callerRole.(string)
		if models.RoleRank(roleName) < required {
			helpers.RespondWithError(c, http.StatusForbidden, "Insufficient role for this operation.")
			c.Abort()
			return
		}
		c.Next()
	}
}
