package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	actorIDKey  = "actor_id"
	userRoleKey = "userRole"
)

var errMissingToken = errors.New("missing bearer token")

// Auth validates an HS256 bearer token and stores the "sub" claim as the
// actor id and the "role" claim as the user role. With required=false a
// request without a token passes through anonymously, but a bad token is
// still rejected.
func Auth(secret string, required bool) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if errors.Is(err, errMissingToken) && !required {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
			return
		}

		claims := jwt.MapClaims{}
		_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		sub, _ := claims.GetSubject()
		actor, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || actor <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token subject must be a user id", "code": "unauthorized"})
			return
		}
		c.Set(actorIDKey, actor)
		if role, ok := claims["role"].(string); ok {
			c.Set(userRoleKey, strings.ToLower(strings.TrimSpace(role)))
		}
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

// ActorID returns the authenticated user id, or 0 for anonymous requests.
func ActorID(c *gin.Context) int64 {
	if v, ok := c.Get(actorIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
