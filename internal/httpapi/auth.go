package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/emse-students/Le-Cercle/pkg/cercle"
)

const (
	contextKeyPrincipal = "principal"
	headerRequestID     = "X-Request-Id"
	claimSubject        = "sub"
	claimRole           = "role"
)

// requestIDMiddleware tags every request with a uuid, reusing the caller's
// id when one is supplied.
func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Header(headerRequestID, requestID)
		ctx.Set(headerRequestID, requestID)
		ctx.Next()
	}
}

// authMiddleware validates the bearer token and stores the resulting
// Principal in the request context. The core trusts this identity.
func authMiddleware(signingKey []byte) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		principal, err := principalFromHeader(ctx.GetHeader("Authorization"), signingKey)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", err.Error()))
			return
		}
		ctx.Set(contextKeyPrincipal, principal)
		ctx.Next()
	}
}

func principalFromHeader(header string, signingKey []byte) (cercle.Principal, error) {
	if header == "" {
		return cercle.Principal{}, errors.New("missing bearer token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return cercle.Principal{}, errors.New("invalid authorization header")
	}
	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return signingKey, nil
	})
	if err != nil || !token.Valid {
		return cercle.Principal{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return cercle.Principal{}, errors.New("invalid token claims")
	}
	subject, ok := claims[claimSubject].(string)
	if !ok {
		return cercle.Principal{}, errors.New("missing subject claim")
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return cercle.Principal{}, errors.New("invalid subject claim")
	}
	rawRole, ok := claims[claimRole].(string)
	if !ok {
		return cercle.Principal{}, errors.New("missing role claim")
	}
	role, err := cercle.ParseRole(rawRole)
	if err != nil {
		return cercle.Principal{}, errors.New("invalid role claim")
	}
	return cercle.Principal{UserID: cercle.UserID(userID), Role: role}, nil
}

func getPrincipal(ctx *gin.Context) (cercle.Principal, bool) {
	value, ok := ctx.Get(contextKeyPrincipal)
	if !ok {
		return cercle.Principal{}, false
	}
	principal, ok := value.(cercle.Principal)
	return principal, ok
}
