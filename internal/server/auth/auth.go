package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/op"
)

// GenerateJWTToken mints an admin session token. expiresMin of 0 means the
// 15 minute default, -1 means a 30 day session.
func GenerateJWTToken(expiresMin int) (string, string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    conf.APP_NAME,
	}
	if expiresMin == 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(15 * time.Minute))
	} else if expiresMin > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(expiresMin) * time.Minute))
	} else if expiresMin == -1 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(30 * 24 * time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret())
	if err != nil {
		return "", "", err
	}
	return token, claims.ExpiresAt.Format(time.RFC3339), nil
}

func VerifyJWTToken(token string) bool {
	jwtToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret(), nil
	})
	if err != nil || !jwtToken.Valid {
		return false
	}
	return true
}

// The signing secret derives from the stored credentials, so a password
// change invalidates outstanding sessions.
func jwtSecret() []byte {
	user := op.UserGet()
	return []byte(user.Username + user.Password)
}
