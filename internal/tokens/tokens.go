package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opencoder/opencoder/backend/go-services/internal/config"
	"github.com/opencoder/opencoder/backend/go-services/internal/models"
)

// AccessClaims are the claims carried by an application access token. Sid is
// the opaque id of the server-side session holding the Google credentials;
// it is not the refresh token, so the claims never embed a long-lived
// credential.
type AccessClaims struct {
	Sub   string
	Name  string
	Email string
	Sid   string
}

// GenerateAccessToken creates a signed JWT access token for the user
func GenerateAccessToken(cfg *config.Config, u *models.User, sessionID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.Sub,
		"name":  u.Name,
		"email": u.Email,
		"sid":   sessionID,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// ParseAccessToken verifies the signature and expiry and returns the claims.
func ParseAccessToken(cfg *config.Config, raw string) (*AccessClaims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	out := &AccessClaims{}
	out.Sub, _ = mc["sub"].(string)
	out.Name, _ = mc["name"].(string)
	out.Email, _ = mc["email"].(string)
	out.Sid, _ = mc["sid"].(string)
	if out.Sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	return out, nil
}
