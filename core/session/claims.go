package session

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

var (
	ErrTokenInvalid = errors.New("invalid auth token")
	ErrTokenExpired = errors.New("auth token expired")

	nowFunc = time.Now // mockable
)

// Claims represents the authorization claims transmitted via the authToken
// cookie.
type Claims struct {
	jwt.StandardClaims
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photo,omitempty"`
}

func GetClaims(rec Record, conf *core.Config) *Claims {
	now := nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   rec.ID,
			Audience:  "Academia",
			ExpiresAt: now.Add(conf.Session.TokenExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:     user.NormalizeRole(rec.Role),
		Name:     rec.Name,
		Email:    rec.Email,
		PhotoURL: rec.PhotoURL,
	}
}

// GenerateToken generates a signed token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// DecodeToken extracts the Claims of a compact token string.
//
// With verify on, the HMAC signature is checked against the configured
// secret. With verify off only the payload segment is decoded; signature
// trust is delegated to the issuer. Expiry and structure are checked either
// way: a token that does not decode, carries no expiry, or is past its
// expiry is invalid.
func DecodeToken(tokenStr string, conf *core.Config, verify bool) (*Claims, error) {
	claims := new(Claims)

	if verify {
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return []byte(conf.SecretKey), nil
		})
		if err != nil {
			if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors&jwt.ValidationErrorExpired != 0 {
				return nil, ErrTokenExpired
			}
			return nil, ErrTokenInvalid
		}
		if !token.Valid {
			return nil, ErrTokenInvalid
		}
	} else {
		if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
			return nil, ErrTokenInvalid
		}
	}

	if claims.ExpiresAt == 0 {
		return nil, ErrTokenInvalid
	}
	if nowFunc().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	claims.Role = user.NormalizeRole(claims.Role)
	return claims, nil
}

// Record maps token claims onto the cookie/store record shape.
func (c *Claims) Record() Record {
	return Record{
		ID:       c.Subject,
		Name:     c.Name,
		Email:    c.Email,
		Role:     user.NormalizeRole(c.Role),
		PhotoURL: c.PhotoURL,
	}
}
