package jwt

import (
	"errors"
	"time"

	"hirexp-auth/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrMissingClaim = errors.New("required claim missing")

type Manager struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewManager(secret string, accessTTL time.Duration) *Manager {
	return &Manager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// AccessToken is a signed token plus the identifiers needed to revoke it later.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

func (m *Manager) GenerateAccessToken(user *model.User) (*AccessToken, error) {
	now := m.now()
	exp := now.Add(m.accessTTL)
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":    user.ID.String(),
		"email":  user.Email,
		"role":   string(user.Role),
		"status": string(user.Status),
		"jti":    jti,
		"iat":    now.Unix(),
		"exp":    exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, err
	}

	return &AccessToken{Token: signed, JTI: jti, ExpiresAt: time.Unix(exp.Unix(), 0)}, nil
}

func (m *Manager) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// Claims is the typed view over a validated access token.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      model.Role
	JTI       string
	ExpiresAt time.Time
}

func ParseClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, ErrMissingClaim
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, err
	}

	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	jti, _ := claims["jti"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrMissingClaim
	}

	return &Claims{
		UserID:    userID,
		Email:     email,
		Role:      model.Role(role),
		JTI:       jti,
		ExpiresAt: exp.Time,
	}, nil
}
