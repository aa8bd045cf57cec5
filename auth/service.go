package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals a missing, malformed, expired or wrongly signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTouchpointMismatch signals a TouchpointId header that disagrees with the token.
	ErrTouchpointMismatch = errors.New("auth: touchpoint does not match token")
)

const touchpointClaim = "touchpointId"

// Service issues and verifies touchpoint bearer tokens.
type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService creates a token service signing with HS256 and the given secret.
func NewService(secret string) *Service {
	return &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueToken creates a token identifying touchpointID, valid for ttl.
func (s *Service) IssueToken(touchpointID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(touchpointID) == "" {
		return "", fmt.Errorf("auth: touchpoint id is required")
	}
	now := s.now()
	claims := jwt.MapClaims{
		touchpointClaim: touchpointID,
		"iat":           now.Unix(),
		"exp":           now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates tokenString and returns its touchpoint id.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	touchpointID, ok := claims[touchpointClaim].(string)
	if !ok || touchpointID == "" {
		return "", fmt.Errorf("%w: missing %s claim", ErrInvalidToken, touchpointClaim)
	}
	return touchpointID, nil
}

// ResolveTouchpoint verifies an Authorization header value and reconciles it
// with the TouchpointId header. An empty header value adopts the token's.
func (s *Service) ResolveTouchpoint(authorization, header string) (string, error) {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", ErrInvalidToken
	}
	touchpointID, err := s.VerifyToken(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if header != "" && header != touchpointID {
		return "", ErrTouchpointMismatch
	}
	return touchpointID, nil
}
