// Package session issues and validates the application session token. The
// registration flow only reads it (entry resolution) and re-issues it once
// (after provisioning); everything else about the session belongs to the
// wider platform.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"enroll/internal/platform/middleware"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
)

// Claims is the JWT payload of a session token.
type Claims struct {
	UserID         string `json:"user_id"`
	EmailVerified  bool   `json:"email_verified"`
	PhoneVerified  bool   `json:"phone_verified"`
	OnboardingStep string `json:"onboarding_step"`
	jwt.RegisteredClaims
}

// Service signs and checks HS256 session tokens.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewService(signingKey string, ttl time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     "enroll",
		ttl:        ttl,
	}
}

// Issue mints a session token for a provisioned account.
func (s *Service) Issue(userID id.UserID, emailVerified, phoneVerified bool, onboardingStep string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:         userID.String(),
		EmailVerified:  emailVerified,
		PhoneVerified:  phoneVerified,
		OnboardingStep: onboardingStep,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}
	return signed, nil
}

// Validate implements middleware.SessionValidator.
func (s *Service) Validate(tokenString string) (*middleware.SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session subject")
	}

	return &middleware.SessionClaims{
		UserID:         userID,
		EmailVerified:  claims.EmailVerified,
		PhoneVerified:  claims.PhoneVerified,
		OnboardingStep: claims.OnboardingStep,
	}, nil
}
