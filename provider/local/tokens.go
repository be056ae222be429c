package local

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authsession "github.com/goliatone/go-authsession"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Claims are carried by credential and reset tokens
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Purpose       string `json:"purpose"`
}

// UserID returns the subject claim
func (c *Claims) UserID() string {
	return c.Subject
}

func (p *Provider) mintToken(user authsession.ProviderUser, purpose string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Purpose:       purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// ValidateToken parses a credential token minted by CurrentToken. Expired
// tokens return authsession.ErrAuthorizationExpired.
func (p *Provider) ValidateToken(tokenString string) (*Claims, error) {
	return p.parseToken(tokenString, PurposeID)
}

func (p *Provider) parseToken(tokenString, purpose string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.cfg.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(p.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			p.logger.Error("local provider encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.cfg.SigningKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authsession.ErrAuthorizationExpired.Clone()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "malformed token").
			WithTextCode("TOKEN_MALFORMED").
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, goerrors.New("unable to decode token claims", goerrors.CategoryAuth).
			WithTextCode("TOKEN_MALFORMED").
			WithCode(goerrors.CodeUnauthorized)
	}

	if claims.Purpose != purpose {
		return nil, goerrors.New("token purpose mismatch", goerrors.CategoryAuth).
			WithTextCode("TOKEN_MALFORMED").
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{
				"expected": purpose,
				"actual":   claims.Purpose,
			})
	}

	return claims, nil
}
