package jwt

import (
	"errors"
	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	jwt2 "github.com/agile-platform/backend/internal/domain/auth/jwt"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/agile-platform/backend/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"time"
)

const leeway = 30 * time.Second

// JwtUtilImpl signs access and refresh tokens with separate HMAC secrets so a
// refresh token can never be replayed as an access token.
type JwtUtilImpl struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

func NewJWTUtil(cfg *config.Config) (*JwtUtilImpl, error) {
	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, customErrors.WrapInternal(errors.New("empty secret"), "NewJWTUtil")
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return nil, customErrors.WrapInternal(errors.New("access and refresh secrets must differ"), "NewJWTUtil")
	}

	return &JwtUtilImpl{
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           time.Now,
	}, nil
}

func (j *JwtUtilImpl) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := j.now()
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	if j.audience != "" {
		rc.Audience = jwt.ClaimStrings{j.audience}
	}
	return rc
}

func identityClaims(id model.Identity) jwt2.IdentityClaims {
	return jwt2.IdentityClaims{UserID: id.UserID.String(), Email: id.Email, Role: id.Role}
}

func (j *JwtUtilImpl) GenerateAccessToken(id model.Identity) (token string, exp time.Time, jti string, err error) {
	claims := jwt2.AccessClaims{
		RegisteredClaims: j.registered(id.UserID.String(), j.accessTTL),
		IdentityClaims:   identityClaims(id),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.accessSecret)
	if err != nil {
		return "", time.Time{}, "", customErrors.WrapInternal(err, "sign access token")
	}

	return signed, claims.ExpiresAt.Time, claims.ID, nil
}

func (j *JwtUtilImpl) GenerateRefreshToken(id model.Identity) (token string, exp time.Time, jti string, err error) {
	claims := jwt2.RefreshClaims{
		RegisteredClaims: j.registered(id.UserID.String(), j.refreshTTL),
		IdentityClaims:   identityClaims(id),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.refreshSecret)
	if err != nil {
		return "", time.Time{}, "", customErrors.WrapInternal(err, "sign refresh token")
	}

	return signed, claims.ExpiresAt.Time, claims.ID, nil
}

func (j *JwtUtilImpl) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}
	return opts
}

func (j *JwtUtilImpl) ValidateAccessToken(raw string) (jwt2.AccessClaims, error) {
	claims := &jwt2.AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.accessSecret, nil
	}, j.parserOptions()...)
	if err != nil || !token.Valid {
		return jwt2.AccessClaims{}, customErrors.ErrInvalidToken
	}
	if claims.Subject != claims.UserID {
		return jwt2.AccessClaims{}, customErrors.ErrInvalidToken
	}
	return *claims, nil
}

func (j *JwtUtilImpl) ValidateRefreshToken(raw string) (jwt2.RefreshClaims, error) {
	claims := &jwt2.RefreshClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.refreshSecret, nil
	}, j.parserOptions()...)
	if err != nil || !token.Valid {
		return jwt2.RefreshClaims{}, customErrors.ErrInvalidToken
	}
	if claims.Subject != claims.UserID {
		return jwt2.RefreshClaims{}, customErrors.ErrInvalidToken
	}
	return *claims, nil
}
