// Package auth covers password hashing and JWT issuance for the API.
package auth

import (
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/swscloud/reviewd/internal/errors"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// HashPassword hashes a plaintext password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, errors.SeverityError, "hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenIssuer signs and verifies HS256 access/refresh token pairs.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer builds an issuer. Access TTL is in minutes, refresh TTL in
// days, matching the config knobs.
func NewTokenIssuer(secret string, accessMinutes, refreshDays int) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshDays) * 24 * time.Hour,
	}
}

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (ti *TokenIssuer) issue(userID int64, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(strconv.FormatInt(userID, 10)).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim("typ", typ).
		Build()
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, errors.SeverityError, "build token")
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), ti.secret))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, errors.SeverityError, "sign token")
	}
	return string(signed), nil
}

// IssuePair mints an access+refresh pair for a user.
func (ti *TokenIssuer) IssuePair(userID int64) (*TokenPair, error) {
	access, err := ti.issue(userID, TokenAccess, ti.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := ti.issue(userID, TokenRefresh, ti.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(ti.accessTTL.Seconds()),
	}, nil
}

// Verify validates the signature and expiry and checks the token type.
// Returns the subject user id.
func (ti *TokenIssuer) Verify(token, wantType string) (int64, error) {
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256(), ti.secret),
		jwt.WithValidate(true))
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryAuth, errors.SeverityWarning, "invalid token")
	}
	var typ string
	if err := parsed.Get("typ", &typ); err != nil || typ != wantType {
		return 0, errors.New(errors.CategoryAuth, errors.SeverityWarning, "wrong token type")
	}
	sub, ok := parsed.Subject()
	if !ok {
		return 0, errors.New(errors.CategoryAuth, errors.SeverityWarning, "token has no subject")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, errors.New(errors.CategoryAuth, errors.SeverityWarning, "malformed token subject")
	}
	return userID, nil
}
