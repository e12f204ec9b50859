package objstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// Signer issues and verifies expiring HMAC tokens for object keys. The API
// layer serves /files/{key}?exp=&sig= by verifying the token and streaming
// the object.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a signer with the given secret and default TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) mac(key string, exp int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s\n%d", key, exp)
	return hex.EncodeToString(h.Sum(nil))
}

// SignedURL returns a relative URL granting temporary access to the key.
func (s *Signer) SignedURL(key string) string {
	exp := time.Now().Add(s.ttl).Unix()
	return fmt.Sprintf("/files/%s?exp=%d&sig=%s", urlEscapePath(key), exp, s.mac(key, exp))
}

// Verify checks signature and expiry for a key.
func (s *Signer) Verify(key string, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return rerr.New(rerr.CategoryAuth, rerr.SeverityError, "malformed expiry")
	}
	if time.Now().Unix() > exp {
		return rerr.New(rerr.CategoryAuth, rerr.SeverityError, "signed url expired")
	}
	if !hmac.Equal([]byte(s.mac(key, exp)), []byte(sig)) {
		return rerr.New(rerr.CategoryAuth, rerr.SeverityError, "bad signature")
	}
	return nil
}

func urlEscapePath(key string) string {
	u := url.URL{Path: key}
	return u.EscapedPath()
}
