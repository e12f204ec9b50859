package objstore

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLVerifyRoundTrip(t *testing.T) {
	s := NewSigner("unit-test-secret", time.Hour)
	key := "versions/12/source/方案.docx"

	raw := s.SignedURL(key)
	assert.True(t, strings.HasPrefix(raw, "/files/"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	got, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/files/"))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	q := u.Query()
	require.NoError(t, s.Verify(key, q.Get("exp"), q.Get("sig")))
}

func TestVerifyRejectsTamperedKey(t *testing.T) {
	s := NewSigner("unit-test-secret", time.Hour)
	u, err := url.Parse(s.SignedURL("versions/12/source/a.docx"))
	require.NoError(t, err)
	q := u.Query()
	assert.Error(t, s.Verify("versions/12/source/b.docx", q.Get("exp"), q.Get("sig")))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := NewSigner("secret-a", time.Hour)
	b := NewSigner("secret-b", time.Hour)
	u, err := url.Parse(a.SignedURL("k"))
	require.NoError(t, err)
	q := u.Query()
	assert.Error(t, b.Verify("k", q.Get("exp"), q.Get("sig")))
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := NewSigner("unit-test-secret", -time.Hour)
	u, err := url.Parse(s.SignedURL("k"))
	require.NoError(t, err)
	q := u.Query()
	assert.Error(t, s.Verify("k", q.Get("exp"), q.Get("sig")))
}

func TestVerifyRejectsMalformedExpiry(t *testing.T) {
	s := NewSigner("unit-test-secret", time.Hour)
	assert.Error(t, s.Verify("k", "not-a-number", "deadbeef"))
}
