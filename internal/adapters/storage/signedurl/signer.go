// Package signedurl issues and verifies time-limited read URLs for storage
// refs. Tokens are HMAC-SHA256 over "ref\nexpiry" and point at the API's
// /assets/content endpoint, which streams the object after Verify succeeds.
package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"time"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// ContentPath is the API route that serves signed content.
const ContentPath = "/assets/content"

// Signer signs refs with a shared key.
type Signer struct {
	key     []byte
	baseURL string
	now     func() time.Time
}

// New returns a Signer producing URLs under baseURL.
func New(key, baseURL string) *Signer {
	return &Signer{key: []byte(key), baseURL: baseURL, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign returns a URL for ref valid for ttl.
func (s *Signer) Sign(ref string, ttl time.Duration) ports.SignedURLOutput {
	exp := s.now().UTC().Add(ttl).Truncate(time.Second)
	q := url.Values{}
	q.Set("key", ref)
	q.Set("exp", strconv.FormatInt(exp.Unix(), 10))
	q.Set("sig", s.mac(ref, exp.Unix()))
	return ports.SignedURLOutput{
		URL:       s.baseURL + ContentPath + "?" + q.Encode(),
		ExpiresAt: exp,
	}
}

// Verify checks the key/exp/sig triple from a signed URL query.
func (s *Signer) Verify(ref, exp, sig string) error {
	if ref == "" || exp == "" || sig == "" {
		return errors.New(errors.CodeUnauthorized, "missing signature parameters")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return errors.New(errors.CodeUnauthorized, "malformed expiry")
	}
	want := s.mac(ref, expUnix)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return errors.New(errors.CodeUnauthorized, "invalid signature")
	}
	if s.now().Unix() > expUnix {
		return errors.New(errors.CodeUnauthorized, "signed url expired")
	}
	return nil
}

func (s *Signer) mac(ref string, exp int64) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(ref))
	m.Write([]byte{'\n'})
	m.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
