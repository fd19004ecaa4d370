package signedurl

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/pkg/errors"
)

func parse(t *testing.T, raw string) (ref, exp, sig string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	return q.Get("key"), q.Get("exp"), q.Get("sig")
}

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New("k1", "https://api.example").WithClock(func() time.Time { return now })

	out := s.Sign("renders/video/own_1/job_1.mp4", 15*time.Minute)
	assert.True(t, strings.HasPrefix(out.URL, "https://api.example/assets/content?"))
	assert.Equal(t, now.Add(15*time.Minute), out.ExpiresAt)

	ref, exp, sig := parse(t, out.URL)
	assert.Equal(t, "renders/video/own_1/job_1.mp4", ref)
	require.NoError(t, s.Verify(ref, exp, sig))
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := New("k1", "http://x").WithClock(func() time.Time { return clock })
	ref, exp, sig := parse(t, s.Sign("assets/a.mp4", time.Minute).URL)

	tests := []struct {
		name          string
		ref, exp, sig string
		advance       time.Duration
	}{
		{"tampered ref", "assets/b.mp4", exp, sig, 0},
		{"tampered exp", ref, "9999999999", sig, 0},
		{"bad sig", ref, exp, "AAAA", 0},
		{"malformed exp", ref, "soon", sig, 0},
		{"missing sig", ref, exp, "", 0},
		{"expired", ref, exp, sig, 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock = now.Add(tt.advance)
			err := s.Verify(tt.ref, tt.exp, tt.sig)
			require.Error(t, err)
			assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
		})
	}

	other := New("k2", "http://x").WithClock(func() time.Time { return now })
	assert.Error(t, other.Verify(ref, exp, sig), "different key must not verify")
}
