package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	a := NewID("job")
	b := NewID("job")

	assert.NotEqual(t, a, b)
	assert.True(t, HasPrefix(a, "job"))
	assert.False(t, HasPrefix(a, "ast"))
	assert.Len(t, a, len("job_")+32)
	assert.Len(t, NewID(""), 32)
}
